// Package metrics exposes sync engine counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives one observation per sync cycle.
type Recorder interface {
	RecordCycle(outcome string, duration time.Duration)
	RecordPulled(count int)
	RecordPushed(count int)
}

// Cycle outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	cycles   *prometheus.CounterVec
	pulled   prometheus.Counter
	pushed   prometheus.Counter
	duration prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_sync_cycles_total",
			Help: "Sync cycles by outcome.",
		}, []string{"outcome"}),
		pulled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_sync_items_pulled_total",
			Help: "Remote items applied locally.",
		}),
		pushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_sync_items_pushed_total",
			Help: "Local items pushed to the remote.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_sync_cycle_seconds",
			Help:    "Wall time of a sync cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(c.cycles, c.pulled, c.pushed, c.duration)
	return c
}

// RecordCycle counts a finished cycle.
func (c *Collector) RecordCycle(outcome string, duration time.Duration) {
	c.cycles.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		c.duration.Observe(duration.Seconds())
	}
}

// RecordPulled adds count applied remote items.
func (c *Collector) RecordPulled(count int) {
	c.pulled.Add(float64(count))
}

// RecordPushed adds count pushed local items.
func (c *Collector) RecordPushed(count int) {
	c.pushed.Add(float64(count))
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordCycle(string, time.Duration) {}
func (Nop) RecordPulled(int)                  {}
func (Nop) RecordPushed(int)                  {}

// Handler returns the scrape handler for gatherer, mounted at /metrics.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}
