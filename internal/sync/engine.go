// Package sync runs the pull-reconcile-push cycle between the local store
// and the remote backend.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/weekly-planner/internal/metrics"
	"github.com/nhle/weekly-planner/internal/model"
	"github.com/nhle/weekly-planner/internal/remote"
	"github.com/nhle/weekly-planner/internal/store"
)

// State is the sync engine state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is a snapshot of the engine for status indicators.
type Status struct {
	State       State
	LastError   string
	LastRun     time.Time
	LastSuccess time.Time
	Pulled      int
	Pushed      int
}

// Result describes one call to RunOnce.
type Result struct {
	// Skipped is set when another cycle was already running.
	Skipped bool
	Pulled  int
	Pushed  int
}

// ResultMsg is a tea.Msg sent when a background cycle completes.
type ResultMsg struct {
	Result
	Status Status
	Err    error

	// AuthFailed is set when the backend rejected the access token.
	AuthFailed bool
}

// ErrNoIdentity is returned when no user is signed in.
var ErrNoIdentity = errors.New("no current user")

const (
	defaultInterval = 60 * time.Second
	defaultTimeout  = 30 * time.Second
)

// Engine owns the sync cycle. Only one cycle runs at a time; the
// background timer and manual triggers share it.
type Engine struct {
	store    store.SyncStore
	backend  remote.Backend
	identity func() string
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
	interval time.Duration
	timeout  time.Duration

	running atomic.Bool

	mu     gosync.Mutex
	status Status

	resultCh  chan ResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}
	done      chan struct{}
	started   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithClock overrides the time source for push timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithInterval sets the background sync period.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithTimeout sets the deadline of a background cycle.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New creates an engine syncing s with backend on behalf of the user
// returned by identity.
func New(s store.SyncStore, backend remote.Backend, identity func() string, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		backend:   backend,
		identity:  identity,
		logger:    slog.Default(),
		metrics:   metrics.Nop{},
		now:       time.Now,
		interval:  defaultInterval,
		timeout:   defaultTimeout,
		resultCh:  make(chan ResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status returns the current engine status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// RunOnce performs one pull-reconcile-push cycle. If a cycle is already
// running it returns immediately with Skipped set and no error.
func (e *Engine) RunOnce(ctx context.Context) (Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		e.metrics.RecordCycle(metrics.OutcomeSkipped, 0)
		return Result{Skipped: true}, nil
	}
	defer e.running.Store(false)

	started := e.now()
	e.setRunning(started)

	res, err := e.cycle(ctx)
	elapsed := time.Since(started)

	if err != nil {
		e.metrics.RecordCycle(metrics.OutcomeError, elapsed)
		e.finish(StateError, res, err)
		e.logger.Error("sync cycle failed",
			slog.Int("pulled", res.Pulled),
			slog.String("error", err.Error()),
		)
		return res, err
	}

	e.metrics.RecordCycle(metrics.OutcomeSuccess, elapsed)
	e.metrics.RecordPulled(res.Pulled)
	e.metrics.RecordPushed(res.Pushed)
	e.finish(StateSuccess, res, nil)
	e.logger.Info("sync cycle finished",
		slog.Int("pulled", res.Pulled),
		slog.Int("pushed", res.Pushed),
		slog.Duration("elapsed", elapsed),
	)
	return res, nil
}

func (e *Engine) cycle(ctx context.Context) (Result, error) {
	var res Result

	owner := e.identity()
	if owner == "" {
		return res, fmt.Errorf("%w: %w", model.ErrRemote, ErrNoIdentity)
	}

	lastSync, err := e.store.LastSyncedAt(ctx)
	if err != nil {
		return res, err
	}

	pulled, err := e.backend.Pull(ctx, owner, lastSync)
	if err != nil {
		return res, err
	}

	merged, err := e.store.Reconcile(ctx, pulled)
	if err != nil {
		return res, err
	}
	res.Pulled = merged.Inserted + merged.Updated

	// Rows just taken from the remote already match it.
	applied := make(map[string]struct{}, len(merged.Applied))
	for _, u := range merged.Applied {
		applied[u] = struct{}{}
	}

	pushAt := e.now().UTC().Truncate(time.Millisecond)
	pending, err := e.store.PendingChanges(ctx, lastSync)
	if err != nil {
		return res, err
	}

	outgoing := pending[:0]
	for _, it := range pending {
		if _, ok := applied[it.UUID]; ok {
			continue
		}
		outgoing = append(outgoing, it)
	}
	if len(outgoing) == 0 {
		return res, nil
	}

	if err := e.backend.Push(ctx, owner, outgoing); err != nil {
		return res, err
	}

	uuids := make([]string, len(outgoing))
	for i, it := range outgoing {
		uuids[i] = it.UUID
	}
	if err := e.store.MarkSynced(ctx, uuids, pushAt, owner); err != nil {
		return res, err
	}
	res.Pushed = len(outgoing)
	return res, nil
}

func (e *Engine) setRunning(at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.State = StateRunning
	e.status.LastRun = at
}

func (e *Engine) finish(state State, res Result, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.State = state
	e.status.Pulled = res.Pulled
	e.status.Pushed = res.Pushed
	if err != nil {
		e.status.LastError = err.Error()
		return
	}
	e.status.LastError = ""
	e.status.LastSuccess = e.now()
}

// Start launches the background loop: one cycle immediately, then one per
// interval and one per Trigger. Calling Start while running has no effect;
// after Stop the engine can be started again.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(e.stopCh, e.done)
}

// Trigger requests an immediate cycle from the background loop. Requests
// made while one is already pending are dropped.
func (e *Engine) Trigger() {
	select {
	case e.triggerCh <- struct{}{}:
	default:
	}
}

// Stop halts the background loop and waits for an in-flight cycle to
// finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	stop, done := e.stopCh, e.done
	close(stop)
	e.mu.Unlock()

	<-done
}

func (e *Engine) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.runAndReport()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.runAndReport()
		case <-e.triggerCh:
			e.runAndReport()
		}
	}
}

func (e *Engine) runAndReport() {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	res, err := e.RunOnce(ctx)
	e.sendResult(ResultMsg{
		Result:     res,
		Status:     e.Status(),
		Err:        err,
		AuthFailed: remote.IsAuthError(err),
	})
}

// sendResult sends a ResultMsg on the result channel without blocking.
func (e *Engine) sendResult(msg ResultMsg) {
	select {
	case e.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the loop
	}
}

// WaitForResult returns a tea.Cmd that waits for the next background
// result. Call it again after handling a ResultMsg to keep listening.
func (e *Engine) WaitForResult() tea.Cmd {
	return func() tea.Msg {
		return <-e.resultCh
	}
}
