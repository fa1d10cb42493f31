// Package ordering computes fractional sort keys for freeform list
// reordering and renormalises buckets whose keys have degraded.
package ordering

import (
	"math"
	"sort"

	"github.com/nhle/weekly-planner/internal/model"
)

const (
	// Step is the gap between neighbours after renormalisation, and the
	// offset used when inserting at either end of a list.
	Step = 1000.0

	// MaxMagnitude bounds drift from repeated head/tail insertion.
	MaxMagnitude = 1_000_000.0
)

// Sort orders items in place by their rank in bucket. Items without a usable
// rank sink to the end; ties fall back to the local id so the result is
// deterministic.
func Sort(items []model.Item, bucket model.Category) {
	sort.SliceStable(items, func(i, j int) bool {
		return less(items[i], items[j], bucket)
	})
}

func less(a, b model.Item, bucket model.Category) bool {
	ka, okA := a.OrderIn(bucket)
	kb, okB := b.OrderIn(bucket)
	switch {
	case okA && !okB:
		return true
	case !okA && okB:
		return false
	case okA && okB && ka != kb:
		return ka < kb
	}
	return a.ID < b.ID
}

// InsertionKey returns the rank for a new entry placed after items[before]
// and ahead of items[after]. items must already be sorted by bucket.
//
// An out-of-range before selects the head of the list, an out-of-range after
// the tail. An empty list yields Step.
func InsertionKey(items []model.Item, before, after int, bucket model.Category) float64 {
	if len(items) == 0 {
		return Step
	}
	beforeOK := before >= 0 && before < len(items)
	afterOK := after >= 0 && after < len(items)

	switch {
	case !beforeOK:
		return key(items[0], bucket) - Step
	case !afterOK:
		return key(items[len(items)-1], bucket) + Step
	}
	return (key(items[before], bucket) + key(items[after], bucket)) / 2
}

// Fits reports whether k can be stored between items[before] and
// items[after] without colliding with either neighbour. When it cannot, the
// bucket has run out of float precision and must be repaired first.
func Fits(items []model.Item, before, after int, bucket model.Category, k float64) bool {
	if math.IsNaN(k) || math.IsInf(k, 0) {
		return false
	}
	if before >= 0 && before < len(items) {
		lo, ok := items[before].OrderIn(bucket)
		if ok && !(k > lo) {
			return false
		}
	}
	if after >= 0 && after < len(items) {
		hi, ok := items[after].OrderIn(bucket)
		if ok && !(k < hi) {
			return false
		}
	}
	return true
}

func key(it model.Item, bucket model.Category) float64 {
	v, ok := it.OrderIn(bucket)
	if !ok {
		return 0
	}
	return v
}

// magnitudeLimit is the largest rank tolerated before a renormalisation is
// forced. It grows with the list so that a freshly repaired list of more than
// MaxMagnitude/Step entries does not immediately re-trigger repair.
func magnitudeLimit(n int) float64 {
	return math.Max(MaxMagnitude, float64(n+1)*Step)
}

// NeedsRepair reports whether any rank in bucket is missing, not finite,
// out of bounds, or shared by two items.
func NeedsRepair(items []model.Item, bucket model.Category) bool {
	limit := magnitudeLimit(len(items))
	seen := make(map[float64]struct{}, len(items))
	for _, it := range items {
		v, ok := it.OrderIn(bucket)
		if !ok {
			return true
		}
		if math.Abs(v) > limit {
			return true
		}
		if _, dup := seen[v]; dup {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}

// Repair renumbers bucket to (index+1)*Step following the current display
// order. It returns the items whose rank changed; an empty result means the
// list was already healthy and nothing has to be written.
func Repair(items []model.Item, bucket model.Category) []model.Item {
	if !NeedsRepair(items, bucket) {
		return nil
	}
	return Renumber(items, bucket)
}

// Renumber rewrites bucket to (index+1)*Step regardless of the list's health.
// It is used when neighbouring ranks have no representable midpoint left.
func Renumber(items []model.Item, bucket model.Category) []model.Item {
	sorted := make([]model.Item, len(items))
	for i, it := range items {
		sorted[i] = it.Clone()
	}
	Sort(sorted, bucket)

	var changed []model.Item
	for i := range sorted {
		want := float64(i+1) * Step
		if cur, ok := sorted[i].OrderIn(bucket); ok && cur == want {
			continue
		}
		if sorted[i].Order == nil {
			sorted[i].Order = model.Order{}
		}
		sorted[i].Order[bucket] = want
		changed = append(changed, sorted[i])
	}
	return changed
}
