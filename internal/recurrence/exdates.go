package recurrence

import (
	"sort"
	"time"
)

// MergeExdates returns the union of existing and add, normalized to UTC,
// deduplicated by instant and sorted ascending. Merging an instant that is
// already present leaves the set unchanged.
func MergeExdates(existing []time.Time, add ...time.Time) []time.Time {
	seen := make(map[int64]bool, len(existing)+len(add))
	out := make([]time.Time, 0, len(existing)+len(add))
	for _, src := range [][]time.Time{existing, add} {
		for _, t := range src {
			key := t.UnixNano()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, t.UTC())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// ContainsExdate reports whether t is excluded.
func ContainsExdate(exdates []time.Time, t time.Time) bool {
	for _, ex := range exdates {
		if ex.Equal(t) {
			return true
		}
	}
	return false
}
