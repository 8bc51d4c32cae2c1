package recurrence

import (
	"sort"
	"strings"
	"time"
)

var dayTokens = []string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// weekdayToken converts Go weekday to RRULE BYDAY format
func weekdayToken(wd time.Weekday) string {
	return dayTokens[wd]
}

// parseWeekdayToken parses a BYDAY entry. Ordinal prefixes such as "2FR"
// are outside the supported subset and rejected.
func parseWeekdayToken(s string) (time.Weekday, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, tok := range dayTokens {
		if s == tok {
			return time.Weekday(i), true
		}
	}
	return time.Sunday, false
}

// normalizeWeekdays keeps indexes 0..6, drops duplicates and sorts ascending.
func normalizeWeekdays(days []int) []time.Weekday {
	seen := make(map[int]bool, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, time.Weekday(d))
	}
	sortWeekdays(out)
	return out
}

func sortWeekdays(days []time.Weekday) {
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
}

func weekdayIndexes(days []time.Weekday) []int {
	out := make([]int, 0, len(days))
	for _, d := range days {
		out = append(out, int(d))
	}
	return out
}
