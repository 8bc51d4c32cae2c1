package recurrence

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/tazhate/familyplanner/internal/domain"
)

const defaultMaxOccurrences = 5000

var rruleFrequency = map[Frequency]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

var rruleWeekday = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Occurrence is one concrete appearance of an event inside a window.
type Occurrence struct {
	Event domain.Event // StartAt and EndAt hold the occurrence bounds

	// SeriesID and OriginalStart are set for generated occurrences and
	// overrides.
	SeriesID      *int64
	OriginalStart *time.Time
}

type ExpandResult struct {
	Occurrences []Occurrence
	// Truncated lists series that hit the per-series cap.
	Truncated []int64
}

// Expand turns the candidate set of a range query into the occurrences that
// intersect [from, to). Series roots are expanded with their exdates
// removed; overrides and standalone events appear as themselves. Series
// without a timezone are expanded in UTC.
func Expand(events []domain.Event, from, to time.Time, maxPerSeries int) ExpandResult {
	return ExpandIn(events, from, to, maxPerSeries, time.UTC)
}

// ExpandIn is Expand with fallback as the zone of series that carry no
// timezone. It must be the zone their rules were built in, otherwise BYDAY
// and UNTIL land on the wrong local day.
func ExpandIn(events []domain.Event, from, to time.Time, maxPerSeries int, fallback *time.Location) ExpandResult {
	if fallback == nil {
		fallback = time.UTC
	}
	if maxPerSeries <= 0 {
		maxPerSeries = defaultMaxOccurrences
	}

	var res ExpandResult
	for _, ev := range events {
		switch {
		case ev.IsRecurring():
			occ, capped := expandSeries(ev, from, to, maxPerSeries, fallback)
			res.Occurrences = append(res.Occurrences, occ...)
			if capped {
				res.Truncated = append(res.Truncated, ev.ID)
			}
		case ev.Overlaps(from, to):
			o := Occurrence{Event: ev}
			if ev.IsOverride() {
				o.SeriesID = ev.ParentEventID
				o.OriginalStart = ev.OriginalOccurrenceStart
			}
			res.Occurrences = append(res.Occurrences, o)
		}
	}

	sort.SliceStable(res.Occurrences, func(i, j int) bool {
		a, b := res.Occurrences[i].Event, res.Occurrences[j].Event
		if !a.StartAt.Equal(b.StartAt) {
			return a.StartAt.Before(b.StartAt)
		}
		return a.ID < b.ID
	})
	return res
}

// Options converts the rule into rrule-go options anchored at start.
func (r Rule) Options(start time.Time) rrule.ROption {
	opt := rrule.ROption{
		Freq:     rruleFrequency[r.Freq],
		Dtstart:  start,
		Interval: max(1, r.Interval),
	}
	for _, d := range r.ByDay {
		opt.Byweekday = append(opt.Byweekday, rruleWeekday[d])
	}
	switch r.End.Kind {
	case EndUntil:
		opt.Until = r.End.Until
	case EndCount:
		opt.Count = r.End.Count
	}
	return opt
}

func expandSeries(root domain.Event, from, to time.Time, limit int, loc *time.Location) ([]Occurrence, bool) {
	rule, ok := decodeRule(*root.RecurrenceRule)
	if !ok {
		// An unreadable rule still shows its first occurrence.
		if root.Overlaps(from, to) {
			return []Occurrence{{Event: root}}, false
		}
		return nil, false
	}

	if root.Timezone != "" {
		if l, err := time.LoadLocation(root.Timezone); err == nil {
			loc = l
		}
	}

	rr, err := rrule.NewRRule(rule.Options(root.StartAt.In(loc)))
	if err != nil {
		return nil, false
	}
	set := &rrule.Set{}
	set.RRule(rr)
	for _, ex := range root.Exdates {
		set.ExDate(ex.In(loc))
	}

	dur := root.Duration()
	starts := set.Between(from.Add(-dur).In(loc), to.In(loc), true)

	capped := false
	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		end := s.Add(dur)
		if !s.Before(to) || !end.After(from) {
			continue
		}
		if len(out) == limit {
			capped = true
			break
		}

		ev := root
		ev.StartAt = s.UTC()
		ev.EndAt = end.UTC()
		orig := ev.StartAt
		id := root.ID
		out = append(out, Occurrence{Event: ev, SeriesID: &id, OriginalStart: &orig})
	}
	return out, capped
}
