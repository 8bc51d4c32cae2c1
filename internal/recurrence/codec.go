package recurrence

import (
	"time"

	"github.com/tazhate/familyplanner/internal/domain"
)

var presetFrequency = map[domain.RepeatPreset]Frequency{
	domain.RepeatDaily:   Daily,
	domain.RepeatWeekly:  Weekly,
	domain.RepeatMonthly: Monthly,
	domain.RepeatYearly:  Yearly,
}

// Build turns a repeat configuration into a typed rule anchored at start.
// It returns false when the configuration does not repeat.
func Build(cfg domain.RepeatConfig, start time.Time, allDay bool) (Rule, bool) {
	freq, ok := presetFrequency[cfg.Preset]
	if cfg.Preset == domain.RepeatCustom {
		freq, ok = Weekly, true
		if f, valid := ParseFrequency(cfg.Frequency); valid {
			freq = f
		}
	}
	if !ok {
		return Rule{}, false
	}

	r := Rule{
		Start:    start.UTC(),
		Freq:     freq,
		Interval: max(1, cfg.Interval),
	}

	days := normalizeWeekdays(cfg.Weekdays)
	switch {
	case freq == Weekly && len(days) == 0:
		r.ByDay = []time.Weekday{start.Weekday()}
	case freq == Weekly:
		r.ByDay = days
	case cfg.Preset == domain.RepeatCustom && len(days) > 0:
		r.ByDay = days
	}

	switch cfg.EndMode {
	case domain.EndOnDate:
		if cfg.UntilDate != nil {
			r.End = End{Kind: EndUntil, Until: untilInstant(*cfg.UntilDate, start, allDay)}
		}
	case domain.EndAfterCount:
		n := 1
		if cfg.Count != nil {
			n = max(1, *cfg.Count)
		}
		r.End = End{Kind: EndCount, Count: n}
	}
	return r, true
}

// untilInstant places the end date on the series' own calendar: the last
// second of that day for all-day series, the series' time of day otherwise.
func untilInstant(until, start time.Time, allDay bool) time.Time {
	loc := start.Location()
	y, m, d := until.In(loc).Date()
	if allDay {
		return time.Date(y, m, d, 23, 59, 59, 0, loc).UTC()
	}
	h, mi, s := start.Clock()
	return time.Date(y, m, d, h, mi, s, 0, loc).UTC()
}

// Encode renders the stored two-line rule text, or "" for no recurrence.
func Encode(cfg domain.RepeatConfig, start time.Time, allDay bool) string {
	r, ok := Build(cfg, start, allDay)
	if !ok {
		return ""
	}
	return r.String()
}

// decodeRule is the lenient counterpart of Parse: bad tokens and unknown
// lines are skipped. It reports false when no usable FREQ remains.
func decodeRule(text string) (Rule, bool) {
	dtstart, body, _ := splitRuleText(text)
	r := Rule{Interval: 1}
	if t, ok := parseTimestamp(dtstart); ok {
		r.Start = t
	}
	tokens, _ := lex(body)
	for _, tok := range tokens {
		r.apply(tok)
	}
	if r.Freq == "" {
		return Rule{}, false
	}
	return r, true
}

// Decode recovers a repeat configuration from stored rule text. It never
// fails; anything unusable degrades towards the none configuration.
func Decode(text string) domain.RepeatConfig {
	r, ok := decodeRule(text)
	if !ok {
		return domain.NoRepeat()
	}
	return r.Config()
}

// Config infers the closest preset for the rule.
func (r Rule) Config() domain.RepeatConfig {
	cfg := domain.RepeatConfig{
		Preset:   domain.RepeatCustom,
		Interval: max(1, r.Interval),
		Weekdays: weekdayIndexes(r.ByDay),
		EndMode:  domain.EndNever,
	}
	if len(cfg.Weekdays) == 0 {
		cfg.Weekdays = nil
	}

	if cfg.Interval == 1 {
		switch r.Freq {
		case Daily:
			if len(r.ByDay) == 0 {
				cfg.Preset = domain.RepeatDaily
			}
		case Weekly:
			cfg.Preset = domain.RepeatWeekly
		case Monthly:
			cfg.Preset = domain.RepeatMonthly
		case Yearly:
			cfg.Preset = domain.RepeatYearly
		}
	}
	if cfg.Preset == domain.RepeatCustom && r.Freq != Weekly {
		cfg.Frequency = string(r.Freq)
	}

	switch r.End.Kind {
	case EndCount:
		n := r.End.Count
		cfg.EndMode = domain.EndAfterCount
		cfg.Count = &n
	case EndUntil:
		t := r.End.Until.UTC()
		cfg.EndMode = domain.EndOnDate
		cfg.UntilDate = &t
	}
	return cfg
}
