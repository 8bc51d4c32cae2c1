// Package recurrence encodes and decodes the supported recurrence-rule subset
// (FREQ, INTERVAL, BYDAY, UNTIL, COUNT) and expands series into occurrences.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// timestampLayout is the zero-padded UTC form used for DTSTART and UNTIL.
const timestampLayout = "20060102T150405Z"

type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

// ParseFrequency accepts any casing.
func ParseFrequency(s string) (Frequency, bool) {
	switch f := Frequency(strings.ToUpper(strings.TrimSpace(s))); f {
	case Daily, Weekly, Monthly, Yearly:
		return f, true
	default:
		return "", false
	}
}

type EndKind int

const (
	EndNone EndKind = iota
	EndUntil
	EndCount
)

// End is the single end condition of a rule. Until is only meaningful for
// EndUntil and Count only for EndCount.
type End struct {
	Kind  EndKind
	Until time.Time
	Count int
}

// Rule is the typed form of a recurrence rule.
type Rule struct {
	Start    time.Time // DTSTART, zero when the text carried none
	Freq     Frequency
	Interval int
	ByDay    []time.Weekday
	End      End
}

// Line renders the RRULE value with tokens in fixed order.
func (r Rule) Line() string {
	parts := []string{"FREQ=" + string(r.Freq)}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if len(r.ByDay) > 0 {
		days := make([]string, 0, len(r.ByDay))
		for _, d := range r.ByDay {
			days = append(days, weekdayToken(d))
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}
	switch r.End.Kind {
	case EndUntil:
		parts = append(parts, "UNTIL="+formatTimestamp(r.End.Until))
	case EndCount:
		parts = append(parts, "COUNT="+strconv.Itoa(r.End.Count))
	}
	return strings.Join(parts, ";")
}

// String renders the two-line stored form.
func (r Rule) String() string {
	line := "RRULE:" + r.Line()
	if r.Start.IsZero() {
		return line
	}
	return "DTSTART:" + formatTimestamp(r.Start) + "\n" + line
}

// Until mirrors the UNTIL token, nil unless the rule ends on a date.
func (r Rule) Until() *time.Time {
	if r.End.Kind != EndUntil {
		return nil
	}
	t := r.End.Until.UTC()
	return &t
}

// Count mirrors the COUNT token, nil unless the rule ends after a count.
func (r Rule) Count() *int {
	if r.End.Kind != EndCount {
		return nil
	}
	n := r.End.Count
	return &n
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp accepts UTC date-times, floating date-times (read as UTC)
// and bare dates.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range []string{timestampLayout, "20060102T150405", "20060102"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type tokenKind int

const (
	tokenFreq tokenKind = iota
	tokenInterval
	tokenByDay
	tokenUntil
	tokenCount
)

func (k tokenKind) String() string {
	return [...]string{"FREQ", "INTERVAL", "BYDAY", "UNTIL", "COUNT"}[k]
}

type token struct {
	kind tokenKind
	freq Frequency
	n    int
	days []time.Weekday
	at   time.Time
}

// lex splits a rule body into typed tokens. Parts that are not KEY=VALUE,
// carry an unsupported key or hold an unusable value are returned in bad.
func lex(body string) (tokens []token, bad []string) {
	for _, part := range strings.Split(body, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			bad = append(bad, part)
			continue
		}
		tok, ok := lexToken(strings.ToUpper(strings.TrimSpace(key)), strings.TrimSpace(value))
		if !ok {
			bad = append(bad, part)
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens, bad
}

func lexToken(key, value string) (token, bool) {
	switch key {
	case "FREQ":
		f, ok := ParseFrequency(value)
		return token{kind: tokenFreq, freq: f}, ok
	case "INTERVAL":
		n, err := strconv.Atoi(value)
		return token{kind: tokenInterval, n: n}, err == nil && n >= 1
	case "COUNT":
		n, err := strconv.Atoi(value)
		return token{kind: tokenCount, n: n}, err == nil && n >= 1
	case "UNTIL":
		t, ok := parseTimestamp(value)
		return token{kind: tokenUntil, at: t}, ok
	case "BYDAY":
		var days []time.Weekday
		seen := make(map[time.Weekday]bool)
		for _, s := range strings.Split(value, ",") {
			d, ok := parseWeekdayToken(s)
			if !ok {
				return token{}, false
			}
			if !seen[d] {
				seen[d] = true
				days = append(days, d)
			}
		}
		sortWeekdays(days)
		return token{kind: tokenByDay, days: days}, len(days) > 0
	default:
		return token{}, false
	}
}

// splitRuleText separates the DTSTART value from the RRULE body. A line
// without a property name is taken as the body.
func splitRuleText(text string) (dtstart, body string, extra []string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "DTSTART"):
			if _, v, ok := strings.Cut(line, ":"); ok {
				dtstart = v
			} else {
				extra = append(extra, line)
			}
		case strings.HasPrefix(upper, "RRULE:"):
			body = line[len("RRULE:"):]
		case strings.Contains(line, "=") && !strings.Contains(line, ":"):
			body = line
		default:
			extra = append(extra, line)
		}
	}
	return dtstart, body, extra
}

// Parse strictly parses rule text. It is used for rules supplied directly by
// callers, so anything outside the supported subset is an error.
func Parse(text string) (Rule, error) {
	dtstart, body, extra := splitRuleText(text)
	if len(extra) > 0 {
		return Rule{}, fmt.Errorf("unsupported line %q", extra[0])
	}
	if strings.TrimSpace(body) == "" {
		return Rule{}, fmt.Errorf("missing RRULE")
	}

	r := Rule{Interval: 1}
	if dtstart != "" {
		t, ok := parseTimestamp(dtstart)
		if !ok {
			return Rule{}, fmt.Errorf("invalid DTSTART %q", dtstart)
		}
		r.Start = t
	}

	tokens, bad := lex(body)
	if len(bad) > 0 {
		return Rule{}, fmt.Errorf("invalid token %q", bad[0])
	}

	seen := make(map[tokenKind]bool)
	for _, tok := range tokens {
		if seen[tok.kind] {
			return Rule{}, fmt.Errorf("duplicate %s", tok.kind)
		}
		seen[tok.kind] = true
		r.apply(tok)
	}

	if r.Freq == "" {
		return Rule{}, fmt.Errorf("missing FREQ")
	}
	if seen[tokenUntil] && seen[tokenCount] {
		return Rule{}, fmt.Errorf("UNTIL and COUNT are mutually exclusive")
	}

	if _, err := rrule.StrToRRule(r.Line()); err != nil {
		return Rule{}, fmt.Errorf("invalid rule: %w", err)
	}
	return r, nil
}

// apply folds a token into the rule. COUNT always wins over UNTIL.
func (r *Rule) apply(tok token) {
	switch tok.kind {
	case tokenFreq:
		r.Freq = tok.freq
	case tokenInterval:
		r.Interval = tok.n
	case tokenByDay:
		r.ByDay = tok.days
	case tokenUntil:
		if r.End.Kind != EndCount {
			r.End = End{Kind: EndUntil, Until: tok.at}
		}
	case tokenCount:
		r.End = End{Kind: EndCount, Count: tok.n}
	}
}
