// Package ics reads and writes interchange calendar documents.
package ics

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxDrafts = 1000

	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxLocationLength    = 500
)

// Draft is a normalized VEVENT ready to be stored.
type Draft struct {
	UID         string
	Title       string
	Description string
	Location    string
	StartAt     time.Time
	EndAt       time.Time
	AllDay      bool
}

// Result is the outcome of parsing one document.
type Result struct {
	Drafts    []Draft
	Skipped   int // VEVENT blocks without a usable DTSTART
	Truncated int // blocks dropped past MaxDrafts
}

// Parse extracts event drafts from a calendar document. It never fails:
// unknown properties are ignored and blocks without a start are skipped.
// Floating date-times and dates are read in loc.
func Parse(text string, loc *time.Location) Result {
	if loc == nil {
		loc = time.Local
	}

	var (
		res    Result
		cur    *block
		nested int
	)
	for _, line := range unfold(text) {
		name, params, value, ok := splitProperty(line)
		if !ok {
			continue
		}

		switch {
		case name == "BEGIN" && strings.EqualFold(value, "VEVENT"):
			cur = &block{}
			nested = 0
			continue
		case cur == nil:
			continue
		case name == "BEGIN":
			nested++
			continue
		case name == "END" && strings.EqualFold(value, "VEVENT"):
			d, ok := cur.draft()
			cur = nil
			switch {
			case !ok:
				res.Skipped++
			case len(res.Drafts) >= MaxDrafts:
				res.Truncated++
			default:
				res.Drafts = append(res.Drafts, d)
			}
			continue
		case name == "END":
			if nested > 0 {
				nested--
			}
			continue
		case nested > 0:
			// VALARM and friends carry their own DESCRIPTION.
			continue
		}

		cur.set(name, params, value, loc)
	}
	return res
}

type block struct {
	uid, title, description, location string

	start, end time.Time
	allDay     bool
	startOK    bool
	endOK      bool
}

func (b *block) set(name, params, value string, loc *time.Location) {
	switch name {
	case "UID":
		b.uid = strings.TrimSpace(value)
	case "SUMMARY":
		b.title = unescapeText(value)
	case "DESCRIPTION":
		b.description = unescapeText(value)
	case "LOCATION":
		b.location = unescapeText(value)
	case "DTSTART":
		if t, dateOnly, ok := parseDate(value, params, loc); ok {
			b.start, b.allDay, b.startOK = t, dateOnly, true
		}
	case "DTEND":
		if t, _, ok := parseDate(value, params, loc); ok {
			b.end, b.endOK = t, true
		}
	}
}

func (b *block) draft() (Draft, bool) {
	if !b.startOK {
		return Draft{}, false
	}
	end := b.end
	if !b.endOK || !end.After(b.start) {
		if b.allDay {
			end = b.start.Add(24 * time.Hour)
		} else {
			end = b.start.Add(time.Hour)
		}
	}
	return Draft{
		UID:         b.uid,
		Title:       clip(strings.TrimSpace(b.title), MaxTitleLength),
		Description: clip(b.description, MaxDescriptionLength),
		Location:    clip(strings.TrimSpace(b.location), MaxLocationLength),
		StartAt:     b.start,
		EndAt:       end,
		AllDay:      b.allDay,
	}, true
}

// unfold joins continuation lines (leading space or tab) onto the previous
// logical line, dropping the single whitespace character.
func unfold(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		if len(lines) > 0 && raw != "" && (raw[0] == ' ' || raw[0] == '\t') {
			lines[len(lines)-1] += raw[1:]
			continue
		}
		lines = append(lines, raw)
	}
	return lines
}

// splitProperty splits "NAME;PARAM=X:value" on the first colon. The name is
// upper-cased; parameters are returned verbatim.
func splitProperty(line string) (name, params, value string, ok bool) {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", "", false
	}
	name, params, _ = strings.Cut(key, ";")
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return "", "", "", false
	}
	return name, params, strings.TrimSpace(value), true
}

// parseDate reads an 8-digit date or a 14-digit date-time with optional T
// and trailing Z. VALUE=DATE forces the date form.
func parseDate(value, params string, loc *time.Location) (t time.Time, dateOnly, ok bool) {
	value = strings.TrimSpace(value)
	dateOnly = strings.Contains(strings.ToUpper(params), "VALUE=DATE") &&
		!strings.Contains(strings.ToUpper(params), "VALUE=DATE-TIME")

	if dateOnly || (len(value) == 8 && allDigits(value)) {
		if len(value) < 8 || !allDigits(value[:8]) {
			return time.Time{}, false, false
		}
		t, err := time.ParseInLocation("20060102", value[:8], loc)
		return t, true, err == nil
	}

	utc := strings.HasSuffix(strings.ToUpper(value), "Z")
	digits := strings.ReplaceAll(strings.TrimRight(value, "Zz"), "T", "")
	digits = strings.ReplaceAll(digits, "t", "")
	if len(digits) != 14 || !allDigits(digits) {
		return time.Time{}, false, false
	}
	in := loc
	if utc {
		in = time.UTC
	}
	t, err := time.ParseInLocation("20060102150405", digits, in)
	return t, false, err == nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func unescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			sb.WriteByte('\n')
		case ',', ';', '\\':
			sb.WriteByte(s[i])
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// clip limits s to n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
