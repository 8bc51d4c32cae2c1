package domain

import "time"

// Event is a calendar entry. A row with a RecurrenceRule is a series root; a row
// with a ParentEventID overrides exactly one occurrence of its root.
type Event struct {
	ID          int64    `json:"id"`
	UID         string   `json:"uid"` // Stable id used in ICS feeds and CalDAV
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Notes       string   `json:"notes"`
	Color       string   `json:"color"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`

	StartAt  time.Time `json:"startAt"`
	EndAt    time.Time `json:"endAt"`
	AllDay   bool      `json:"allDay"`
	Timezone string    `json:"timezone"` // Advisory only, instants are authoritative

	RecurrenceRule  *string     `json:"recurrenceRule"`
	RecurrenceUntil *time.Time  `json:"recurrenceUntil"`
	RecurrenceCount *int        `json:"recurrenceCount"`
	Exdates         []time.Time `json:"exdates"` // Sorted ascending, unique

	// ParentEventID references the series root. It never implies ownership:
	// removing a root enumerates its overrides explicitly.
	ParentEventID           *int64     `json:"parentEventId"`
	OriginalOccurrenceStart *time.Time `json:"originalOccurrenceStart"`

	Reminders []Reminder `json:"reminders"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsRecurring returns true for series roots
func (e *Event) IsRecurring() bool {
	return e.RecurrenceRule != nil && *e.RecurrenceRule != ""
}

// IsOverride returns true if the event replaces an occurrence of a series
func (e *Event) IsOverride() bool {
	return e.ParentEventID != nil
}

// Duration returns the length of one occurrence
func (e *Event) Duration() time.Duration {
	return e.EndAt.Sub(e.StartAt)
}

// ClearRecurrence drops every recurrence field, as required for overrides.
func (e *Event) ClearRecurrence() {
	e.RecurrenceRule = nil
	e.RecurrenceUntil = nil
	e.RecurrenceCount = nil
	e.Exdates = []time.Time{}
}

// FormatDateTime renders the start in loc for notifications.
func (e *Event) FormatDateTime(loc *time.Location) string {
	start := e.StartAt.In(loc)
	if e.AllDay {
		return start.Format("02.01.2006") + ", all day"
	}
	return start.Format("02.01.2006 15:04")
}

// Overlaps reports whether [StartAt, EndAt) intersects [from, to).
func (e *Event) Overlaps(from, to time.Time) bool {
	return e.StartAt.Before(to) && e.EndAt.After(from)
}
