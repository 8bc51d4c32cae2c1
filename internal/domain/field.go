package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Field is a patch value with three states: absent (leave unchanged),
// null (clear) and set.
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Value returns a set, non-null field
func Value[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Null returns a field that clears the target
func Null[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

// Present reports whether the field carries a non-null value
func (f Field[T]) Present() bool {
	return f.Set && !f.Null
}

// Get returns the value when present, otherwise fallback
func (f Field[T]) Get(fallback T) T {
	if f.Present() {
		return f.Value
	}
	return fallback
}

// UnmarshalJSON is only invoked for keys present in the document, which is
// what separates absent from null.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Null = true
		var zero T
		f.Value = zero
		return nil
	}
	f.Null = false
	return json.Unmarshal(data, &f.Value)
}

// EventPatch describes a partial update of an event.
type EventPatch struct {
	Title       Field[string]   `json:"title"`
	Description Field[string]   `json:"description"`
	Location    Field[string]   `json:"location"`
	Notes       Field[string]   `json:"notes"`
	Color       Field[string]   `json:"color"`
	Category    Field[string]   `json:"category"`
	Tags        Field[[]string] `json:"tags"`

	StartAt  Field[time.Time] `json:"startAt"`
	EndAt    Field[time.Time] `json:"endAt"`
	AllDay   Field[bool]      `json:"allDay"`
	Timezone Field[string]    `json:"timezone"`

	// Repeat replaces the recurrence from a configuration; RecurrenceRule
	// replaces it from a raw rule string. Null on either clears it.
	Repeat         Field[RepeatConfig] `json:"repeat"`
	RecurrenceRule Field[string]       `json:"recurrenceRule"`

	Reminders Field[[]Reminder] `json:"reminders"`
}
