package domain

import "time"

type ReminderMethod string

const (
	ReminderInApp ReminderMethod = "in_app"
	ReminderEmail ReminderMethod = "email"
)

// Valid reports whether m is a known delivery method
func (m ReminderMethod) Valid() bool {
	return m == ReminderInApp || m == ReminderEmail
}

// Reminder belongs to exactly one event. FiredAt moves from nil to set once.
type Reminder struct {
	ID            int64          `json:"id"`
	EventID       int64          `json:"eventId"`
	MinutesBefore int            `json:"minutesBefore" validate:"gte=0"`
	Method        ReminderMethod `json:"method" validate:"omitempty,oneof=in_app email"`
	FiredAt       *time.Time     `json:"firedAt"`
}

// IsFired returns true once the reminder has been delivered
func (r *Reminder) IsFired() bool {
	return r.FiredAt != nil
}

// DueReminder is a pending reminder joined with its owning event.
type DueReminder struct {
	Reminder   Reminder  `json:"reminder"`
	Event      Event     `json:"event"`
	ReminderAt time.Time `json:"reminderAt"`
}

// CloneReminders copies a reminder list for another event, unfired.
func CloneReminders(src []Reminder) []Reminder {
	out := make([]Reminder, 0, len(src))
	for _, r := range src {
		out = append(out, Reminder{
			MinutesBefore: r.MinutesBefore,
			Method:        r.Method,
		})
	}
	return out
}
