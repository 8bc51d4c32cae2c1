package domain

import "time"

type RepeatPreset string

const (
	RepeatNone    RepeatPreset = "none"
	RepeatDaily   RepeatPreset = "daily"
	RepeatWeekly  RepeatPreset = "weekly"
	RepeatMonthly RepeatPreset = "monthly"
	RepeatYearly  RepeatPreset = "yearly"
	RepeatCustom  RepeatPreset = "custom"
)

type RepeatEndMode string

const (
	EndNever      RepeatEndMode = "never"
	EndOnDate     RepeatEndMode = "on_date"
	EndAfterCount RepeatEndMode = "after_count"
)

// RepeatConfig is the API-facing shape of a recurrence. It is never persisted;
// the recurrence package turns it into a rule string and back.
type RepeatConfig struct {
	Preset    RepeatPreset  `json:"preset" validate:"required,oneof=none daily weekly monthly yearly custom"`
	Interval  int           `json:"interval" validate:"gte=0"`
	Weekdays  []int         `json:"weekdays,omitempty" validate:"dive,gte=0,lte=6"` // 0=Sunday..6=Saturday
	EndMode   RepeatEndMode `json:"endMode" validate:"omitempty,oneof=never on_date after_count"`
	UntilDate *time.Time    `json:"untilDate,omitempty"`
	Count     *int          `json:"count,omitempty" validate:"omitempty,gte=0"`

	// Frequency pins the rule frequency of a custom preset ("DAILY", "MONTHLY", ...).
	// Empty means the custom preset is a weekly rule.
	Frequency string `json:"frequency,omitempty" validate:"omitempty,oneof=DAILY WEEKLY MONTHLY YEARLY daily weekly monthly yearly"`
}

// NoRepeat is the configuration of a non-recurring event.
func NoRepeat() RepeatConfig {
	return RepeatConfig{Preset: RepeatNone, Interval: 1, EndMode: EndNever}
}
