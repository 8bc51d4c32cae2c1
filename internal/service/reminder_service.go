package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tazhate/familyplanner/internal/domain"
	"github.com/tazhate/familyplanner/internal/errdef"
	"github.com/tazhate/familyplanner/internal/logger"
	"github.com/tazhate/familyplanner/internal/metrics"
	"github.com/tazhate/familyplanner/internal/storage"
)

const (
	DefaultWindowMinutes = 240
	MaxWindowMinutes     = 1440

	// A reminder whose moment passed less than this long ago is still due.
	reminderGrace = 5 * time.Minute

	lookBehind = 24 * time.Hour
	lookAhead  = 30 * 24 * time.Hour
)

type ReminderService struct {
	store   storage.Store
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewReminderService(s storage.Store, m *metrics.Metrics, log *logger.Logger) *ReminderService {
	return &ReminderService{
		store:   s,
		metrics: m,
		log:     log.WithComponent("reminders"),
	}
}

// ClampWindow maps a requested window to [1, MaxWindowMinutes]. Zero stands
// for an unset window and selects the default.
func ClampWindow(minutes int) int {
	switch {
	case minutes == 0:
		return DefaultWindowMinutes
	case minutes < 1:
		return 1
	case minutes > MaxWindowMinutes:
		return MaxWindowMinutes
	}
	return minutes
}

// ComputeDue returns unfired in-app reminders whose moment lies in
// [now-grace, now+window], earliest first.
func (s *ReminderService) ComputeDue(ctx context.Context, now time.Time, windowMinutes int) ([]domain.DueReminder, error) {
	window := time.Duration(ClampWindow(windowMinutes)) * time.Minute

	candidates, err := s.store.ListPendingReminders(ctx, now.Add(-lookBehind), now.Add(lookAhead))
	if err != nil {
		return nil, fmt.Errorf("list pending reminders: %w", err)
	}

	from, to := now.Add(-reminderGrace), now.Add(window)
	due := make([]domain.DueReminder, 0, len(candidates))
	for _, c := range candidates {
		at := c.Event.StartAt.Add(-time.Duration(c.Reminder.MinutesBefore) * time.Minute)
		if at.Before(from) || at.After(to) {
			continue
		}
		c.ReminderAt = at
		due = append(due, c)
	}

	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].ReminderAt.Equal(due[j].ReminderAt) {
			return due[i].ReminderAt.Before(due[j].ReminderAt)
		}
		return due[i].Reminder.ID < due[j].Reminder.ID
	})
	return due, nil
}

// Fire marks the reminder as delivered. Firing an already fired reminder
// succeeds without changing firedAt.
func (s *ReminderService) Fire(ctx context.Context, id int64, now time.Time) (*domain.Reminder, error) {
	changed, err := s.store.MarkReminderFired(ctx, id, now.UTC().Truncate(time.Second))
	if err != nil {
		return nil, fmt.Errorf("fire reminder: %w", err)
	}

	r, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	if r == nil {
		return nil, errdef.NewNotFound("reminder %d not found", id)
	}

	if changed {
		s.log.Infow("Reminder fired", "reminder_id", id, "event_id", r.EventID)
		s.metrics.ReminderFired()
	}
	return r, nil
}
