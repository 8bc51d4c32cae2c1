package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tazhate/familyplanner/internal/domain"
	"github.com/tazhate/familyplanner/internal/logger"
)

// DefaultSpec polls twice a minute so a one-minute window never misses a reminder.
const DefaultSpec = "@every 30s"

// Notifier delivers a due reminder to the user.
type Notifier interface {
	Notify(ctx context.Context, due domain.DueReminder) error
}

// ReminderSource is implemented by service.ReminderService.
type ReminderSource interface {
	ComputeDue(ctx context.Context, now time.Time, windowMinutes int) ([]domain.DueReminder, error)
	Fire(ctx context.Context, id int64, now time.Time) (*domain.Reminder, error)
}

// Scheduler keeps no state of its own: the store decides what is due and
// firing is idempotent, so an overlapping or repeated poll is harmless.
type Scheduler struct {
	cron      *cron.Cron
	spec      string
	reminders ReminderSource
	notifier  Notifier
	now       func() time.Time
	log       *logger.Logger
}

func New(spec string, location *time.Location, reminders ReminderSource, notifier Notifier, log *logger.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	if location == nil {
		location = time.UTC
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(location)),
		spec:      spec,
		reminders: reminders,
		notifier:  notifier,
		now:       time.Now,
		log:       log.WithComponent("scheduler"),
	}
}

// Start registers the reminder poll and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.CheckReminders(ctx); err != nil {
			s.log.Errorw("Reminder check failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("add reminder check: %w", err)
	}

	s.cron.Start()
	s.log.Infow("Scheduler started", "spec", s.spec, "location", s.cron.Location().String())

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Scheduler stopped")
}

// CheckReminders delivers every reminder whose moment has come and marks it
// fired. A reminder whose delivery fails stays pending for the next poll.
func (s *Scheduler) CheckReminders(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.reminders.ComputeDue(ctx, now, 1)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, d := range due {
		if d.ReminderAt.After(now) {
			continue
		}
		if err := s.notifier.Notify(ctx, d); err != nil {
			s.log.Warnw("Reminder delivery failed",
				"reminder_id", d.Reminder.ID,
				"event_id", d.Event.ID,
				"error", err,
			)
			continue
		}
		if _, err := s.reminders.Fire(ctx, d.Reminder.ID, now); err != nil {
			s.log.Errorw("Mark reminder fired", "reminder_id", d.Reminder.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}
