package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/familyplanner/internal/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "planner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func at(day, hour int) time.Time {
	return time.Date(2025, 3, day, hour, 0, 0, 0, time.UTC)
}

func createEvent(t *testing.T, s Store, e domain.Event) domain.Event {
	t.Helper()
	require.NoError(t, s.CreateEvent(context.Background(), &e))
	return e
}

func TestStorage_CreateAndGetEvent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	rule := "DTSTART:20250303T090000Z\nRRULE:FREQ=WEEKLY;BYDAY=MO;COUNT=3"
	count := 3
	created := createEvent(t, s, domain.Event{
		Title:           "Swimming",
		Location:        "Pool",
		Tags:            []string{"kids", "sport"},
		StartAt:         at(3, 9),
		EndAt:           at(3, 10),
		Timezone:        "Europe/Moscow",
		RecurrenceRule:  &rule,
		RecurrenceCount: &count,
		Exdates:         []time.Time{at(10, 9)},
		Reminders: []domain.Reminder{
			{MinutesBefore: 30},
			{MinutesBefore: 60, Method: domain.ReminderEmail},
		},
	})
	assert.NotZero(t, created.ID)
	assert.NotEmpty(t, created.UID)

	got, err := s.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "Swimming", got.Title)
	assert.Equal(t, []string{"kids", "sport"}, got.Tags)
	assert.True(t, got.StartAt.Equal(at(3, 9)))
	assert.Equal(t, rule, *got.RecurrenceRule)
	assert.Equal(t, 3, *got.RecurrenceCount)
	assert.Nil(t, got.RecurrenceUntil)
	assert.Equal(t, []time.Time{at(10, 9)}, got.Exdates)
	require.Len(t, got.Reminders, 2)
	assert.Equal(t, domain.ReminderInApp, got.Reminders[0].Method)
	assert.Equal(t, domain.ReminderEmail, got.Reminders[1].Method)
}

func TestStorage_GetMissing(t *testing.T) {
	s := newTestStorage(t)

	e, err := s.GetEvent(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, e)

	r, err := s.GetReminder(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestStorage_ListRange(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	rule := "RRULE:FREQ=DAILY"
	root := createEvent(t, s, domain.Event{Title: "root", StartAt: at(1, 8), EndAt: at(1, 9), RecurrenceRule: &rule})
	inside := createEvent(t, s, domain.Event{Title: "inside", StartAt: at(10, 8), EndAt: at(10, 9)})
	spanning := createEvent(t, s, domain.Event{Title: "spanning", StartAt: at(9, 20), EndAt: at(10, 2)})
	createEvent(t, s, domain.Event{Title: "before", StartAt: at(5, 8), EndAt: at(5, 9)})
	createEvent(t, s, domain.Event{Title: "touching end", StartAt: at(9, 0), EndAt: at(10, 0)})

	parent := root.ID
	movedIn := at(10, 8)
	override := createEvent(t, s, domain.Event{
		Title: "override", StartAt: at(20, 8), EndAt: at(20, 9),
		ParentEventID: &parent, OriginalOccurrenceStart: &movedIn,
	})
	movedOut := at(12, 8)
	createEvent(t, s, domain.Event{
		Title: "override elsewhere", StartAt: at(10, 12), EndAt: at(10, 13),
		ParentEventID: &parent, OriginalOccurrenceStart: &movedOut,
	})

	events, err := s.ListRange(ctx, at(10, 0), at(11, 0))
	require.NoError(t, err)

	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []int64{root.ID, inside.ID, spanning.ID, override.ID}, ids)
}

func TestStorage_DeleteEvent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	e := createEvent(t, s, domain.Event{
		Title: "x", StartAt: at(1, 8), EndAt: at(1, 9),
		Reminders: []domain.Reminder{{MinutesBefore: 5}},
	})

	n, err := s.DeleteEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	r, err := s.GetReminder(ctx, e.Reminders[0].ID)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestStorage_PendingRemindersAndFire(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	e := createEvent(t, s, domain.Event{
		Title: "dentist", StartAt: at(10, 15), EndAt: at(10, 16),
		Reminders: []domain.Reminder{
			{MinutesBefore: 30, Method: domain.ReminderInApp},
			{MinutesBefore: 30, Method: domain.ReminderEmail},
		},
	})
	createEvent(t, s, domain.Event{
		Title: "far away", StartAt: at(28, 15), EndAt: at(28, 16),
		Reminders: []domain.Reminder{{MinutesBefore: 10}},
	})

	pending, err := s.ListPendingReminders(ctx, at(9, 0), at(11, 0))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, e.Reminders[0].ID, pending[0].Reminder.ID)
	assert.Equal(t, "dentist", pending[0].Event.Title)

	firedAt := at(10, 14)
	ok, err := s.MarkReminderFired(ctx, pending[0].Reminder.ID, firedAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkReminderFired(ctx, pending[0].Reminder.ID, at(10, 15))
	require.NoError(t, err)
	assert.False(t, ok)

	r, err := s.GetReminder(ctx, pending[0].Reminder.ID)
	require.NoError(t, err)
	require.NotNil(t, r.FiredAt)
	assert.True(t, r.FiredAt.Equal(firedAt))

	pending, err = s.ListPendingReminders(ctx, at(9, 0), at(11, 0))
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStorage_AtomicRollsBack(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	keep := createEvent(t, s, domain.Event{Title: "keep", StartAt: at(1, 8), EndAt: at(1, 9)})
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(tx Store) error {
		if _, err := tx.DeleteEvent(ctx, keep.ID); err != nil {
			return err
		}
		e := domain.Event{Title: "new", StartAt: at(2, 8), EndAt: at(2, 9)}
		if err := tx.CreateEvent(ctx, &e); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := s.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep.ID, all[0].ID)
}

func TestStorage_AtomicCommits(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	err := s.Atomic(ctx, func(tx Store) error {
		for i := 1; i <= 3; i++ {
			e := domain.Event{Title: "batch", StartAt: at(i, 8), EndAt: at(i, 9)}
			if err := tx.CreateEvent(ctx, &e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	all, err := s.ListEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStorage_GetEventByUID(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	e := createEvent(t, s, domain.Event{UID: "import-1@example.com", Title: "x", StartAt: at(1, 8), EndAt: at(1, 9)})

	got, err := s.GetEventByUID(ctx, "import-1@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, e.ID, got.ID)

	got, err = s.GetEventByUID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	dup := domain.Event{UID: "import-1@example.com", Title: "y", StartAt: at(2, 8), EndAt: at(2, 9)}
	assert.Error(t, s.CreateEvent(ctx, &dup))
}
