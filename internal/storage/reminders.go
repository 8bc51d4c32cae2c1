package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tazhate/familyplanner/internal/domain"
)

type reminderRow struct {
	ID            int64          `db:"id"`
	EventID       int64          `db:"event_id"`
	MinutesBefore int            `db:"minutes_before"`
	Method        string         `db:"method"`
	FiredAt       sql.NullString `db:"fired_at"`
}

func (r reminderRow) toDomain() (domain.Reminder, error) {
	firedAt, err := parseTimePtr(r.FiredAt)
	if err != nil {
		return domain.Reminder{}, err
	}
	return domain.Reminder{
		ID:            r.ID,
		EventID:       r.EventID,
		MinutesBefore: r.MinutesBefore,
		Method:        domain.ReminderMethod(r.Method),
		FiredAt:       firedAt,
	}, nil
}

// ReplaceReminders swaps the event's reminder list for a new one.
func (s *Storage) ReplaceReminders(ctx context.Context, eventID int64, reminders []domain.Reminder) ([]domain.Reminder, error) {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM event_reminders WHERE event_id = ?`, eventID); err != nil {
		return nil, fmt.Errorf("clear reminders: %w", err)
	}

	out := make([]domain.Reminder, 0, len(reminders))
	for _, r := range reminders {
		method := r.Method
		if method == "" {
			method = domain.ReminderInApp
		}
		res, err := s.q.ExecContext(ctx,
			`INSERT INTO event_reminders (event_id, minutes_before, method, fired_at) VALUES (?, ?, ?, ?)`,
			eventID, r.MinutesBefore, string(method), formatTimePtr(r.FiredAt),
		)
		if err != nil {
			return nil, fmt.Errorf("insert reminder: %w", err)
		}
		id, _ := res.LastInsertId()
		out = append(out, domain.Reminder{
			ID:            id,
			EventID:       eventID,
			MinutesBefore: r.MinutesBefore,
			Method:        method,
			FiredAt:       r.FiredAt,
		})
	}
	return out, nil
}

// GetReminder returns nil, nil when the reminder does not exist.
func (s *Storage) GetReminder(ctx context.Context, id int64) (*domain.Reminder, error) {
	var row reminderRow
	err := sqlx.GetContext(ctx, s.q, &row,
		`SELECT id, event_id, minutes_before, method, fired_at FROM event_reminders WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder %d: %w", id, err)
	}
	r, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type pendingRow struct {
	eventRow
	ReminderID    int64  `db:"reminder_id"`
	MinutesBefore int    `db:"minutes_before"`
	Method        string `db:"method"`
}

// ListPendingReminders returns unfired in-app reminders whose event starts
// within [from, to].
func (s *Storage) ListPendingReminders(ctx context.Context, from, to time.Time) ([]domain.DueReminder, error) {
	var rows []pendingRow
	err := sqlx.SelectContext(ctx, s.q, &rows,
		`SELECT r.id AS reminder_id, r.minutes_before, r.method,
			e.id, e.uid, e.title, e.description, e.location, e.notes, e.color, e.category, e.tags,
			e.start_at, e.end_at, e.all_day, e.timezone, e.recurrence_rule, e.recurrence_until,
			e.recurrence_count, e.exdates, e.parent_event_id, e.original_occurrence_start,
			e.created_at, e.updated_at
		 FROM event_reminders r
		 JOIN events e ON e.id = r.event_id
		 WHERE r.fired_at IS NULL AND r.method = ? AND e.start_at >= ? AND e.start_at <= ?
		 ORDER BY e.start_at, r.id`,
		string(domain.ReminderInApp), formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("select pending reminders: %w", err)
	}

	out := make([]domain.DueReminder, 0, len(rows))
	for _, r := range rows {
		e, err := r.eventRow.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, domain.DueReminder{
			Reminder: domain.Reminder{
				ID:            r.ReminderID,
				EventID:       e.ID,
				MinutesBefore: r.MinutesBefore,
				Method:        domain.ReminderMethod(r.Method),
			},
			Event: e,
		})
	}
	return out, nil
}

// MarkReminderFired sets fired_at only while it is still empty. It reports
// whether this call did the transition.
func (s *Storage) MarkReminderFired(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE event_reminders SET fired_at = ? WHERE id = ? AND fired_at IS NULL`,
		formatTime(at), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark reminder %d fired: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// attachReminders loads reminders for all events with one query.
func (s *Storage) attachReminders(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(events))
	index := make(map[int64]int, len(events))
	for i, e := range events {
		ids = append(ids, e.ID)
		index[e.ID] = i
	}

	query, args, err := sqlx.In(
		`SELECT id, event_id, minutes_before, method, fired_at FROM event_reminders WHERE event_id IN (?) ORDER BY minutes_before, id`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("build reminders query: %w", err)
	}

	var rows []reminderRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, s.q.Rebind(query), args...); err != nil {
		return fmt.Errorf("select reminders: %w", err)
	}
	for _, row := range rows {
		r, err := row.toDomain()
		if err != nil {
			return err
		}
		i := index[row.EventID]
		events[i].Reminders = append(events[i].Reminders, r)
	}
	return nil
}
