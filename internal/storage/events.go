package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tazhate/familyplanner/internal/domain"
)

const eventColumns = `id, uid, title, description, location, notes, color, category, tags,
	start_at, end_at, all_day, timezone, recurrence_rule, recurrence_until, recurrence_count,
	exdates, parent_event_id, original_occurrence_start, created_at, updated_at`

type eventRow struct {
	ID                      int64          `db:"id"`
	UID                     string         `db:"uid"`
	Title                   string         `db:"title"`
	Description             string         `db:"description"`
	Location                string         `db:"location"`
	Notes                   string         `db:"notes"`
	Color                   string         `db:"color"`
	Category                string         `db:"category"`
	Tags                    string         `db:"tags"`
	StartAt                 string         `db:"start_at"`
	EndAt                   string         `db:"end_at"`
	AllDay                  bool           `db:"all_day"`
	Timezone                string         `db:"timezone"`
	RecurrenceRule          sql.NullString `db:"recurrence_rule"`
	RecurrenceUntil         sql.NullString `db:"recurrence_until"`
	RecurrenceCount         sql.NullInt64  `db:"recurrence_count"`
	Exdates                 string         `db:"exdates"`
	ParentEventID           sql.NullInt64  `db:"parent_event_id"`
	OriginalOccurrenceStart sql.NullString `db:"original_occurrence_start"`
	CreatedAt               string         `db:"created_at"`
	UpdatedAt               string         `db:"updated_at"`
}

func (r eventRow) toDomain() (domain.Event, error) {
	e := domain.Event{
		ID:          r.ID,
		UID:         r.UID,
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		Notes:       r.Notes,
		Color:       r.Color,
		Category:    r.Category,
		Tags:        parseTagsJSON(r.Tags),
		AllDay:      r.AllDay,
		Timezone:    r.Timezone,
		Reminders:   []domain.Reminder{},
	}

	var err error
	if e.StartAt, err = parseTime(r.StartAt); err != nil {
		return e, err
	}
	if e.EndAt, err = parseTime(r.EndAt); err != nil {
		return e, err
	}
	if e.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return e, err
	}
	if e.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return e, err
	}
	if r.RecurrenceRule.Valid {
		rule := r.RecurrenceRule.String
		e.RecurrenceRule = &rule
	}
	if e.RecurrenceUntil, err = parseTimePtr(r.RecurrenceUntil); err != nil {
		return e, err
	}
	if r.RecurrenceCount.Valid {
		n := int(r.RecurrenceCount.Int64)
		e.RecurrenceCount = &n
	}
	if e.Exdates, err = parseTimesJSON(r.Exdates); err != nil {
		return e, err
	}
	if r.ParentEventID.Valid {
		id := r.ParentEventID.Int64
		e.ParentEventID = &id
	}
	if e.OriginalOccurrenceStart, err = parseTimePtr(r.OriginalOccurrenceStart); err != nil {
		return e, err
	}
	return e, nil
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// CreateEvent inserts the event and its reminders. A missing UID is generated.
func (s *Storage) CreateEvent(ctx context.Context, e *domain.Event) error {
	if e.UID == "" {
		e.UID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)

	res, err := s.q.ExecContext(ctx,
		`INSERT INTO events (uid, title, description, location, notes, color, category, tags,
			start_at, end_at, all_day, timezone, recurrence_rule, recurrence_until, recurrence_count,
			exdates, parent_event_id, original_occurrence_start, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UID, e.Title, e.Description, e.Location, e.Notes, e.Color, e.Category, tagsJSON(e.Tags),
		formatTime(e.StartAt), formatTime(e.EndAt), e.AllDay, e.Timezone,
		nullString(e.RecurrenceRule), formatTimePtr(e.RecurrenceUntil), nullInt(e.RecurrenceCount),
		timesJSON(e.Exdates), nullInt64(e.ParentEventID), formatTimePtr(e.OriginalOccurrenceStart),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	e.ID = id
	e.CreatedAt = now
	e.UpdatedAt = now

	reminders, err := s.ReplaceReminders(ctx, id, e.Reminders)
	if err != nil {
		return err
	}
	e.Reminders = reminders
	return nil
}

// GetEvent returns nil, nil when the event does not exist.
func (s *Storage) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	var row eventRow
	err := sqlx.GetContext(ctx, s.q, &row, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", id, err)
	}

	e, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	events := []domain.Event{e}
	if err := s.attachReminders(ctx, events); err != nil {
		return nil, err
	}
	return &events[0], nil
}

// GetEventByUID returns nil, nil when no event carries uid.
func (s *Storage) GetEventByUID(ctx context.Context, uid string) (*domain.Event, error) {
	events, err := s.selectEvents(ctx, `SELECT `+eventColumns+` FROM events WHERE uid = ?`, uid)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// UpdateEvent rewrites every column of the event row. Reminders are managed
// through ReplaceReminders.
func (s *Storage) UpdateEvent(ctx context.Context, e *domain.Event) error {
	e.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := s.q.ExecContext(ctx,
		`UPDATE events SET title = ?, description = ?, location = ?, notes = ?, color = ?, category = ?,
			tags = ?, start_at = ?, end_at = ?, all_day = ?, timezone = ?, recurrence_rule = ?,
			recurrence_until = ?, recurrence_count = ?, exdates = ?, parent_event_id = ?,
			original_occurrence_start = ?, updated_at = ?
		 WHERE id = ?`,
		e.Title, e.Description, e.Location, e.Notes, e.Color, e.Category,
		tagsJSON(e.Tags), formatTime(e.StartAt), formatTime(e.EndAt), e.AllDay, e.Timezone, nullString(e.RecurrenceRule),
		formatTimePtr(e.RecurrenceUntil), nullInt(e.RecurrenceCount), timesJSON(e.Exdates), nullInt64(e.ParentEventID),
		formatTimePtr(e.OriginalOccurrenceStart), formatTime(e.UpdatedAt),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("update event %d: %w", e.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update event %d: %w", e.ID, sql.ErrNoRows)
	}
	return nil
}

// DeleteEvent removes exactly one row and reports how many were removed.
// Reminders go with it; overrides referencing it are untouched.
func (s *Storage) DeleteEvent(ctx context.Context, id int64) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete event %d: %w", id, err)
	}
	return res.RowsAffected()
}

// ListOverrides returns every event whose parent is parentID.
func (s *Storage) ListOverrides(ctx context.Context, parentID int64) ([]domain.Event, error) {
	return s.selectEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE parent_event_id = ? ORDER BY original_occurrence_start, id`,
		parentID,
	)
}

// ListRange returns the candidates for a window: standalone events that
// intersect [from, to), every series root, and overrides whose original
// occurrence lies in the window. Expanding roots is up to the caller.
func (s *Storage) ListRange(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	f, t := formatTime(from), formatTime(to)
	return s.selectEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE (parent_event_id IS NULL AND COALESCE(recurrence_rule, '') = '' AND start_at < ? AND end_at > ?)
			OR (parent_event_id IS NULL AND COALESCE(recurrence_rule, '') != '')
			OR (parent_event_id IS NOT NULL AND original_occurrence_start >= ? AND original_occurrence_start < ?)
		 ORDER BY start_at, id`,
		t, f, f, t,
	)
}

// ListEvents returns every stored event.
func (s *Storage) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return s.selectEvents(ctx, `SELECT `+eventColumns+` FROM events ORDER BY start_at, id`)
}

func (s *Storage) selectEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	var rows []eventRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}

	events := make([]domain.Event, 0, len(rows))
	for _, r := range rows {
		e, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := s.attachReminders(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}
