package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tazhate/familyplanner/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// timeLayout keeps stored instants fixed-width so text comparison in SQL
// orders them correctly.
const timeLayout = "2006-01-02T15:04:05Z"

// Store is the persistence contract of the planner. Atomic runs fn against a
// Store bound to one transaction; any error rolls the whole unit back.
type Store interface {
	CreateEvent(ctx context.Context, e *domain.Event) error
	GetEvent(ctx context.Context, id int64) (*domain.Event, error)
	GetEventByUID(ctx context.Context, uid string) (*domain.Event, error)
	UpdateEvent(ctx context.Context, e *domain.Event) error
	DeleteEvent(ctx context.Context, id int64) (int64, error)
	ListOverrides(ctx context.Context, parentID int64) ([]domain.Event, error)
	ListRange(ctx context.Context, from, to time.Time) ([]domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)

	ReplaceReminders(ctx context.Context, eventID int64, reminders []domain.Reminder) ([]domain.Reminder, error)
	GetReminder(ctx context.Context, id int64) (*domain.Reminder, error)
	ListPendingReminders(ctx context.Context, from, to time.Time) ([]domain.DueReminder, error)
	MarkReminderFired(ctx context.Context, id int64, at time.Time) (bool, error)

	Atomic(ctx context.Context, fn func(Store) error) error
}

type Storage struct {
	db *sqlx.DB
	q  sqlx.ExtContext // db, or the open transaction inside Atomic
	tx bool
}

func New(dbPath string) (*Storage, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer keeps transactions from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db, q: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Atomic runs fn inside a transaction. Nested calls join the outer one.
func (s *Storage) Atomic(ctx context.Context, fn func(Store) error) (err error) {
	if s.tx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&Storage{db: s.db, q: tx, tx: true}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT UNIQUE NOT NULL,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			location TEXT DEFAULT '',
			notes TEXT DEFAULT '',
			color TEXT DEFAULT '',
			category TEXT DEFAULT '',
			tags TEXT DEFAULT '[]',
			start_at TEXT NOT NULL,
			end_at TEXT NOT NULL,
			all_day INTEGER DEFAULT 0,
			timezone TEXT DEFAULT '',
			recurrence_rule TEXT,
			recurrence_until TEXT,
			recurrence_count INTEGER,
			exdates TEXT DEFAULT '[]',
			parent_event_id INTEGER,
			original_occurrence_start TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_parent ON events(parent_event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_original_start ON events(original_occurrence_start)`,
		`CREATE TABLE IF NOT EXISTS event_reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id INTEGER NOT NULL,
			minutes_before INTEGER NOT NULL DEFAULT 0,
			method TEXT NOT NULL DEFAULT 'in_app',
			fired_at TEXT,
			FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_reminders_event ON event_reminders(event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_event_reminders_pending ON event_reminders(fired_at, method)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func timesJSON(ts []time.Time) string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, formatTime(t))
	}
	data, _ := json.Marshal(out)
	return string(data)
}

func parseTimesJSON(s string) ([]time.Time, error) {
	var raw []string
	if s != "" {
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return nil, fmt.Errorf("parse exdates: %w", err)
		}
	}
	out := make([]time.Time, 0, len(raw))
	for _, r := range raw {
		t, err := parseTime(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func tagsJSON(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

func parseTagsJSON(s string) []string {
	tags := []string{}
	if s != "" {
		_ = json.Unmarshal([]byte(s), &tags)
	}
	return tags
}
