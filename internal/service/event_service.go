package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tazhate/familyplanner/internal/domain"
	"github.com/tazhate/familyplanner/internal/errdef"
	"github.com/tazhate/familyplanner/internal/logger"
	"github.com/tazhate/familyplanner/internal/metrics"
	"github.com/tazhate/familyplanner/internal/recurrence"
	"github.com/tazhate/familyplanner/internal/storage"
)

// Scope selects whether an edit or delete hits the whole series or one
// occurrence of it.
type Scope string

const (
	ScopeSeries Scope = "series"
	ScopeSingle Scope = "single"
)

// ParseScope accepts "series", "single" or an empty string (series).
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeSeries:
		return ScopeSeries, nil
	case ScopeSingle:
		return ScopeSingle, nil
	}
	return "", errdef.NewBadRequest("invalid scope %q", s)
}

// EventInput is the payload of a new event. Either Repeat or RecurrenceRule
// may describe the recurrence; Repeat wins when both are given.
type EventInput struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=5000"`
	Location    string   `json:"location" validate:"max=500"`
	Notes       string   `json:"notes" validate:"max=5000"`
	Color       string   `json:"color" validate:"max=32"`
	Category    string   `json:"category" validate:"max=100"`
	Tags        []string `json:"tags" validate:"dive,max=100"`

	StartAt  time.Time `json:"startAt"`
	EndAt    time.Time `json:"endAt"`
	AllDay   bool      `json:"allDay"`
	Timezone string    `json:"timezone"`

	Repeat         *domain.RepeatConfig `json:"repeat" validate:"omitempty"`
	RecurrenceRule string               `json:"recurrenceRule"`

	Reminders []domain.Reminder `json:"reminders" validate:"dive"`
}

type EventService struct {
	store    storage.Store
	calendar *CalendarService
	validate *validator.Validate
	metrics  *metrics.Metrics
	timezone *time.Location
	log      *logger.Logger
}

// NewEventService wires the service. calendar and m may be nil.
func NewEventService(s storage.Store, calendar *CalendarService, m *metrics.Metrics, tz *time.Location, log *logger.Logger) *EventService {
	if tz == nil {
		tz = time.UTC
	}
	return &EventService{
		store:    s,
		calendar: calendar,
		validate: validator.New(),
		metrics:  m,
		timezone: tz,
		log:      log.WithComponent("events"),
	}
}

// Create validates the input and stores the event with its reminders.
func (s *EventService) Create(ctx context.Context, in EventInput) (*domain.Event, error) {
	ev, err := s.newEvent(in)
	if err != nil {
		return nil, err
	}

	err = s.store.Atomic(ctx, func(tx storage.Store) error {
		return tx.CreateEvent(ctx, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.log.Infow("Event created", "event_id", ev.ID, "recurring", ev.IsRecurring())
	s.metrics.OccurrenceChanged(string(ScopeSeries), "create")
	s.calendar.EventChanged(ctx, *ev)
	return ev, nil
}

func (s *EventService) newEvent(in EventInput) (*domain.Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := s.validate.Struct(in); err != nil {
		return nil, errdef.NewBadRequest("invalid event: %v", err)
	}
	if in.StartAt.IsZero() || in.EndAt.IsZero() {
		return nil, errdef.NewBadRequest("startAt and endAt are required")
	}
	if in.Repeat != nil {
		if err := s.validate.Struct(in.Repeat); err != nil {
			return nil, errdef.NewBadRequest("invalid repeat: %v", err)
		}
	}

	ev := &domain.Event{
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Notes:       in.Notes,
		Color:       in.Color,
		Category:    in.Category,
		Tags:        in.Tags,
		StartAt:     in.StartAt.UTC().Truncate(time.Second),
		EndAt:       in.EndAt.UTC().Truncate(time.Second),
		AllDay:      in.AllDay,
		Timezone:    in.Timezone,
		Exdates:     []time.Time{},
		Reminders:   in.Reminders,
	}
	if ev.Tags == nil {
		ev.Tags = []string{}
	}
	if err := validateSpan(ev); err != nil {
		return nil, err
	}
	if err := s.setRecurrence(ev, in.Repeat, in.RecurrenceRule); err != nil {
		return nil, err
	}
	return ev, nil
}

// Get returns the event or a not-found error.
func (s *EventService) Get(ctx context.Context, id int64) (*domain.Event, error) {
	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if ev == nil {
		return nil, errdef.NewNotFound("event %d not found", id)
	}
	return ev, nil
}

// Edit dispatches on scope. occurrenceStart is required for ScopeSingle.
func (s *EventService) Edit(ctx context.Context, id int64, scope Scope, occurrenceStart time.Time, patch domain.EventPatch) (*domain.Event, error) {
	if scope == ScopeSingle {
		return s.EditOccurrence(ctx, id, occurrenceStart, patch)
	}
	return s.UpdateSeries(ctx, id, patch)
}

// Delete dispatches on scope. A series-scoped delete of a root removes its
// overrides too; of any other event it removes that row only.
func (s *EventService) Delete(ctx context.Context, id int64, scope Scope, occurrenceStart time.Time) error {
	if scope == ScopeSingle {
		return s.DeleteOccurrence(ctx, id, occurrenceStart)
	}

	ev, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if ev.IsRecurring() {
		return s.DeleteSeries(ctx, id)
	}
	return s.DeleteSingle(ctx, id)
}

// EditOccurrence detaches one occurrence of a series into an override event.
// The exdate merge on the root and the override insert commit together.
func (s *EventService) EditOccurrence(ctx context.Context, seriesID int64, occurrenceStart time.Time, patch domain.EventPatch) (*domain.Event, error) {
	root, instant, err := s.occurrenceTarget(ctx, seriesID, occurrenceStart)
	if err != nil {
		return nil, err
	}
	if patch.Repeat.Present() || patch.RecurrenceRule.Present() {
		return nil, errdef.NewBadRequest("a single occurrence cannot carry a recurrence")
	}

	parentID := root.ID
	override := domain.Event{
		Title:                   root.Title,
		Description:             root.Description,
		Location:                root.Location,
		Notes:                   root.Notes,
		Color:                   root.Color,
		Category:                root.Category,
		Tags:                    append([]string{}, root.Tags...),
		StartAt:                 instant,
		EndAt:                   instant.Add(root.Duration()),
		AllDay:                  root.AllDay,
		Timezone:                root.Timezone,
		ParentEventID:           &parentID,
		OriginalOccurrenceStart: &instant,
		Reminders:               domain.CloneReminders(root.Reminders),
	}
	override.ClearRecurrence()

	if err := s.applyPatch(&override, patch); err != nil {
		return nil, err
	}

	err = s.store.Atomic(ctx, func(tx storage.Store) error {
		root.Exdates = recurrence.MergeExdates(root.Exdates, instant)
		if err := tx.UpdateEvent(ctx, root); err != nil {
			return err
		}
		return tx.CreateEvent(ctx, &override)
	})
	if err != nil {
		return nil, fmt.Errorf("edit occurrence: %w", err)
	}

	s.log.Infow("Occurrence overridden",
		"series_id", root.ID,
		"override_id", override.ID,
		"occurrence_start", instant,
	)
	s.metrics.OccurrenceChanged(string(ScopeSingle), "edit")
	s.calendar.EventChanged(ctx, *root)
	return &override, nil
}

// DeleteOccurrence hides one occurrence by adding it to the series' exdates.
// An override already created for that occurrence is kept. Deleting an
// occurrence that is already excluded writes nothing.
func (s *EventService) DeleteOccurrence(ctx context.Context, seriesID int64, occurrenceStart time.Time) error {
	root, instant, err := s.occurrenceTarget(ctx, seriesID, occurrenceStart)
	if err != nil {
		return err
	}

	excluded := false
	err = s.store.Atomic(ctx, func(tx storage.Store) error {
		overrides, err := tx.ListOverrides(ctx, root.ID)
		if err != nil {
			return err
		}
		for _, o := range overrides {
			if o.OriginalOccurrenceStart != nil && o.OriginalOccurrenceStart.Equal(instant) {
				s.log.Warnw("Occurrence deleted but its override is kept",
					"series_id", root.ID,
					"override_id", o.ID,
					"occurrence_start", instant,
				)
			}
		}

		if recurrence.ContainsExdate(root.Exdates, instant) {
			excluded = true
			return nil
		}
		root.Exdates = recurrence.MergeExdates(root.Exdates, instant)
		return tx.UpdateEvent(ctx, root)
	})
	if err != nil {
		return fmt.Errorf("delete occurrence: %w", err)
	}
	if excluded {
		s.log.Debugw("Occurrence already excluded", "series_id", root.ID, "occurrence_start", instant)
		return nil
	}

	s.log.Infow("Occurrence deleted", "series_id", root.ID, "occurrence_start", instant)
	s.metrics.OccurrenceChanged(string(ScopeSingle), "delete")
	s.calendar.EventChanged(ctx, *root)
	return nil
}

// occurrenceTarget loads and checks the series addressed by a single-scope
// request. The instant is truncated to the stored precision.
func (s *EventService) occurrenceTarget(ctx context.Context, seriesID int64, occurrenceStart time.Time) (*domain.Event, time.Time, error) {
	if occurrenceStart.IsZero() {
		return nil, time.Time{}, errdef.NewBadRequest("occurrenceStart is required for a single occurrence")
	}
	root, err := s.Get(ctx, seriesID)
	if err != nil {
		return nil, time.Time{}, err
	}
	if !root.IsRecurring() {
		return nil, time.Time{}, errdef.NewBadRequest("event %d is not recurring", seriesID)
	}
	return root, occurrenceStart.UTC().Truncate(time.Second), nil
}

// UpdateSeries applies patch to the event in place. Used for series roots,
// standalone events and override rows alike; overrides of a root are left
// alone.
func (s *EventService) UpdateSeries(ctx context.Context, id int64, patch domain.EventPatch) (*domain.Event, error) {
	ev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev.IsOverride() && (patch.Repeat.Present() || patch.RecurrenceRule.Present()) {
		return nil, errdef.NewBadRequest("an override cannot carry a recurrence")
	}

	oldStart, oldAllDay := ev.StartAt, ev.AllDay
	if err := s.applyPatch(ev, patch); err != nil {
		return nil, err
	}

	switch {
	case patch.Repeat.Present():
		if err := s.validate.Struct(patch.Repeat.Value); err != nil {
			return nil, errdef.NewBadRequest("invalid repeat: %v", err)
		}
		if err := s.setRecurrence(ev, &patch.Repeat.Value, ""); err != nil {
			return nil, err
		}
	case patch.RecurrenceRule.Present():
		if err := s.setRecurrence(ev, nil, patch.RecurrenceRule.Value); err != nil {
			return nil, err
		}
	case patch.Repeat.Null || patch.RecurrenceRule.Null:
		ev.ClearRecurrence()
	case ev.IsRecurring() && (!ev.StartAt.Equal(oldStart) || ev.AllDay != oldAllDay):
		s.reanchor(ev)
	}

	err = s.store.Atomic(ctx, func(tx storage.Store) error {
		if err := tx.UpdateEvent(ctx, ev); err != nil {
			return err
		}
		if !patch.Reminders.Set {
			return nil
		}
		reminders, err := tx.ReplaceReminders(ctx, ev.ID, ev.Reminders)
		if err != nil {
			return err
		}
		ev.Reminders = reminders
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}

	s.log.Infow("Event updated", "event_id", ev.ID)
	s.metrics.OccurrenceChanged(string(ScopeSeries), "edit")
	s.calendar.EventChanged(ctx, *ev)
	return ev, nil
}

// reanchor moves DTSTART of a stored rule to the event's new start.
func (s *EventService) reanchor(ev *domain.Event) {
	rule, err := recurrence.Parse(*ev.RecurrenceRule)
	if err != nil {
		s.log.Warnw("Stored rule not re-anchored", "event_id", ev.ID, "error", err)
		return
	}
	rule.Start = ev.StartAt
	setRule(ev, rule)
}

// DeleteSeries removes every override of the series and then the root in one
// transaction.
func (s *EventService) DeleteSeries(ctx context.Context, id int64) error {
	root, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var removed int64
	err = s.store.Atomic(ctx, func(tx storage.Store) error {
		overrides, err := tx.ListOverrides(ctx, id)
		if err != nil {
			return err
		}
		for _, o := range overrides {
			n, err := tx.DeleteEvent(ctx, o.ID)
			if err != nil {
				return err
			}
			removed += n
		}
		n, err := tx.DeleteEvent(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return errdef.NewNotFound("event %d not found", id)
		}
		removed += n
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete series: %w", err)
	}

	s.log.Infow("Series deleted", "series_id", id, "rows", removed)
	s.metrics.OccurrenceChanged(string(ScopeSeries), "delete")
	s.calendar.EventDeleted(ctx, root.UID)
	return nil
}

// DeleteSingle removes exactly one row. Overrides pointing at it stay.
func (s *EventService) DeleteSingle(ctx context.Context, id int64) error {
	ev, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	n, err := s.store.DeleteEvent(ctx, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n == 0 {
		return errdef.NewNotFound("event %d not found", id)
	}

	s.log.Infow("Event deleted", "event_id", id)
	s.metrics.OccurrenceChanged(string(ScopeSeries), "delete")
	if ev.IsOverride() {
		// The series object still lists this override.
		if parent, err := s.store.GetEvent(ctx, *ev.ParentEventID); err == nil && parent != nil {
			s.calendar.EventChanged(ctx, *parent)
		}
	} else {
		s.calendar.EventDeleted(ctx, ev.UID)
	}
	return nil
}

// ListRange returns the stored candidates for [from, to) without expanding
// series roots.
func (s *EventService) ListRange(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	if err := validateWindow(from, to); err != nil {
		return nil, err
	}
	events, err := s.store.ListRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list range: %w", err)
	}
	return events, nil
}

// Occurrences expands the candidates of [from, to) into concrete occurrences.
func (s *EventService) Occurrences(ctx context.Context, from, to time.Time) (recurrence.ExpandResult, error) {
	events, err := s.ListRange(ctx, from, to)
	if err != nil {
		return recurrence.ExpandResult{}, err
	}
	res := recurrence.ExpandIn(events, from, to, 0, s.timezone)
	if len(res.Truncated) > 0 {
		s.log.Warnw("Occurrence expansion capped", "series_ids", res.Truncated)
	}
	return res, nil
}

// All returns every stored event, used by the calendar feed.
func (s *EventService) All(ctx context.Context) ([]domain.Event, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// applyPatch copies the present fields of patch onto ev and re-validates the
// result. Recurrence fields are handled by the caller.
func (s *EventService) applyPatch(ev *domain.Event, patch domain.EventPatch) error {
	if patch.Title.Set {
		ev.Title = strings.TrimSpace(patch.Title.Value)
	}
	ev.Description = patch.Description.Get(ev.Description)
	if patch.Description.Null {
		ev.Description = ""
	}
	ev.Location = patch.Location.Get(ev.Location)
	if patch.Location.Null {
		ev.Location = ""
	}
	ev.Notes = patch.Notes.Get(ev.Notes)
	if patch.Notes.Null {
		ev.Notes = ""
	}
	ev.Color = patch.Color.Get(ev.Color)
	if patch.Color.Null {
		ev.Color = ""
	}
	ev.Category = patch.Category.Get(ev.Category)
	if patch.Category.Null {
		ev.Category = ""
	}
	if patch.Tags.Set {
		ev.Tags = patch.Tags.Get([]string{})
		if ev.Tags == nil {
			ev.Tags = []string{}
		}
	}
	if patch.StartAt.Present() {
		ev.StartAt = patch.StartAt.Value.UTC().Truncate(time.Second)
	}
	if patch.EndAt.Present() {
		ev.EndAt = patch.EndAt.Value.UTC().Truncate(time.Second)
	}
	ev.AllDay = patch.AllDay.Get(ev.AllDay)
	ev.Timezone = patch.Timezone.Get(ev.Timezone)
	if patch.Timezone.Null {
		ev.Timezone = ""
	}
	if patch.Reminders.Set {
		ev.Reminders = patch.Reminders.Get([]domain.Reminder{})
		if ev.Reminders == nil {
			ev.Reminders = []domain.Reminder{}
		}
	}

	fields := struct {
		Title       string            `validate:"required,max=200"`
		Description string            `validate:"max=5000"`
		Location    string            `validate:"max=500"`
		Reminders   []domain.Reminder `validate:"dive"`
	}{ev.Title, ev.Description, ev.Location, ev.Reminders}
	if err := s.validate.Struct(fields); err != nil {
		return errdef.NewBadRequest("invalid event: %v", err)
	}
	return validateSpan(ev)
}

// setRecurrence derives the rule columns from a repeat configuration or a raw
// rule string. Neither clears the recurrence.
func (s *EventService) setRecurrence(ev *domain.Event, repeat *domain.RepeatConfig, raw string) error {
	if repeat != nil {
		if repeat.EndMode == domain.EndOnDate && repeat.UntilDate == nil {
			return errdef.NewBadRequest("untilDate is required when endMode is on_date")
		}
		rule, ok := recurrence.Build(*repeat, ev.StartAt.In(s.location(ev.Timezone)), ev.AllDay)
		if !ok {
			ev.ClearRecurrence()
			return nil
		}
		setRule(ev, rule)
		return nil
	}

	if strings.TrimSpace(raw) == "" {
		ev.ClearRecurrence()
		return nil
	}
	rule, err := recurrence.Parse(raw)
	if err != nil {
		return errdef.NewBadRequest("invalid recurrence rule: %v", err)
	}
	rule.Start = ev.StartAt
	setRule(ev, rule)
	return nil
}

func setRule(ev *domain.Event, rule recurrence.Rule) {
	text := rule.String()
	ev.RecurrenceRule = &text
	ev.RecurrenceUntil = rule.Until()
	ev.RecurrenceCount = rule.Count()
	if ev.Exdates == nil {
		ev.Exdates = []time.Time{}
	}
}

func (s *EventService) location(tz string) *time.Location {
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return s.timezone
}

func validateSpan(ev *domain.Event) error {
	if !ev.StartAt.Before(ev.EndAt) {
		return errdef.NewBadRequest("startAt must be before endAt")
	}
	return nil
}

func validateWindow(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return errdef.NewBadRequest("from and to are required")
	}
	if !from.Before(to) {
		return errdef.NewBadRequest("from must be before to")
	}
	return nil
}

