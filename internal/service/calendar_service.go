package service

import (
	"context"
	"time"

	"github.com/emersion/go-ical"

	"github.com/tazhate/familyplanner/internal/domain"
	"github.com/tazhate/familyplanner/internal/ics"
	"github.com/tazhate/familyplanner/internal/logger"
	"github.com/tazhate/familyplanner/internal/storage"
)

// calendarClient is the part of the CalDAV client the mirror needs.
type calendarClient interface {
	IsConfigured() bool
	PutCalendar(ctx context.Context, uid string, cal *ical.Calendar) error
	Delete(ctx context.Context, uid string) error
}

// CalendarService mirrors local events to a CalDAV calendar. A series is
// pushed as one object holding the root and all of its overrides. Mirror
// failures are logged and never fail the local write.
type CalendarService struct {
	store    storage.Store
	client   calendarClient
	timezone *time.Location
	log      *logger.Logger
}

// NewCalendarService creates a new calendar service
func NewCalendarService(s storage.Store, client calendarClient, tz *time.Location, log *logger.Logger) *CalendarService {
	if tz == nil {
		tz = time.UTC
	}
	return &CalendarService{
		store:    s,
		client:   client,
		timezone: tz,
		log:      log.WithComponent("caldav"),
	}
}

// IsConfigured returns true if CalDAV client is configured
func (s *CalendarService) IsConfigured() bool {
	return s != nil && s.client != nil && s.client.IsConfigured()
}

// EventChanged pushes the object that contains ev: its series when ev is a
// root or an override, otherwise ev alone.
func (s *CalendarService) EventChanged(ctx context.Context, ev domain.Event) {
	if !s.IsConfigured() {
		return
	}

	root := ev
	if ev.IsOverride() {
		parent, err := s.store.GetEvent(ctx, *ev.ParentEventID)
		if err != nil {
			s.log.Warnw("CalDAV sync: load series", "event_id", ev.ID, "error", err)
			return
		}
		if parent == nil {
			s.log.Debugw("CalDAV sync: override without series", "event_id", ev.ID)
			return
		}
		root = *parent
	}

	events := []domain.Event{root}
	if root.IsRecurring() {
		overrides, err := s.store.ListOverrides(ctx, root.ID)
		if err != nil {
			s.log.Warnw("CalDAV sync: list overrides", "series_id", root.ID, "error", err)
			return
		}
		events = append(events, overrides...)
	}

	cal := ics.NewCalendar(events, s.timezone, time.Now())
	if err := s.client.PutCalendar(ctx, root.UID, cal); err != nil {
		s.log.Warnw("CalDAV sync failed", "uid", root.UID, "error", err)
		return
	}
	s.log.Debugw("CalDAV object written", "uid", root.UID, "components", len(events))
}

// EventDeleted removes the object of a deleted root or standalone event.
func (s *CalendarService) EventDeleted(ctx context.Context, uid string) {
	if !s.IsConfigured() {
		return
	}
	if err := s.client.Delete(ctx, uid); err != nil {
		s.log.Warnw("CalDAV delete failed", "uid", uid, "error", err)
	}
}
