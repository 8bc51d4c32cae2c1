package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tazhate/familyplanner/internal/domain"
	"github.com/tazhate/familyplanner/internal/errdef"
	"github.com/tazhate/familyplanner/internal/ics"
	"github.com/tazhate/familyplanner/internal/logger"
	"github.com/tazhate/familyplanner/internal/metrics"
	"github.com/tazhate/familyplanner/internal/storage"
)

// DefaultImportMaxBytes bounds an uploaded document.
const DefaultImportMaxBytes = 5 << 20

// ImportResult summarizes one import.
type ImportResult struct {
	Events     []domain.Event `json:"events"`
	Skipped    int            `json:"skipped"`    // blocks without a usable start
	Truncated  int            `json:"truncated"`  // blocks past the draft cap
	Duplicates int            `json:"duplicates"` // UIDs already stored
}

type ImportService struct {
	store    storage.Store
	calendar *CalendarService
	metrics  *metrics.Metrics
	timezone *time.Location
	maxBytes int64
	log      *logger.Logger
}

func NewImportService(s storage.Store, calendar *CalendarService, m *metrics.Metrics, tz *time.Location, maxBytes int64, log *logger.Logger) *ImportService {
	if tz == nil {
		tz = time.UTC
	}
	if maxBytes <= 0 {
		maxBytes = DefaultImportMaxBytes
	}
	return &ImportService{
		store:    s,
		calendar: calendar,
		metrics:  m,
		timezone: tz,
		maxBytes: maxBytes,
		log:      log.WithComponent("import"),
	}
}

// Import parses a calendar document and stores every draft in one
// transaction. A document that yields no new events, including one whose
// events are all already stored, is rejected and nothing is stored.
func (s *ImportService) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, errdef.NewBadRequest("document exceeds %d bytes", s.maxBytes)
	}

	parsed := ics.Parse(string(data), s.timezone)
	if len(parsed.Drafts) == 0 {
		return nil, errdef.NewBadRequest("no events found in document")
	}

	res := &ImportResult{
		Events:    make([]domain.Event, 0, len(parsed.Drafts)),
		Skipped:   parsed.Skipped,
		Truncated: parsed.Truncated,
	}
	err = s.store.Atomic(ctx, func(tx storage.Store) error {
		seen := make(map[string]bool, len(parsed.Drafts))
		for _, d := range parsed.Drafts {
			ev := draftEvent(d, s.timezone)
			if ev.UID != "" {
				if seen[ev.UID] {
					// Same UID twice in one document: keep both, the second one
					// under a fresh UID.
					ev.UID = ""
				} else {
					existing, err := tx.GetEventByUID(ctx, ev.UID)
					if err != nil {
						return err
					}
					if existing != nil {
						res.Duplicates++
						continue
					}
					seen[ev.UID] = true
				}
			}
			if err := tx.CreateEvent(ctx, &ev); err != nil {
				return err
			}
			res.Events = append(res.Events, ev)
		}
		if len(res.Events) == 0 {
			return errdef.NewBadRequest("no new events in document: %d already imported", res.Duplicates)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import events: %w", err)
	}

	s.log.Infow("Calendar imported",
		"created", len(res.Events),
		"skipped", res.Skipped,
		"truncated", res.Truncated,
		"duplicates", res.Duplicates,
	)
	s.metrics.EventsImported(len(res.Events))
	for _, ev := range res.Events {
		s.calendar.EventChanged(ctx, ev)
	}
	return res, nil
}

func draftEvent(d ics.Draft, tz *time.Location) domain.Event {
	title := d.Title
	if title == "" {
		title = "(no title)"
	}
	return domain.Event{
		UID:         d.UID,
		Title:       title,
		Description: d.Description,
		Location:    d.Location,
		Tags:        []string{},
		StartAt:     d.StartAt.UTC().Truncate(time.Second),
		EndAt:       d.EndAt.UTC().Truncate(time.Second),
		AllDay:      d.AllDay,
		Timezone:    tz.String(),
		Exdates:     []time.Time{},
		Reminders:   []domain.Reminder{},
	}
}
