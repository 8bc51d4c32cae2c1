package ics

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"github.com/tazhate/familyplanner/internal/domain"
	"github.com/tazhate/familyplanner/internal/recurrence"
)

const productID = "-//FamilyPlanner//Calendar//EN"

// NewCalendar builds a VCALENDAR holding every event. Overrides share their
// series' UID and carry a RECURRENCE-ID. All-day dates are written in the
// event's own zone, falling back to loc.
func NewCalendar(events []domain.Event, loc *time.Location, stamp time.Time) *ical.Calendar {
	uids := make(map[int64]string, len(events))
	for _, ev := range events {
		uids[ev.ID] = ev.UID
	}

	cal := newCalendar()
	for _, ev := range events {
		parentUID := ""
		if ev.IsOverride() {
			parentUID = uids[*ev.ParentEventID]
		}
		cal.Children = append(cal.Children, EventComponent(ev, parentUID, loc, stamp))
	}
	return cal
}

// SingleEventCalendar wraps one event for a CalDAV object.
func SingleEventCalendar(ev domain.Event, parentUID string, loc *time.Location, stamp time.Time) *ical.Calendar {
	cal := newCalendar()
	cal.Children = append(cal.Children, EventComponent(ev, parentUID, loc, stamp))
	return cal
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

// EventComponent converts an event to a VEVENT.
func EventComponent(ev domain.Event, parentUID string, loc *time.Location, stamp time.Time) *ical.Component {
	loc = eventLocation(ev, loc)

	vevent := ical.NewEvent()
	uid := ev.UID
	if ev.IsOverride() && parentUID != "" {
		uid = parentUID
	}
	vevent.Props.SetText(ical.PropUID, uid)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	vevent.Props.SetText(ical.PropSummary, ev.Title)

	if ev.Description != "" {
		vevent.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		vevent.Props.SetText(ical.PropLocation, ev.Location)
	}
	if ev.Category != "" {
		vevent.Props.SetText(ical.PropCategories, ev.Category)
	}

	setTime(vevent.Props, ical.PropDateTimeStart, ev.StartAt, ev.AllDay, loc)
	setTime(vevent.Props, ical.PropDateTimeEnd, ev.EndAt, ev.AllDay, loc)

	if ev.IsRecurring() {
		if r, err := recurrence.Parse(*ev.RecurrenceRule); err == nil {
			vevent.Props.Set(&ical.Prop{
				Name:   ical.PropRecurrenceRule,
				Params: make(ical.Params),
				Value:  r.Line(),
			})
		}
		for _, ex := range ev.Exdates {
			addTime(vevent.Props, ical.PropExceptionDates, ex, ev.AllDay, loc)
		}
	}

	if ev.IsOverride() && ev.OriginalOccurrenceStart != nil {
		setTime(vevent.Props, ical.PropRecurrenceID, *ev.OriginalOccurrenceStart, ev.AllDay, loc)
	}

	return vevent.Component
}

func eventLocation(ev domain.Event, fallback *time.Location) *time.Location {
	if ev.Timezone != "" {
		if l, err := time.LoadLocation(ev.Timezone); err == nil {
			return l
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

func timeProp(name string, t time.Time, allDay bool, loc *time.Location) *ical.Prop {
	prop := ical.NewProp(name)
	if allDay {
		prop.SetDate(t.In(loc))
	} else {
		prop.SetDateTime(t.UTC())
	}
	return prop
}

func setTime(props ical.Props, name string, t time.Time, allDay bool, loc *time.Location) {
	props.Set(timeProp(name, t, allDay, loc))
}

func addTime(props ical.Props, name string, t time.Time, allDay bool, loc *time.Location) {
	props.Add(timeProp(name, t, allDay, loc))
}

// Write encodes the calendar.
func Write(w io.Writer, cal *ical.Calendar) error {
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}
