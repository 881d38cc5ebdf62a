package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-ical"
	"github.com/tazhate/familycal/internal/domain"
	"github.com/tazhate/familycal/internal/log"
	"github.com/tazhate/familycal/internal/recurrence"
)

const productID = "-//FamilyCal//Series//EN"

// Publisher stores calendar objects on a remote calendar (CalDAV).
type Publisher interface {
	IsConfigured() bool
	PutCalendar(ctx context.Context, uid string, cal *ical.Calendar) error
	DeleteCalendar(ctx context.Context, uid string) error
}

// CalendarService exports resolved occurrences as iCalendar and mirrors
// series to an external calendar.
type CalendarService struct {
	store     Store
	series    *SeriesService
	publisher Publisher
}

// NewCalendarService creates a calendar service. publisher may be nil.
func NewCalendarService(store Store, series *SeriesService, publisher Publisher) *CalendarService {
	return &CalendarService{store: store, series: series, publisher: publisher}
}

// IsConfigured returns true if an external calendar is configured
func (s *CalendarService) IsConfigured() bool {
	return s.publisher != nil && s.publisher.IsConfigured()
}

// FeedICS renders the family's resolved occurrences and their derived events
// on dates from..to as an iCalendar document.
func (s *CalendarService) FeedICS(ctx context.Context, familyID string, from, to time.Time) ([]byte, error) {
	occs, err := s.series.ResolveOccurrences(ctx, familyID, from, to)
	if err != nil {
		return nil, err
	}

	cal := newCalendar()
	stamp := time.Now().UTC()
	for _, occ := range occs {
		cal.Children = append(cal.Children, occurrenceEvent(occ, stamp).Component)
		for _, d := range occ.Derived {
			cal.Children = append(cal.Children, plainEvent(d.ID, d, stamp).Component)
		}
	}
	return encodeCalendar(cal)
}

// SeriesCalendar builds the CalDAV object of a series: a master VEVENT with
// RRULE, EXDATE for deleted dates and one RECURRENCE-ID override per live
// exception. A one-off event becomes a single VEVENT.
func SeriesCalendar(parent *domain.Event, exceptions []*domain.Event) (*ical.Calendar, error) {
	cal := newCalendar()
	stamp := time.Now().UTC()

	master := plainEvent(parent.ID, parent, stamp)
	if parent.IsRecurringParent && parent.Rule != nil {
		rule, err := recurrence.RRuleString(parent.Rule, parent.Start)
		if err != nil {
			return nil, err
		}
		// Set raw: SetText would escape the commas of BYDAY.
		rrule := ical.NewProp(ical.PropRecurrenceRule)
		rrule.Value = rule
		master.Props.Set(rrule)

		exceptions = generated(parent, exceptions)
		for _, ex := range exceptions {
			if !ex.Suppresses() {
				continue
			}
			exdate := ical.NewProp(ical.PropExceptionDates)
			exdate.SetDateTime(ex.InstanceDate.At(parent.Start).UTC())
			master.Props.Add(exdate)
		}
	}
	cal.Children = append(cal.Children, master.Component)

	for _, ex := range exceptions {
		if ex.Suppresses() {
			continue
		}
		override := plainEvent(parent.ID, ex, stamp)
		override.Props.SetDateTime(ical.PropRecurrenceID, ex.InstanceDate.At(parent.Start).UTC())
		cal.Children = append(cal.Children, override.Component)
	}
	return cal, nil
}

// PublishSeries pushes one series to the external calendar.
func (s *CalendarService) PublishSeries(ctx context.Context, parentID string) error {
	const op = "calendar.publish"
	if !s.IsConfigured() {
		return fmt.Errorf("CalDAV not configured")
	}

	parent, err := s.store.GetEvent(ctx, parentID)
	if err != nil {
		return domain.StoreFailure(op, err)
	}
	if parent == nil {
		return domain.NotFound(op, "series not found")
	}

	var exceptions []*domain.Event
	if parent.IsRecurringParent {
		if exceptions, err = s.store.ListAllExceptions(ctx, parent.ID); err != nil {
			return domain.StoreFailure(op, err)
		}
	}

	cal, err := SeriesCalendar(parent, exceptions)
	if err != nil {
		return err
	}
	if err := s.publisher.PutCalendar(ctx, eventUID(parent.ID), cal); err != nil {
		return fmt.Errorf("publish %s: %w", parent.ID, err)
	}
	return nil
}

// UnpublishSeries removes a series from the external calendar.
func (s *CalendarService) UnpublishSeries(ctx context.Context, parentID string) error {
	if !s.IsConfigured() {
		return nil
	}
	return s.publisher.DeleteCalendar(ctx, eventUID(parentID))
}

// SyncResult contains sync operation results
type SyncResult struct {
	Published int
	Errors    []string
}

// SyncFamily publishes every series of a family. Failures are collected and
// the remaining series are still published.
func (s *CalendarService) SyncFamily(ctx context.Context, familyID string) (*SyncResult, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("CalDAV not configured")
	}

	parents, err := s.store.ListRecurringParents(ctx, familyID)
	if err != nil {
		return nil, domain.StoreFailure("calendar.sync", err)
	}

	result := &SyncResult{}
	for _, p := range parents {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.PublishSeries(ctx, p.ID); err != nil {
			log.Error("publish series", err, "series", p.ID)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", p.ID, err))
			continue
		}
		result.Published++
	}
	return result, nil
}

// generated drops exceptions on dates the rule no longer produces.
func generated(parent *domain.Event, exceptions []*domain.Event) []*domain.Event {
	anchor := recurrence.AnchorOf(parent)
	var out []*domain.Event
	for _, ex := range exceptions {
		if _, ok := recurrence.InstanceOn(anchor, parent.Rule, ex.InstanceDate); ok {
			out = append(out, ex)
		}
	}
	return out
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

func eventUID(id string) string {
	return id + "@familycal"
}

func plainEvent(uidSource string, e *domain.Event, stamp time.Time) *ical.Event {
	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, eventUID(uidSource))
	vevent.Props.SetText(ical.PropSummary, e.Title)
	if e.Description != "" {
		vevent.Props.SetText(ical.PropDescription, e.Description)
	}
	if e.Location != "" {
		vevent.Props.SetText(ical.PropLocation, e.Location)
	}
	vevent.Props.SetDateTime(ical.PropDateTimeStart, e.Start.UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeEnd, e.End.UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	return vevent
}

func occurrenceEvent(occ *domain.Occurrence, stamp time.Time) *ical.Event {
	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, eventUID(occ.ID.String()))
	vevent.Props.SetText(ical.PropSummary, occ.Title)
	if occ.Description != "" {
		vevent.Props.SetText(ical.PropDescription, occ.Description)
	}
	if occ.Location != "" {
		vevent.Props.SetText(ical.PropLocation, occ.Location)
	}
	vevent.Props.SetDateTime(ical.PropDateTimeStart, occ.Start.UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeEnd, occ.End.UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	return vevent
}

func encodeCalendar(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}
