package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tazhate/familycal/internal/domain"
	"github.com/tazhate/familycal/internal/log"
	"github.com/tazhate/familycal/internal/recurrence"
)

// SeriesService resolves family calendars and applies edits and deletions to
// recurring series and their occurrences.
type SeriesService struct {
	store    Store
	resolver *Resolver
	derived  *DerivedEvents
	locks    *keyLock
	timezone *time.Location
}

// NewSeriesService creates a series service. Window dates without a zone are
// read in tz.
func NewSeriesService(store Store, tz *time.Location, maxCount int) *SeriesService {
	if tz == nil {
		tz = time.UTC
	}
	return &SeriesService{
		store:    store,
		resolver: NewResolver(store, maxCount),
		derived:  NewDerivedEvents(store),
		locks:    newKeyLock(),
		timezone: tz,
	}
}

func (s *SeriesService) Timezone() *time.Location {
	return s.timezone
}

// ResolveOccurrences returns every visible occurrence of the family on dates
// from..to (inclusive), recurring and one-off, ordered by start. Derived events
// are materialized along the way; a failure there is logged and the
// occurrence is still returned.
func (s *SeriesService) ResolveOccurrences(ctx context.Context, familyID string, from, to time.Time) ([]*domain.Occurrence, error) {
	const op = "series.resolve"
	if to.Before(from) {
		return nil, domain.Validation(op, "window end is before window start")
	}

	parents, err := s.store.ListRecurringParents(ctx, familyID)
	if err != nil {
		return nil, domain.StoreFailure(op, err)
	}

	var out []*domain.Occurrence
	for _, p := range parents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		occs, err := s.resolver.Resolve(ctx, p, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, occs...)
	}

	fromDay := domain.DateOf(from.In(s.timezone)).In(s.timezone)
	toDay := domain.DateOf(to.In(s.timezone)).AddDays(1).In(s.timezone)
	singles, err := s.store.ListSingleEvents(ctx, familyID, fromDay, toDay)
	if err != nil {
		return nil, domain.StoreFailure(op, err)
	}
	for _, e := range singles {
		as, err := s.store.ListAssignments(ctx, e.ID)
		if err != nil {
			return nil, domain.StoreFailure(op, err)
		}
		out = append(out, singleOccurrence(e, as))
	}

	for _, occ := range out {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		derived, err := s.derived.Ensure(ctx, occ, occ.Settings, occ.DriverID())
		if err != nil {
			log.Error("ensure derived events", err, "occurrence", occ.ID.String())
			continue
		}
		occ.Derived = derived
	}

	sortOccurrences(out)
	return out, nil
}

// GetOccurrence resolves a single composite id. A bare id names a one-off
// event.
func (s *SeriesService) GetOccurrence(ctx context.Context, id domain.InstanceID) (*domain.Occurrence, error) {
	const op = "series.get_occurrence"

	if !id.HasDate() {
		e, err := s.store.GetEvent(ctx, id.ParentID)
		if err != nil {
			return nil, domain.StoreFailure(op, err)
		}
		if e == nil || e.IsException || e.IsDerived() {
			return nil, domain.NotFound(op, "event not found")
		}
		if e.IsRecurringParent {
			return nil, domain.Validation(op, "id names a series, not an occurrence")
		}
		as, err := s.store.ListAssignments(ctx, e.ID)
		if err != nil {
			return nil, domain.StoreFailure(op, err)
		}
		occ := singleOccurrence(e, as)
		if occ.Derived, err = s.derived.List(ctx, e.ID, domain.Date{}); err != nil {
			return nil, err
		}
		return occ, nil
	}

	parent, err := s.loadParent(ctx, s.store, op, id.ParentID)
	if err != nil {
		return nil, err
	}
	day := id.Date.In(parent.Start.Location())
	occs, err := s.resolver.Resolve(ctx, parent, day, day)
	if err != nil {
		return nil, err
	}
	for _, occ := range occs {
		if occ.ID == id {
			if occ.Derived, err = s.derived.List(ctx, parent.ID, id.Date); err != nil {
				return nil, err
			}
			return occ, nil
		}
	}
	return nil, domain.NotFound(op, "occurrence not found")
}

// ListSeries returns the recurring parents of a family.
func (s *SeriesService) ListSeries(ctx context.Context, familyID string) ([]*domain.Event, error) {
	parents, err := s.store.ListRecurringParents(ctx, familyID)
	return parents, domain.StoreFailure("series.list", err)
}

// CreateSeries persists a recurring parent built from template and rule, with
// the given members and optional driver assigned.
func (s *SeriesService) CreateSeries(ctx context.Context, template *domain.Event, rule *domain.RecurrenceRule, members []string, driverID string) (*domain.Event, error) {
	const op = "series.create"
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	e, err := newEventFrom(op, template)
	if err != nil {
		return nil, err
	}
	e.IsRecurringParent = true
	e.Rule = rule.Clone()

	err = s.store.InTx(ctx, func(tx Store) error {
		if err := tx.CreateEvent(ctx, e); err != nil {
			return err
		}
		return tx.ReplaceAssignments(ctx, e.ID, domain.BuildAssignments(e.ID, members, driverID))
	})
	if err != nil {
		return nil, domain.StoreFailure(op, err)
	}
	return e, nil
}

// CreateSingle persists a one-off event.
func (s *SeriesService) CreateSingle(ctx context.Context, template *domain.Event, members []string, driverID string) (*domain.Event, error) {
	const op = "series.create_single"
	e, err := newEventFrom(op, template)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx Store) error {
		if err := tx.CreateEvent(ctx, e); err != nil {
			return err
		}
		return tx.ReplaceAssignments(ctx, e.ID, domain.BuildAssignments(e.ID, members, driverID))
	})
	if err != nil {
		return nil, domain.StoreFailure(op, err)
	}
	return e, nil
}

func newEventFrom(op string, template *domain.Event) (*domain.Event, error) {
	if template == nil {
		return nil, domain.Validation(op, "event is required")
	}
	if template.FamilyID == "" {
		return nil, domain.Validation(op, "family is required")
	}
	if err := template.Validate(op); err != nil {
		return nil, err
	}
	if template.Settings != nil && template.Settings.DriveMinutes < 0 {
		return nil, domain.Validation(op, "driveMinutes must not be negative")
	}

	e := &domain.Event{
		ID:          template.ID,
		FamilyID:    template.FamilyID,
		CreatedBy:   template.CreatedBy,
		Title:       template.Title,
		Description: template.Description,
		Location:    template.Location,
		Start:       template.Start,
		End:         template.End,
	}
	if template.Settings != nil {
		e.Settings = template.Settings.Clone()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return e, nil
}

// EditInstance overrides one occurrence of a series. The first edit of a
// date materializes an exception copied from the parent; later edits update
// it, and editing a deleted date restores it. Derived events of the date are
// regenerated.
func (s *SeriesService) EditInstance(ctx context.Context, parentID string, date domain.Date, changes domain.EventChanges, assign *domain.AssignmentSet) error {
	const op = "series.edit_instance"

	parent, err := s.loadParent(ctx, s.store, op, parentID)
	if err != nil {
		return err
	}
	inst, ok := recurrence.InstanceOn(recurrence.AnchorOf(parent), parent.Rule, date)
	if !ok {
		return domain.Validation(op, "date is not an occurrence of the series")
	}
	if changes.Settings != nil && changes.Settings.DriveMinutes < 0 {
		return domain.Validation(op, "driveMinutes must not be negative")
	}

	unlock := s.locks.Lock(domain.NewInstanceID(parentID, date).String())
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(tx Store) error {
		ex, err := tx.GetException(ctx, parentID, date)
		if err != nil {
			return err
		}

		if ex == nil {
			ex = newException(parent, inst)
			changes.Apply(ex)
			if err := ex.Validate(op); err != nil {
				return err
			}
			created, err := tx.InsertException(ctx, ex)
			if err != nil {
				return err
			}
			if !created {
				return domain.Conflict(op, "occurrence was changed concurrently")
			}
		} else {
			if ex.IsDeletionMarker() {
				ex.Title = parent.Title
			}
			ex.IsDeleted = false
			changes.Apply(ex)
			if err := ex.Validate(op); err != nil {
				return err
			}
			if err := tx.UpdateEvent(ctx, ex); err != nil {
				return err
			}
		}

		if assign != nil {
			if err := tx.ReplaceAssignments(ctx, ex.ID, assign.For(ex.ID)); err != nil {
				return err
			}
		}

		if err := tx.DeleteDerivedEvents(ctx, parentID, date); err != nil {
			return err
		}
		own, err := tx.ListAssignments(ctx, ex.ID)
		if err != nil {
			return err
		}
		parentAssignments, err := tx.ListAssignments(ctx, parentID)
		if err != nil {
			return err
		}
		occ := exceptionOccurrence(parent, ex, own, parentAssignments)
		_, err = NewDerivedEvents(tx).Ensure(ctx, occ, occ.Settings, occ.DriverID())
		return err
	})
	return domain.StoreFailure(op, err)
}

// EditSeries changes a series parent, or a one-off event. When assignments
// are given they replace the parent's set and are copied onto every live
// exception that has no assignments of its own. Derived events are dropped
// for regeneration whenever timing, settings or assignments change.
func (s *SeriesService) EditSeries(ctx context.Context, parentID string, changes domain.EventChanges, assign *domain.AssignmentSet) error {
	const op = "series.edit_series"
	if changes.Settings != nil && changes.Settings.DriveMinutes < 0 {
		return domain.Validation(op, "driveMinutes must not be negative")
	}

	unlock := s.locks.Lock(parentID)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.store.InTx(ctx, func(tx Store) error {
		e, err := tx.GetEvent(ctx, parentID)
		if err != nil {
			return err
		}
		if e == nil {
			return domain.NotFound(op, "series not found")
		}
		if e.IsException || e.IsDerived() {
			return domain.Validation(op, "event is part of a series; edit the occurrence instead")
		}

		changes.Apply(e)
		if err := e.Validate(op); err != nil {
			return err
		}
		if err := tx.UpdateEvent(ctx, e); err != nil {
			return err
		}

		if assign != nil {
			set := assign.For(e.ID)
			if err := tx.ReplaceAssignments(ctx, e.ID, set); err != nil {
				return err
			}
			if err := inheritAssignments(ctx, tx, e.ID, set); err != nil {
				return err
			}
		}

		if changes.ChangesTiming() || assign != nil {
			return tx.DeleteAllDerivedEvents(ctx, e.ID)
		}
		return nil
	})
	return domain.StoreFailure(op, err)
}

// inheritAssignments copies set onto the live exceptions of parentID that have
// no assignment rows. Exceptions with custom assignments keep them.
func inheritAssignments(ctx context.Context, tx Store, parentID string, set []domain.Assignment) error {
	exceptions, err := tx.ListAllExceptions(ctx, parentID)
	if err != nil {
		return err
	}
	for _, ex := range exceptions {
		if ex.Suppresses() {
			continue
		}
		own, err := tx.ListAssignments(ctx, ex.ID)
		if err != nil {
			return err
		}
		if len(own) > 0 {
			continue
		}
		if err := tx.ReplaceAssignments(ctx, ex.ID, domain.Rebase(set, ex.ID)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteInstance hides one occurrence. An existing exception is soft-deleted;
// otherwise a deletion marker is stored. Derived events of the date are
// flagged deleted as well.
func (s *SeriesService) DeleteInstance(ctx context.Context, parentID string, date domain.Date) error {
	const op = "series.delete_instance"

	parent, err := s.loadParent(ctx, s.store, op, parentID)
	if err != nil {
		return err
	}
	inst, ok := recurrence.InstanceOn(recurrence.AnchorOf(parent), parent.Rule, date)
	if !ok {
		return domain.Validation(op, "date is not an occurrence of the series")
	}

	unlock := s.locks.Lock(domain.NewInstanceID(parentID, date).String())
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(tx Store) error {
		ex, err := tx.GetException(ctx, parentID, date)
		if err != nil {
			return err
		}

		switch {
		case ex != nil && !ex.IsDeleted:
			ex.IsDeleted = true
			if err := tx.UpdateEvent(ctx, ex); err != nil {
				return err
			}
		case ex == nil:
			marker := newException(parent, inst)
			marker.Title = domain.DeletionSentinel
			marker.IsDeleted = true
			created, err := tx.InsertException(ctx, marker)
			if err != nil {
				return err
			}
			if !created {
				return domain.Conflict(op, "occurrence was changed concurrently")
			}
		}

		return tx.SetDerivedDeleted(ctx, parentID, date, true)
	})
	return domain.StoreFailure(op, err)
}

// DeleteSeries permanently removes a series: derived events first, then
// exceptions, then the parent. A one-off event id is accepted too.
func (s *SeriesService) DeleteSeries(ctx context.Context, parentID string) error {
	const op = "series.delete_series"

	unlock := s.locks.Lock(parentID)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.store.InTx(ctx, func(tx Store) error {
		e, err := tx.GetEvent(ctx, parentID)
		if err != nil {
			return err
		}
		if e == nil {
			return domain.NotFound(op, "series not found")
		}
		if e.IsException || e.IsDerived() {
			return domain.Validation(op, "event is part of a series; delete the occurrence instead")
		}

		if err := tx.DeleteAllDerivedEvents(ctx, parentID); err != nil {
			return err
		}
		if err := tx.DeleteExceptions(ctx, parentID); err != nil {
			return err
		}
		return tx.DeleteEvent(ctx, parentID)
	})
	return domain.StoreFailure(op, err)
}

func (s *SeriesService) loadParent(ctx context.Context, store Store, op, parentID string) (*domain.Event, error) {
	parent, err := store.GetEvent(ctx, parentID)
	if err != nil {
		return nil, domain.StoreFailure(op, err)
	}
	if parent == nil {
		return nil, domain.NotFound(op, "series not found")
	}
	if !parent.IsRecurringParent || parent.Rule == nil {
		return nil, domain.Validation(op, "event is not a recurring series")
	}
	return parent, nil
}

// newException copies the ownership and display fields of parent onto a new
// exception for one instance.
func newException(parent *domain.Event, inst recurrence.Instance) *domain.Event {
	return &domain.Event{
		ID:            uuid.NewString(),
		FamilyID:      parent.FamilyID,
		CreatedBy:     parent.CreatedBy,
		ParentEventID: parent.ID,
		InstanceDate:  inst.Date,
		IsException:   true,
		Title:         parent.Title,
		Description:   parent.Description,
		Location:      parent.Location,
		Start:         inst.Start,
		End:           inst.End,
	}
}
