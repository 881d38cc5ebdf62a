package service

import (
	"context"
	"sort"
	"time"

	"github.com/tazhate/familycal/internal/domain"
	"github.com/tazhate/familycal/internal/recurrence"
)

// Resolver turns a recurring parent into the visible occurrences of a window
// by overlaying its persisted exceptions on the expanded rule.
type Resolver struct {
	store    Store
	maxCount int
}

func NewResolver(store Store, maxCount int) *Resolver {
	if maxCount <= 0 {
		maxCount = recurrence.DefaultMaxCount
	}
	return &Resolver{store: store, maxCount: maxCount}
}

// Resolve returns the occurrences of parent on dates from..to (inclusive, in
// the parent's location), ordered by start. Exceptions are read once, before
// the merge.
func (r *Resolver) Resolve(ctx context.Context, parent *domain.Event, from, to time.Time) ([]*domain.Occurrence, error) {
	const op = "resolver.resolve"
	if !parent.IsRecurringParent || parent.Rule == nil {
		return nil, domain.Validation(op, "event is not a recurring series")
	}

	loc := parent.Start.Location()
	fromDate := domain.DateOf(from.In(loc))
	toDate := domain.DateOf(to.In(loc))

	instances := recurrence.Expand(recurrence.AnchorOf(parent), parent.Rule, from, to, r.maxCount)
	if len(instances) == 0 {
		return nil, nil
	}

	exceptions, err := r.store.ListExceptions(ctx, parent.ID, fromDate, toDate)
	if err != nil {
		return nil, domain.StoreFailure(op, err)
	}

	parentAssignments, err := r.store.ListAssignments(ctx, parent.ID)
	if err != nil {
		return nil, domain.StoreFailure(op, err)
	}

	own := make(map[string][]domain.Assignment)
	for _, ex := range exceptions {
		if ex.Suppresses() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		as, err := r.store.ListAssignments(ctx, ex.ID)
		if err != nil {
			return nil, domain.StoreFailure(op, err)
		}
		own[ex.ID] = as
	}

	return Merge(parent, parentAssignments, instances, exceptions, own), nil
}

// Merge overlays exceptions on the expanded instances of parent. A deletion
// marker or soft-deleted exception drops its date, any other exception
// replaces the virtual instance, and the remaining dates become virtual
// occurrences carrying the parent's assignments. Exceptions on dates the
// rule no longer produces are ignored. ownAssignments is keyed by exception
// id; an exception without rows shows the parent's set.
func Merge(parent *domain.Event, parentAssignments []domain.Assignment, instances []recurrence.Instance,
	exceptions []*domain.Event, ownAssignments map[string][]domain.Assignment) []*domain.Occurrence {

	byDate := make(map[domain.Date]*domain.Event, len(exceptions))
	for _, ex := range exceptions {
		byDate[ex.InstanceDate] = ex
	}

	out := make([]*domain.Occurrence, 0, len(instances))
	for _, inst := range instances {
		ex, ok := byDate[inst.Date]
		switch {
		case ok && ex.Suppresses():
			continue
		case ok:
			out = append(out, exceptionOccurrence(parent, ex, ownAssignments[ex.ID], parentAssignments))
		default:
			out = append(out, virtualOccurrence(parent, inst, parentAssignments))
		}
	}

	sortOccurrences(out)
	return out
}

func virtualOccurrence(parent *domain.Event, inst recurrence.Instance, parentAssignments []domain.Assignment) *domain.Occurrence {
	return &domain.Occurrence{
		Kind:        domain.OccurrenceVirtual,
		ID:          domain.NewInstanceID(parent.ID, inst.Date),
		FamilyID:    parent.FamilyID,
		Title:       parent.Title,
		Description: parent.Description,
		Location:    parent.Location,
		Start:       inst.Start,
		End:         inst.End,
		Event:       parent,
		Settings:    parent.Rule.Settings,
		Assignments: parentAssignments,
	}
}

func exceptionOccurrence(parent, ex *domain.Event, own, parentAssignments []domain.Assignment) *domain.Occurrence {
	assignments := own
	if len(assignments) == 0 {
		assignments = parentAssignments
	}
	var settings domain.AdditionalSettings
	switch {
	case ex.Settings != nil:
		settings = *ex.Settings
	case parent.Rule != nil:
		settings = parent.Rule.Settings
	}
	return &domain.Occurrence{
		Kind:        domain.OccurrenceException,
		ID:          domain.NewInstanceID(parent.ID, ex.InstanceDate),
		FamilyID:    ex.FamilyID,
		Title:       ex.Title,
		Description: ex.Description,
		Location:    ex.Location,
		Start:       ex.Start,
		End:         ex.End,
		Event:       ex,
		Settings:    settings,
		Assignments: assignments,
	}
}

func singleOccurrence(e *domain.Event, assignments []domain.Assignment) *domain.Occurrence {
	var settings domain.AdditionalSettings
	if e.Settings != nil {
		settings = *e.Settings
	}
	return &domain.Occurrence{
		Kind:        domain.OccurrenceSingle,
		ID:          domain.NewInstanceID(e.ID, domain.Date{}),
		FamilyID:    e.FamilyID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Start:       e.Start,
		End:         e.End,
		Event:       e,
		Settings:    settings,
		Assignments: assignments,
	}
}

func sortOccurrences(occs []*domain.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		if !occs[i].Start.Equal(occs[j].Start) {
			return occs[i].Start.Before(occs[j].Start)
		}
		return occs[i].ID.String() < occs[j].ID.String()
	})
}
