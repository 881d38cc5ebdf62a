package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tazhate/familycal/internal/domain"
)

// DerivedEvents maintains the arrival and drive events of occurrences.
type DerivedEvents struct {
	store Store
}

func NewDerivedEvents(store Store) *DerivedEvents {
	return &DerivedEvents{store: store}
}

// Plan returns the derived events occ needs, without ids. Arrival spans
// [arrival, start) and only exists when the arrival time is before the
// start. Drive needs a positive duration and a driver; it ends at the
// arrival event if there is one, else at the start.
func Plan(occ *domain.Occurrence, settings domain.AdditionalSettings, driverID string) []*domain.Event {
	var planned []*domain.Event

	driveEnd := occ.Start
	if settings.ArrivalTime != nil {
		at := settings.ArrivalTime.On(domain.DateOf(occ.Start), occ.Start.Location())
		if at.Before(occ.Start) {
			planned = append(planned, derivedTemplate(occ, domain.DerivedArrival, "Прибытие: "+occ.Title, at, occ.Start))
			driveEnd = at
		}
	}

	if settings.DriveMinutes > 0 && driverID != "" {
		start := driveEnd.Add(-time.Duration(settings.DriveMinutes) * time.Minute)
		planned = append(planned, derivedTemplate(occ, domain.DerivedDrive, "Дорога: "+occ.Title, start, driveEnd))
	}
	return planned
}

func derivedTemplate(occ *domain.Occurrence, kind domain.DerivedKind, title string, start, end time.Time) *domain.Event {
	var createdBy string
	if occ.Event != nil {
		createdBy = occ.Event.CreatedBy
	}
	return &domain.Event{
		FamilyID:      occ.FamilyID,
		CreatedBy:     createdBy,
		ParentEventID: occ.ID.ParentID,
		InstanceDate:  occ.ID.Date,
		DerivedKind:   kind,
		Title:         title,
		Location:      occ.Location,
		Start:         start,
		End:           end,
	}
}

// Ensure makes sure the planned derived events of occ exist and returns them.
// Creation relies on the store's uniqueness per (parent, date, kind), so a
// concurrent caller that wins the insert is read back instead of duplicated.
func (d *DerivedEvents) Ensure(ctx context.Context, occ *domain.Occurrence, settings domain.AdditionalSettings, driverID string) ([]*domain.Event, error) {
	const op = "derived.ensure"

	var out []*domain.Event
	for _, p := range Plan(occ, settings, driverID) {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		existing, err := d.store.FindDerivedEvent(ctx, p.ParentEventID, p.InstanceDate, p.DerivedKind)
		if err != nil {
			return out, domain.StoreFailure(op, err)
		}
		if existing == nil {
			existing, err = d.create(ctx, p, occ, driverID)
			if err != nil {
				return out, domain.StoreFailure(op, err)
			}
		}
		if existing != nil && !existing.IsDeleted {
			out = append(out, existing)
		}
	}
	return out, nil
}

func (d *DerivedEvents) create(ctx context.Context, p *domain.Event, occ *domain.Occurrence, driverID string) (*domain.Event, error) {
	p.ID = uuid.NewString()

	var assignments []domain.Assignment
	switch p.DerivedKind {
	case domain.DerivedDrive:
		assignments = []domain.Assignment{{EventID: p.ID, MemberID: driverID, IsDriverHelper: true}}
	default:
		for _, a := range occ.Assignments {
			assignments = append(assignments, domain.Assignment{EventID: p.ID, MemberID: a.MemberID})
		}
	}

	var created bool
	err := d.store.InTx(ctx, func(tx Store) error {
		var err error
		created, err = tx.InsertDerivedEvent(ctx, p)
		if err != nil || !created {
			return err
		}
		return tx.ReplaceAssignments(ctx, p.ID, assignments)
	})
	if err != nil {
		return nil, err
	}
	if created {
		return p, nil
	}
	return d.store.FindDerivedEvent(ctx, p.ParentEventID, p.InstanceDate, p.DerivedKind)
}

// Clear hard-deletes the derived events of one (parent, date) scope so they
// can be regenerated.
func (d *DerivedEvents) Clear(ctx context.Context, parentID string, date domain.Date) error {
	return domain.StoreFailure("derived.clear", d.store.DeleteDerivedEvents(ctx, parentID, date))
}

// SetDeleted flags the derived events of one (parent, date) scope.
func (d *DerivedEvents) SetDeleted(ctx context.Context, parentID string, date domain.Date, deleted bool) error {
	return domain.StoreFailure("derived.set_deleted", d.store.SetDerivedDeleted(ctx, parentID, date, deleted))
}

// List returns the visible derived events of one scope.
func (d *DerivedEvents) List(ctx context.Context, parentID string, date domain.Date) ([]*domain.Event, error) {
	all, err := d.store.ListDerivedEvents(ctx, parentID, date)
	if err != nil {
		return nil, domain.StoreFailure("derived.list", err)
	}
	var out []*domain.Event
	for _, e := range all {
		if !e.IsDeleted {
			out = append(out, e)
		}
	}
	return out, nil
}
