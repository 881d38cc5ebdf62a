package service

import (
	"context"
	"time"

	"github.com/tazhate/familycal/internal/domain"
)

// Store is the persistence port the series services run on.
// Getters return (nil, nil) when the record does not exist.
type Store interface {
	// InTx runs fn against a Store bound to one transaction. The transaction
	// commits when fn returns nil.
	InTx(ctx context.Context, fn func(Store) error) error

	CreateEvent(ctx context.Context, e *domain.Event) error
	UpdateEvent(ctx context.Context, e *domain.Event) error
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListFamilyIDs(ctx context.Context) ([]string, error)
	ListRecurringParents(ctx context.Context, familyID string) ([]*domain.Event, error)
	ListSingleEvents(ctx context.Context, familyID string, from, to time.Time) ([]*domain.Event, error)

	// InsertException reports created=false when an exception for the same
	// (parent, date) already exists.
	InsertException(ctx context.Context, e *domain.Event) (bool, error)
	GetException(ctx context.Context, parentID string, date domain.Date) (*domain.Event, error)
	ListExceptions(ctx context.Context, parentID string, from, to domain.Date) ([]*domain.Event, error)
	ListAllExceptions(ctx context.Context, parentID string) ([]*domain.Event, error)
	DeleteExceptions(ctx context.Context, parentID string) error

	// InsertDerivedEvent reports created=false when a derived event for the
	// same (parent, date, kind) already exists.
	InsertDerivedEvent(ctx context.Context, e *domain.Event) (bool, error)
	FindDerivedEvent(ctx context.Context, parentID string, date domain.Date, kind domain.DerivedKind) (*domain.Event, error)
	ListDerivedEvents(ctx context.Context, parentID string, date domain.Date) ([]*domain.Event, error)
	DeleteDerivedEvents(ctx context.Context, parentID string, date domain.Date) error
	DeleteAllDerivedEvents(ctx context.Context, parentID string) error
	SetDerivedDeleted(ctx context.Context, parentID string, date domain.Date, deleted bool) error

	ListAssignments(ctx context.Context, eventID string) ([]domain.Assignment, error)
	ReplaceAssignments(ctx context.Context, eventID string, assignments []domain.Assignment) error
}
