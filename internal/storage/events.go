package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tazhate/familycal/internal/domain"
)

const eventColumns = `id, family_id, created_by, parent_event_id, instance_date,
	is_recurring_parent, is_exception, is_deleted, derived_kind,
	recurrence_rule, settings, title, description, location,
	start_time, end_time, created_at, updated_at`

// === Events ===

func (s *Storage) CreateEvent(ctx context.Context, e *domain.Event) error {
	_, err := s.insertEvent(ctx, e, false)
	return err
}

func (s *Storage) UpdateEvent(ctx context.Context, e *domain.Event) error {
	rule, settings, err := encodeRule(e)
	if err != nil {
		return err
	}
	e.UpdatedAt = time.Now()

	_, err = s.q.ExecContext(ctx,
		`UPDATE events SET title = ?, description = ?, location = ?, start_time = ?, end_time = ?,
			is_deleted = ?, recurrence_rule = ?, settings = ?, updated_at = ?
		 WHERE id = ?`,
		e.Title, e.Description, e.Location, e.Start.UTC(), e.End.UTC(),
		e.IsDeleted, rule, settings, e.UpdatedAt.UTC(), e.ID,
	)
	if err != nil {
		return fmt.Errorf("update event %s: %w", e.ID, err)
	}
	return nil
}

func (s *Storage) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := s.scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (s *Storage) DeleteEvent(ctx context.Context, id string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

func (s *Storage) ListFamilyIDs(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT DISTINCT family_id FROM events ORDER BY family_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Storage) ListRecurringParents(ctx context.Context, familyID string) ([]*domain.Event, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE family_id = ? AND is_recurring_parent = 1
		 ORDER BY start_time, id`,
		familyID,
	)
}

// ListSingleEvents returns the family's one-off events overlapping [from, to).
func (s *Storage) ListSingleEvents(ctx context.Context, familyID string, from, to time.Time) ([]*domain.Event, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE family_id = ? AND is_recurring_parent = 0 AND is_exception = 0
		   AND derived_kind = '' AND parent_event_id IS NULL AND is_deleted = 0
		   AND start_time < ? AND end_time >= ?
		 ORDER BY start_time, id`,
		familyID, to.UTC(), from.UTC(),
	)
}

// === Exceptions ===

func (s *Storage) InsertException(ctx context.Context, e *domain.Event) (bool, error) {
	e.IsException = true
	return s.insertEvent(ctx, e, true)
}

func (s *Storage) GetException(ctx context.Context, parentID string, date domain.Date) (*domain.Event, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE parent_event_id = ? AND instance_date = ? AND is_exception = 1`,
		parentID, date.String(),
	)
	e, err := s.scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// ListExceptions returns the exceptions of parentID with instance dates in
// [from, to], deletion markers included.
func (s *Storage) ListExceptions(ctx context.Context, parentID string, from, to domain.Date) ([]*domain.Event, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE parent_event_id = ? AND is_exception = 1
		   AND instance_date >= ? AND instance_date <= ?
		 ORDER BY instance_date`,
		parentID, from.String(), to.String(),
	)
}

func (s *Storage) ListAllExceptions(ctx context.Context, parentID string) ([]*domain.Event, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE parent_event_id = ? AND is_exception = 1
		 ORDER BY instance_date`,
		parentID,
	)
}

func (s *Storage) DeleteExceptions(ctx context.Context, parentID string) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM events WHERE parent_event_id = ? AND is_exception = 1`, parentID)
	if err != nil {
		return fmt.Errorf("delete exceptions of %s: %w", parentID, err)
	}
	return nil
}

// === Derived events ===

func (s *Storage) InsertDerivedEvent(ctx context.Context, e *domain.Event) (bool, error) {
	if e.DerivedKind == domain.DerivedNone {
		return false, fmt.Errorf("insert derived event: kind is required")
	}
	return s.insertEvent(ctx, e, true)
}

func (s *Storage) FindDerivedEvent(ctx context.Context, parentID string, date domain.Date, kind domain.DerivedKind) (*domain.Event, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE parent_event_id = ? AND instance_date = ? AND derived_kind = ?`,
		parentID, date.String(), string(kind),
	)
	e, err := s.scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (s *Storage) ListDerivedEvents(ctx context.Context, parentID string, date domain.Date) ([]*domain.Event, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE parent_event_id = ? AND instance_date = ? AND derived_kind <> ''
		 ORDER BY start_time`,
		parentID, date.String(),
	)
}

func (s *Storage) DeleteDerivedEvents(ctx context.Context, parentID string, date domain.Date) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM events WHERE parent_event_id = ? AND instance_date = ? AND derived_kind <> ''`,
		parentID, date.String(),
	)
	if err != nil {
		return fmt.Errorf("delete derived events of %s/%s: %w", parentID, date, err)
	}
	return nil
}

func (s *Storage) DeleteAllDerivedEvents(ctx context.Context, parentID string) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM events WHERE parent_event_id = ? AND derived_kind <> ''`, parentID)
	if err != nil {
		return fmt.Errorf("delete derived events of %s: %w", parentID, err)
	}
	return nil
}

func (s *Storage) SetDerivedDeleted(ctx context.Context, parentID string, date domain.Date, deleted bool) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE events SET is_deleted = ?, updated_at = ?
		 WHERE parent_event_id = ? AND instance_date = ? AND derived_kind <> ''`,
		deleted, time.Now().UTC(), parentID, date.String(),
	)
	if err != nil {
		return fmt.Errorf("flag derived events of %s/%s: %w", parentID, date, err)
	}
	return nil
}

// === Assignments ===

func (s *Storage) ListAssignments(ctx context.Context, eventID string) ([]domain.Assignment, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT event_id, member_id, is_driver_helper FROM assignments
		 WHERE event_id = ? ORDER BY member_id`,
		eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.EventID, &a.MemberID, &a.IsDriverHelper); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceAssignments swaps the assignment set of eventID. An empty slice
// clears it.
func (s *Storage) ReplaceAssignments(ctx context.Context, eventID string, assignments []domain.Assignment) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM assignments WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("clear assignments of %s: %w", eventID, err)
	}
	for _, a := range assignments {
		_, err := s.q.ExecContext(ctx,
			`INSERT INTO assignments (event_id, member_id, is_driver_helper) VALUES (?, ?, ?)
			 ON CONFLICT(event_id, member_id) DO UPDATE SET is_driver_helper = excluded.is_driver_helper`,
			eventID, a.MemberID, a.IsDriverHelper,
		)
		if err != nil {
			return fmt.Errorf("insert assignment %s/%s: %w", eventID, a.MemberID, err)
		}
	}
	return nil
}

// === helpers ===

// insertEvent writes e. With ignoreConflict set, a unique index violation
// leaves the table unchanged and reports created=false.
func (s *Storage) insertEvent(ctx context.Context, e *domain.Event, ignoreConflict bool) (bool, error) {
	if e.ID == "" {
		return false, fmt.Errorf("insert event: id is required")
	}
	rule, settings, err := encodeRule(e)
	if err != nil {
		return false, err
	}

	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	var parent any
	if e.ParentEventID != "" {
		parent = e.ParentEventID
	}

	query := `INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if ignoreConflict {
		query += ` ON CONFLICT DO NOTHING`
	}

	res, err := s.q.ExecContext(ctx, query,
		e.ID, e.FamilyID, e.CreatedBy, parent, e.InstanceDate.String(),
		e.IsRecurringParent, e.IsException, e.IsDeleted, string(e.DerivedKind),
		rule, settings, e.Title, e.Description, e.Location,
		e.Start.UTC(), e.End.UTC(), e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	return n > 0, nil
}

func encodeRule(e *domain.Event) (rule, settings sql.NullString, err error) {
	if e.Rule != nil {
		b, err := json.Marshal(e.Rule)
		if err != nil {
			return rule, settings, fmt.Errorf("encode recurrence rule: %w", err)
		}
		rule = sql.NullString{String: string(b), Valid: true}
	}
	if e.Settings != nil {
		b, err := json.Marshal(e.Settings)
		if err != nil {
			return rule, settings, fmt.Errorf("encode settings: %w", err)
		}
		settings = sql.NullString{String: string(b), Valid: true}
	}
	return rule, settings, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Storage) scanEvent(row rowScanner) (*domain.Event, error) {
	var (
		e                  domain.Event
		parent             sql.NullString
		instanceDate       string
		kind               string
		rule, settings     sql.NullString
		start, end         time.Time
		createdAt, updated time.Time
	)
	err := row.Scan(
		&e.ID, &e.FamilyID, &e.CreatedBy, &parent, &instanceDate,
		&e.IsRecurringParent, &e.IsException, &e.IsDeleted, &kind,
		&rule, &settings, &e.Title, &e.Description, &e.Location,
		&start, &end, &createdAt, &updated,
	)
	if err != nil {
		return nil, err
	}

	e.ParentEventID = parent.String
	e.DerivedKind = domain.DerivedKind(kind)
	e.Start = start.In(s.loc)
	e.End = end.In(s.loc)
	e.CreatedAt = createdAt.In(s.loc)
	e.UpdatedAt = updated.In(s.loc)

	if instanceDate != "" {
		d, err := domain.ParseDate(instanceDate)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		e.InstanceDate = d
	}
	if rule.Valid && strings.TrimSpace(rule.String) != "" {
		e.Rule = &domain.RecurrenceRule{}
		if err := json.Unmarshal([]byte(rule.String), e.Rule); err != nil {
			return nil, fmt.Errorf("event %s: decode recurrence rule: %w", e.ID, err)
		}
	}
	if settings.Valid && strings.TrimSpace(settings.String) != "" {
		e.Settings = &domain.AdditionalSettings{}
		if err := json.Unmarshal([]byte(settings.String), e.Settings); err != nil {
			return nil, fmt.Errorf("event %s: decode settings: %w", e.ID, err)
		}
	}
	return &e, nil
}

func (s *Storage) queryEvents(ctx context.Context, query string, args ...any) ([]*domain.Event, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		e, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
