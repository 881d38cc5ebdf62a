package domain

import "time"

// DeletionSentinel is the reserved title of a deletion marker.
const DeletionSentinel = "__deleted__"

// DerivedKind tags a secondary event generated for an occurrence.
type DerivedKind string

const (
	DerivedNone    DerivedKind = ""
	DerivedArrival DerivedKind = "arrival"
	DerivedDrive   DerivedKind = "drive"
)

// Event is the persisted record behind recurring parents, exceptions,
// derived events and plain one-off events.
type Event struct {
	ID        string
	FamilyID  string
	CreatedBy string

	ParentEventID     string // empty unless exception or derived
	InstanceDate      Date   // zero for parents and one-off events
	IsRecurringParent bool
	IsException       bool
	IsDeleted         bool
	DerivedKind       DerivedKind

	Rule *RecurrenceRule // only on recurring parents

	// Settings overrides Rule.Settings for one exception, or carries the
	// settings of a one-off event. nil inherits; a zero value clears.
	Settings *AdditionalSettings

	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDeletionMarker reports whether e is an exception that only suppresses
// its date.
func (e *Event) IsDeletionMarker() bool {
	return e.IsException && e.Title == DeletionSentinel
}

// Suppresses reports whether the exception hides its date from resolved
// output.
func (e *Event) Suppresses() bool {
	return e.IsDeletionMarker() || e.IsDeleted
}

func (e *Event) IsDerived() bool {
	return e.DerivedKind != DerivedNone
}

func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// InstanceID returns the composite id of an exception, or the bare id of any
// other event.
func (e *Event) InstanceID() InstanceID {
	if e.IsException {
		return InstanceID{ParentID: e.ParentEventID, Date: e.InstanceDate}
	}
	return InstanceID{ParentID: e.ID}
}

// Assignment links a family member to an event.
type Assignment struct {
	EventID        string
	MemberID       string
	IsDriverHelper bool
}

// AssignmentSet is the member list and optional driver given with a create or
// edit call.
type AssignmentSet struct {
	Members  []string
	DriverID string
}

// For returns the assignment rows of the set for eventID.
func (s AssignmentSet) For(eventID string) []Assignment {
	return BuildAssignments(eventID, s.Members, s.DriverID)
}

// Rebase copies assignments onto eventID.
func Rebase(assignments []Assignment, eventID string) []Assignment {
	out := make([]Assignment, len(assignments))
	for i, a := range assignments {
		a.EventID = eventID
		out[i] = a
	}
	return out
}

// BuildAssignments turns a member list and optional driver into assignment
// rows for eventID. The driver is added when missing from members.
func BuildAssignments(eventID string, members []string, driverID string) []Assignment {
	seen := make(map[string]bool, len(members)+1)
	var out []Assignment
	for _, m := range members {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, Assignment{EventID: eventID, MemberID: m, IsDriverHelper: m == driverID})
	}
	if driverID != "" && !seen[driverID] {
		out = append(out, Assignment{EventID: eventID, MemberID: driverID, IsDriverHelper: true})
	}
	return out
}

// DriverOf returns the member flagged as driver helper, or "".
func DriverOf(assignments []Assignment) string {
	for _, a := range assignments {
		if a.IsDriverHelper {
			return a.MemberID
		}
	}
	return ""
}

// EventChanges is a partial update. Nil fields are left untouched.
type EventChanges struct {
	Title       *string
	Description *string
	Location    *string
	Start       *time.Time
	End         *time.Time
	Settings    *AdditionalSettings
}

func (c EventChanges) IsEmpty() bool {
	return c.Title == nil && c.Description == nil && c.Location == nil &&
		c.Start == nil && c.End == nil && c.Settings == nil
}

// ChangesTiming reports whether applying c can move derived events.
func (c EventChanges) ChangesTiming() bool {
	return c.Start != nil || c.End != nil || c.Settings != nil
}

// Apply writes the set fields onto e. Settings go to the rule of a recurring
// parent and to the event itself otherwise.
func (c EventChanges) Apply(e *Event) {
	if c.Title != nil {
		e.Title = *c.Title
	}
	if c.Description != nil {
		e.Description = *c.Description
	}
	if c.Location != nil {
		e.Location = *c.Location
	}
	if c.Start != nil {
		e.Start = *c.Start
	}
	if c.End != nil {
		e.End = *c.End
	}
	if c.Settings != nil {
		if e.IsRecurringParent && e.Rule != nil {
			e.Rule.Settings = *c.Settings
		} else {
			e.Settings = c.Settings.Clone()
		}
	}
}

// Validate checks the fields an event must carry after changes are applied.
// Deletion markers are never written through it.
func (e *Event) Validate(op string) error {
	if e.Title == "" {
		return Validation(op, "title is required")
	}
	if e.Title == DeletionSentinel {
		return Validation(op, "title is reserved")
	}
	if e.Start.IsZero() || e.End.IsZero() {
		return Validation(op, "start and end are required")
	}
	if e.End.Before(e.Start) {
		return Validation(op, "end must not be before start")
	}
	return nil
}
