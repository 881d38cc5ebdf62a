package domain

import "time"

// OccurrenceKind tells where a resolved occurrence came from.
type OccurrenceKind string

const (
	OccurrenceVirtual   OccurrenceKind = "virtual"
	OccurrenceException OccurrenceKind = "exception"
	OccurrenceSingle    OccurrenceKind = "single"
)

// Occurrence is one visible entry of a resolved calendar window.
type Occurrence struct {
	Kind     OccurrenceKind
	ID       InstanceID
	FamilyID string

	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time

	// Event is the exception or one-off event backing the occurrence; for a
	// virtual occurrence it is the recurring parent.
	Event       *Event
	Settings    AdditionalSettings
	Assignments []Assignment
	Derived     []*Event
}

// Date is the series date for recurring occurrences, which may differ from
// the start day of a moved exception.
func (o *Occurrence) Date() Date {
	if o.ID.HasDate() {
		return o.ID.Date
	}
	return DateOf(o.Start)
}

func (o *Occurrence) DriverID() string {
	return DriverOf(o.Assignments)
}

func (o *Occurrence) MemberIDs() []string {
	ids := make([]string, 0, len(o.Assignments))
	for _, a := range o.Assignments {
		ids = append(ids, a.MemberID)
	}
	return ids
}

// FormatTime returns formatted time for display
func (o *Occurrence) FormatTime() string {
	if o.End.IsZero() || o.End.Equal(o.Start) {
		return o.Start.Format("15:04")
	}
	return o.Start.Format("15:04") + "-" + o.End.Format("15:04")
}

// FormatDate returns formatted date for display
func (o *Occurrence) FormatDate() string {
	return o.Start.Format("02.01")
}
