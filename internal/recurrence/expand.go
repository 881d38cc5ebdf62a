// Package recurrence expands recurrence rules into concrete occurrence dates.
// Everything here is pure and safe for concurrent use.
package recurrence

import (
	"time"

	"github.com/tazhate/familycal/internal/domain"
)

// DefaultMaxCount caps a single expansion when the caller has no better bound.
const DefaultMaxCount = 1000

// Anchor is the first occurrence of a series. Every instance keeps its clock
// time and duration; dates are evaluated in Start's location.
type Anchor struct {
	Start time.Time
	End   time.Time
}

func AnchorOf(e *domain.Event) Anchor {
	return Anchor{Start: e.Start, End: e.End}
}

// Instance is one virtual occurrence.
type Instance struct {
	Date  domain.Date
	Start time.Time
	End   time.Time
}

// Expand returns the instances of rule that fall on dates between windowStart
// and windowEnd (inclusive, compared by calendar date in the anchor's
// location), ordered by start.
//
// The cursor starts at the later of the anchor date and the window start.
// endCount and maxCount both cap the number of instances emitted by this
// call. An invalid rule or a non-positive maxCount yields nil.
func Expand(anchor Anchor, rule *domain.RecurrenceRule, windowStart, windowEnd time.Time, maxCount int) []Instance {
	if rule == nil || rule.Validate() != nil || maxCount <= 0 {
		return nil
	}

	loc := anchor.Start.Location()
	first := domain.DateOf(anchor.Start)
	from := domain.DateOf(windowStart.In(loc))
	to := domain.DateOf(windowEnd.In(loc))
	if first.After(to) || to.Before(from) {
		return nil
	}

	cursor := first
	if from.After(cursor) {
		cursor = from
	}
	limit := to
	if rule.EndDate != nil && rule.EndDate.Before(limit) {
		limit = *rule.EndDate
	}

	duration := anchor.End.Sub(anchor.Start)
	var out []Instance

	// emit records one instance and reports whether expansion is done.
	emit := func(d domain.Date) bool {
		start := d.At(anchor.Start)
		out = append(out, Instance{Date: d, Start: start, End: start.Add(duration)})
		if len(out) >= maxCount {
			return true
		}
		return rule.EndCount != nil && len(out) >= *rule.EndCount
	}

	if rule.HasDays() {
		expandDays(cursor, limit, rule, emit)
	} else {
		expandUnits(first, cursor, limit, rule, emit)
	}
	return out
}

// expandDays walks day by day from cursor, emitting dates whose weekday is
// in the rule. Weeks start on Monday; when the cursor crosses into a new week
// and interval > 1, interval-1 whole weeks are skipped.
func expandDays(cursor, limit domain.Date, rule *domain.RecurrenceRule, emit func(domain.Date) bool) {
	week := domain.WeekStart(cursor)
	for !cursor.After(limit) {
		if rule.HasDay(cursor.Weekday()) && emit(cursor) {
			return
		}
		next := cursor.AddDays(1)
		if nextWeek := domain.WeekStart(next); nextWeek != week {
			if rule.Interval > 1 {
				next = next.AddDays(7 * (rule.Interval - 1))
			}
			week = domain.WeekStart(next)
		}
		cursor = next
	}
}

// expandUnits emits first + k*interval units for every k whose date is on
// or after cursor. Positions stay on the series' own dates, so a weekly rule
// without days keeps the anchor's weekday and a monthly one its day of month.
func expandUnits(first, cursor, limit domain.Date, rule *domain.RecurrenceRule, emit func(domain.Date) bool) {
	for k := unitsBefore(first, cursor, rule.Frequency) / rule.Interval; ; k++ {
		d := step(first, rule.Frequency, k*rule.Interval)
		if d.Before(cursor) {
			continue
		}
		if d.After(limit) || emit(d) {
			return
		}
	}
}

// step moves n units of freq away from d. Month and year steps clamp to the
// last day of the target month.
func step(d domain.Date, freq domain.Frequency, n int) domain.Date {
	switch freq {
	case domain.FrequencyDaily:
		return d.AddDays(n)
	case domain.FrequencyWeekly:
		return d.AddDays(7 * n)
	case domain.FrequencyMonthly:
		return d.AddMonths(n)
	default:
		return d.AddMonths(12 * n)
	}
}

// unitsBefore returns a lower bound on how many whole units of freq separate
// first from from.
func unitsBefore(first, from domain.Date, freq domain.Frequency) int {
	if !from.After(first) {
		return 0
	}
	var n int
	switch freq {
	case domain.FrequencyDaily:
		n = daysBetween(first, from)
	case domain.FrequencyWeekly:
		n = daysBetween(first, from) / 7
	case domain.FrequencyMonthly:
		n = (from.Year-first.Year)*12 + int(from.Month-first.Month) - 1
	default:
		n = from.Year - first.Year - 1
	}
	if n < 0 {
		return 0
	}
	return n
}

func daysBetween(a, b domain.Date) int {
	return int(b.In(time.UTC).Sub(a.In(time.UTC)).Hours() / 24)
}

// InstanceOn returns the instance of the series falling on date, if any.
func InstanceOn(anchor Anchor, rule *domain.RecurrenceRule, date domain.Date) (Instance, bool) {
	loc := anchor.Start.Location()
	day := date.In(loc)
	got := Expand(anchor, rule, day, day, 1)
	if len(got) == 0 || got[0].Date != date {
		return Instance{}, false
	}
	return got[0], true
}
