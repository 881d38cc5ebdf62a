package recurrence

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
	"github.com/tazhate/familycal/internal/domain"
)

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// ToRRule converts rule into an RFC 5545 recurrence anchored at dtstart.
//
// A daily rule with a weekday filter steps whole weeks between passes, so it is
// exported as WEEKLY with BYDAY. UNTIL is the end of the rule's end date in
// dtstart's location.
func ToRRule(rule *domain.RecurrenceRule, dtstart time.Time) (*rrule.RRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	opt := rrule.ROption{
		Dtstart:  dtstart,
		Interval: rule.Interval,
		Wkst:     rrule.MO,
	}

	switch rule.Frequency {
	case domain.FrequencyDaily:
		opt.Freq = rrule.DAILY
	case domain.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
	case domain.FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
	case domain.FrequencyYearly:
		opt.Freq = rrule.YEARLY
	}

	if rule.HasDays() {
		opt.Freq = rrule.WEEKLY
		days := append([]time.Weekday(nil), rule.Days...)
		sort.Slice(days, func(i, j int) bool { return (days[i]+6)%7 < (days[j]+6)%7 })
		for _, d := range days {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[d])
		}
	}

	if rule.EndCount != nil {
		opt.Count = *rule.EndCount
	}
	if rule.EndDate != nil {
		loc := dtstart.Location()
		opt.Until = rule.EndDate.AddDays(1).In(loc).Add(-time.Second)
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build rrule: %w", err)
	}
	return r, nil
}

// RRuleString renders the RRULE value (without the "RRULE:" prefix and
// without DTSTART) for rule.
func RRuleString(rule *domain.RecurrenceRule, dtstart time.Time) (string, error) {
	r, err := ToRRule(rule, dtstart)
	if err != nil {
		return "", err
	}
	return r.OrigOptions.RRuleString(), nil
}
