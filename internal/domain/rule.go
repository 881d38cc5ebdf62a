package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Frequency is the unit a recurrence rule steps by.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// AllowsDays reports whether a weekday filter is meaningful for f.
func (f Frequency) AllowsDays() bool {
	return f == FrequencyDaily || f == FrequencyWeekly
}

// AdditionalSettings configure the derived events of each occurrence.
type AdditionalSettings struct {
	ArrivalTime  *ClockTime `json:"arrivalTime,omitempty"`
	DriveMinutes int        `json:"driveMinutes,omitempty"`
}

func (s AdditionalSettings) IsZero() bool {
	return s.ArrivalTime == nil && s.DriveMinutes == 0
}

// Clone returns a copy that shares no pointers with s.
func (s AdditionalSettings) Clone() *AdditionalSettings {
	c := s
	if s.ArrivalTime != nil {
		a := *s.ArrivalTime
		c.ArrivalTime = &a
	}
	return &c
}

func (s AdditionalSettings) Equal(o AdditionalSettings) bool {
	if s.DriveMinutes != o.DriveMinutes {
		return false
	}
	if (s.ArrivalTime == nil) != (o.ArrivalTime == nil) {
		return false
	}
	return s.ArrivalTime == nil || *s.ArrivalTime == *o.ArrivalTime
}

// RecurrenceRule is owned by a recurring parent event.
type RecurrenceRule struct {
	Frequency Frequency
	Interval  int
	Days      []time.Weekday
	EndDate   *Date
	EndCount  *int
	Settings  AdditionalSettings
}

// Validate checks the rule shape. Days are only accepted for daily and
// weekly rules.
func (r *RecurrenceRule) Validate() error {
	const op = "rule.validate"
	if r == nil {
		return Validation(op, "recurrence rule is required")
	}
	if !r.Frequency.Valid() {
		return Validation(op, fmt.Sprintf("unknown recurrence type %q", r.Frequency))
	}
	if r.Interval < 1 {
		return Validation(op, "interval must be at least 1")
	}
	if len(r.Days) > 0 && !r.Frequency.AllowsDays() {
		return Validation(op, fmt.Sprintf("days are not allowed for %s rules", r.Frequency))
	}
	for _, d := range r.Days {
		if d < time.Sunday || d > time.Saturday {
			return Validation(op, fmt.Sprintf("invalid weekday %d", d))
		}
	}
	if r.EndCount != nil && *r.EndCount < 1 {
		return Validation(op, "endCount must be positive")
	}
	if r.Settings.DriveMinutes < 0 {
		return Validation(op, "driveMinutes must not be negative")
	}
	return nil
}

func (r *RecurrenceRule) HasDays() bool {
	return len(r.Days) > 0
}

func (r *RecurrenceRule) HasDay(d time.Weekday) bool {
	for _, day := range r.Days {
		if day == d {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (r *RecurrenceRule) Clone() *RecurrenceRule {
	if r == nil {
		return nil
	}
	c := *r
	c.Days = append([]time.Weekday(nil), r.Days...)
	if r.EndDate != nil {
		d := *r.EndDate
		c.EndDate = &d
	}
	if r.EndCount != nil {
		n := *r.EndCount
		c.EndCount = &n
	}
	if r.Settings.ArrivalTime != nil {
		a := *r.Settings.ArrivalTime
		c.Settings.ArrivalTime = &a
	}
	return &c
}

type ruleDocument struct {
	Type               Frequency           `json:"type"`
	Interval           *int                `json:"interval,omitempty"`
	Days               []string            `json:"days,omitempty"`
	EndDate            *Date               `json:"endDate,omitempty"`
	EndCount           *int                `json:"endCount,omitempty"`
	AdditionalSettings *AdditionalSettings `json:"additionalSettings,omitempty"`
}

func (r RecurrenceRule) MarshalJSON() ([]byte, error) {
	doc := ruleDocument{
		Type:     r.Frequency,
		Interval: &r.Interval,
		EndDate:  r.EndDate,
		EndCount: r.EndCount,
	}
	days := append([]time.Weekday(nil), r.Days...)
	sort.Slice(days, func(i, j int) bool { return mondayIndex(days[i]) < mondayIndex(days[j]) })
	for _, d := range days {
		doc.Days = append(doc.Days, WeekdayWireName(d))
	}
	if !r.Settings.IsZero() {
		s := r.Settings
		doc.AdditionalSettings = &s
	}
	return json.Marshal(doc)
}

func (r *RecurrenceRule) UnmarshalJSON(b []byte) error {
	var doc ruleDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	rule := RecurrenceRule{
		Frequency: doc.Type,
		Interval:  1,
		EndDate:   doc.EndDate,
		EndCount:  doc.EndCount,
	}
	if doc.Interval != nil {
		rule.Interval = *doc.Interval
	}
	seen := make(map[time.Weekday]bool)
	for _, name := range doc.Days {
		d, err := ParseWeekday(name)
		if err != nil {
			return err
		}
		if !seen[d] {
			seen[d] = true
			rule.Days = append(rule.Days, d)
		}
	}
	if doc.AdditionalSettings != nil {
		rule.Settings = *doc.AdditionalSettings
	}
	*r = rule
	return nil
}
