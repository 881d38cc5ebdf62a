package recurrence

import (
	"reflect"
	"testing"
	"time"

	"github.com/tazhate/familycal/internal/domain"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func anchorAt(loc *time.Location, y int, m time.Month, d, h, min int, dur time.Duration) Anchor {
	start := time.Date(y, m, d, h, min, 0, 0, loc)
	return Anchor{Start: start, End: start.Add(dur)}
}

func day(loc *time.Location, y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func intPtr(n int) *int { return &n }

func TestExpandWeeklyMondaysInJanuary(t *testing.T) {
	loc := time.UTC
	anchor := anchorAt(loc, 2024, time.January, 1, 9, 0, time.Hour)
	rule := &domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 1, Days: []time.Weekday{time.Monday}}

	got := Expand(anchor, rule, day(loc, 2024, time.January, 1), day(loc, 2024, time.January, 31), DefaultMaxCount)

	wantDays := []int{1, 8, 15, 22, 29}
	if len(got) != len(wantDays) {
		t.Fatalf("got %d instances, want %d: %+v", len(got), len(wantDays), got)
	}
	for i, inst := range got {
		if inst.Date != (domain.Date{Year: 2024, Month: time.January, Day: wantDays[i]}) {
			t.Fatalf("instance %d date = %v, want Jan %d", i, inst.Date, wantDays[i])
		}
		if inst.Start.Hour() != 9 || inst.Start.Minute() != 0 {
			t.Fatalf("instance %d starts %v, want 09:00", i, inst.Start)
		}
		if inst.End.Sub(inst.Start) != time.Hour || inst.End.Hour() != 10 {
			t.Fatalf("instance %d ends %v, want 10:00", i, inst.End)
		}
	}
}

func TestExpandDeterministic(t *testing.T) {
	loc := mustLoc(t, "Europe/Moscow")
	anchor := anchorAt(loc, 2024, time.March, 5, 17, 30, 90*time.Minute)
	rules := []*domain.RecurrenceRule{
		{Frequency: domain.FrequencyDaily, Interval: 3},
		{Frequency: domain.FrequencyWeekly, Interval: 2, Days: []time.Weekday{time.Tuesday, time.Thursday}},
		{Frequency: domain.FrequencyMonthly, Interval: 1},
		{Frequency: domain.FrequencyYearly, Interval: 1},
	}
	for _, rule := range rules {
		a := Expand(anchor, rule, day(loc, 2024, time.April, 1), day(loc, 2026, time.April, 1), 50)
		b := Expand(anchor, rule, day(loc, 2024, time.April, 1), day(loc, 2026, time.April, 1), 50)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("%s: expansion differs between calls", rule.Frequency)
		}
		for i := 1; i < len(a); i++ {
			if !a[i].Start.After(a[i-1].Start) {
				t.Fatalf("%s: instances not strictly increasing at %d", rule.Frequency, i)
			}
		}
	}
}

func TestExpandBounded(t *testing.T) {
	loc := time.UTC
	anchor := anchorAt(loc, 2024, time.January, 1, 8, 0, time.Hour)
	endDate := domain.Date{Year: 2024, Month: time.February, Day: 10}

	tests := []struct {
		name     string
		rule     *domain.RecurrenceRule
		maxCount int
		want     int
	}{
		{"end count", &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1, EndCount: intPtr(7)}, 100, 7},
		{"max count", &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}, 12, 12},
		{"end count below max", &domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 1, Days: []time.Weekday{time.Monday, time.Friday}, EndCount: intPtr(5)}, 3, 3},
		{"end date", &domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 1, EndDate: &endDate}, 100, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Expand(anchor, tt.rule, day(loc, 2024, time.January, 1), day(loc, 2025, time.January, 1), tt.maxCount)
			if len(got) != tt.want {
				t.Fatalf("got %d instances, want %d", len(got), tt.want)
			}
			for _, inst := range got {
				if tt.rule.EndDate != nil && inst.Date.After(*tt.rule.EndDate) {
					t.Fatalf("instance %v after end date %v", inst.Date, tt.rule.EndDate)
				}
			}
		})
	}
}

func TestExpandEndCountCountsEmittedInstances(t *testing.T) {
	loc := time.UTC
	// Monday 2024-01-01
	anchor := anchorAt(loc, 2024, time.January, 1, 8, 0, time.Hour)

	tests := []struct {
		name string
		rule *domain.RecurrenceRule
		from time.Time
		want []int
	}{
		{
			name: "weekly days, window after anchor",
			rule: &domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 1, Days: []time.Weekday{time.Monday}, EndCount: intPtr(2)},
			from: day(loc, 2024, time.January, 15),
			want: []int{15, 22},
		},
		{
			name: "daily, window after anchor",
			rule: &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1, EndCount: intPtr(3)},
			from: day(loc, 2024, time.January, 6),
			want: []int{6, 7, 8},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Expand(anchor, tt.rule, tt.from, day(loc, 2024, time.January, 31), 100)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want days %v", dates(got), tt.want)
			}
			for i, inst := range got {
				if inst.Date.Day != tt.want[i] {
					t.Fatalf("got %v, want days %v", dates(got), tt.want)
				}
			}
		})
	}
}

func TestExpandWeekdayFilter(t *testing.T) {
	loc := mustLoc(t, "Europe/Moscow")
	anchor := anchorAt(loc, 2024, time.January, 3, 18, 0, time.Hour)
	rule := &domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 1, Days: []time.Weekday{time.Monday, time.Wednesday}}

	got := Expand(anchor, rule, day(loc, 2024, time.January, 1), day(loc, 2024, time.June, 30), DefaultMaxCount)
	if len(got) == 0 {
		t.Fatal("expected instances")
	}
	for _, inst := range got {
		if wd := inst.Start.Weekday(); wd != time.Monday && wd != time.Wednesday {
			t.Fatalf("instance on %s (%v)", wd, inst.Date)
		}
	}
	if got[0].Date.Day != 3 {
		t.Fatalf("first instance %v, want the anchor date Jan 3", got[0].Date)
	}
}

func TestExpandDaysWithIntervalSkipsWeeks(t *testing.T) {
	loc := time.UTC
	// Wednesday 2024-01-03
	anchor := anchorAt(loc, 2024, time.January, 3, 18, 0, time.Hour)
	rule := &domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 2, Days: []time.Weekday{time.Monday, time.Friday}}

	got := Expand(anchor, rule, day(loc, 2024, time.January, 1), day(loc, 2024, time.February, 11), DefaultMaxCount)

	want := []int{5, 15, 19, 29, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v, want days %v", dates(got), want)
	}
	for i, inst := range got {
		if inst.Date.Day != want[i] {
			t.Fatalf("got %v, want days %v", dates(got), want)
		}
	}
}

func TestExpandDaysIntervalSkipsFromWindowStart(t *testing.T) {
	loc := time.UTC
	// Monday 2024-01-01
	anchor := anchorAt(loc, 2024, time.January, 1, 9, 0, time.Hour)
	rule := &domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 2, Days: []time.Weekday{time.Monday}}

	got := Expand(anchor, rule, day(loc, 2024, time.January, 8), day(loc, 2024, time.January, 31), DefaultMaxCount)

	want := []domain.Date{
		{Year: 2024, Month: time.January, Day: 8},
		{Year: 2024, Month: time.January, Day: 22},
	}
	if !reflect.DeepEqual(dates(got), want) {
		t.Fatalf("got %v, want %v", dates(got), want)
	}
}

func TestExpandUnitsStayOnSeriesDates(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name   string
		anchor Anchor
		rule   *domain.RecurrenceRule
		from   time.Time
		to     time.Time
		want   []domain.Date
	}{
		{
			name:   "every third day",
			anchor: anchorAt(loc, 2020, time.January, 1, 7, 0, time.Hour),
			rule:   &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 3},
			from:   day(loc, 2024, time.January, 1),
			to:     day(loc, 2024, time.January, 7),
			// 2024-01-01 is 1461 days after 2020-01-01, a multiple of 3.
			want: []domain.Date{{Year: 2024, Month: time.January, Day: 1}, {Year: 2024, Month: time.January, Day: 4}, {Year: 2024, Month: time.January, Day: 7}},
		},
		{
			name:   "weekly without days keeps weekday",
			anchor: anchorAt(loc, 2024, time.January, 3, 18, 0, time.Hour),
			rule:   &domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 1},
			from:   day(loc, 2024, time.February, 5),
			to:     day(loc, 2024, time.February, 18),
			want:   []domain.Date{{Year: 2024, Month: time.February, Day: 7}, {Year: 2024, Month: time.February, Day: 14}},
		},
		{
			name:   "monthly keeps day of month",
			anchor: anchorAt(loc, 2024, time.January, 31, 12, 0, time.Hour),
			rule:   &domain.RecurrenceRule{Frequency: domain.FrequencyMonthly, Interval: 1},
			from:   day(loc, 2024, time.March, 10),
			to:     day(loc, 2024, time.April, 30),
			want:   []domain.Date{{Year: 2024, Month: time.March, Day: 31}, {Year: 2024, Month: time.April, Day: 30}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Expand(tt.anchor, tt.rule, tt.from, tt.to, DefaultMaxCount)
			if !reflect.DeepEqual(dates(got), tt.want) {
				t.Fatalf("got %v, want %v", dates(got), tt.want)
			}
		})
	}
}

func TestExpandMonthlyClampsToMonthEnd(t *testing.T) {
	loc := time.UTC
	anchor := anchorAt(loc, 2024, time.January, 31, 12, 0, time.Hour)
	rule := &domain.RecurrenceRule{Frequency: domain.FrequencyMonthly, Interval: 1}

	got := Expand(anchor, rule, day(loc, 2024, time.January, 1), day(loc, 2024, time.May, 31), DefaultMaxCount)
	want := []domain.Date{
		{Year: 2024, Month: time.January, Day: 31},
		{Year: 2024, Month: time.February, Day: 29},
		{Year: 2024, Month: time.March, Day: 31},
		{Year: 2024, Month: time.April, Day: 30},
		{Year: 2024, Month: time.May, Day: 31},
	}
	if !reflect.DeepEqual(dates(got), want) {
		t.Fatalf("got %v, want %v", dates(got), want)
	}
}

func TestExpandInvalidInput(t *testing.T) {
	loc := time.UTC
	anchor := anchorAt(loc, 2024, time.January, 1, 9, 0, time.Hour)

	if got := Expand(anchor, &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 0}, day(loc, 2024, 1, 1), day(loc, 2024, 2, 1), 10); len(got) != 0 {
		t.Fatalf("interval 0: got %d instances", len(got))
	}
	if got := Expand(anchor, nil, day(loc, 2024, 1, 1), day(loc, 2024, 2, 1), 10); len(got) != 0 {
		t.Fatalf("nil rule: got %d instances", len(got))
	}
	rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
	if got := Expand(anchor, rule, day(loc, 2023, 1, 1), day(loc, 2023, 12, 31), 10); len(got) != 0 {
		t.Fatalf("anchor after window: got %d instances", len(got))
	}
	if got := Expand(anchor, rule, day(loc, 2024, 1, 1), day(loc, 2024, 2, 1), 0); len(got) != 0 {
		t.Fatalf("zero max count: got %d instances", len(got))
	}
}

func TestExpandKeepsWallClockAcrossDST(t *testing.T) {
	loc := mustLoc(t, "Europe/Berlin")
	anchor := anchorAt(loc, 2024, time.March, 25, 9, 0, time.Hour)
	rule := &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}

	got := Expand(anchor, rule, day(loc, 2024, time.March, 25), day(loc, 2024, time.April, 5), DefaultMaxCount)
	for _, inst := range got {
		if inst.Start.Hour() != 9 {
			t.Fatalf("instance %v starts at %v, want 09:00 local", inst.Date, inst.Start)
		}
	}
}

func TestInstanceOn(t *testing.T) {
	loc := time.UTC
	anchor := anchorAt(loc, 2024, time.January, 1, 9, 0, time.Hour)
	rule := &domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 1, Days: []time.Weekday{time.Monday}}

	if _, ok := InstanceOn(anchor, rule, domain.Date{Year: 2024, Month: time.January, Day: 15}); !ok {
		t.Fatal("Jan 15 2024 is a Monday and should be an instance")
	}
	if _, ok := InstanceOn(anchor, rule, domain.Date{Year: 2024, Month: time.January, Day: 16}); ok {
		t.Fatal("Jan 16 2024 is a Tuesday and should not be an instance")
	}
}

func dates(in []Instance) []domain.Date {
	out := make([]domain.Date, 0, len(in))
	for _, inst := range in {
		out = append(out, inst.Date)
	}
	return out
}
