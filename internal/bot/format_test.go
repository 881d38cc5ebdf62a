package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/tazhate/familycal/internal/domain"
)

func TestDescribeRule(t *testing.T) {
	count := 10
	end := domain.Date{Year: 2024, Month: time.May, Day: 31}

	tests := []struct {
		name string
		rule *domain.RecurrenceRule
		want string
	}{
		{"nil", nil, "однократно"},
		{"daily", &domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}, "ежедневно"},
		{"weekly days", &domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 1, Days: []time.Weekday{time.Wednesday, time.Monday}},
			"еженедельно: Пн, Ср"},
		{"two weeks count", &domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 2, EndCount: &count},
			"каждые 2 недели, 10 раз"},
		{"five months until", &domain.RecurrenceRule{Frequency: domain.FrequencyMonthly, Interval: 5, EndDate: &end},
			"каждые 5 месяцев, до 31.05.2024"},
		{"yearly", &domain.RecurrenceRule{Frequency: domain.FrequencyYearly, Interval: 1}, "ежегодно"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeRule(tt.rule); got != tt.want {
				t.Fatalf("describeRule = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatWeek(t *testing.T) {
	monday := domain.Date{Year: 2024, Month: time.January, Day: 1}
	start := time.Date(2024, time.January, 3, 17, 0, 0, 0, time.UTC)
	occs := []*domain.Occurrence{{
		Kind:     domain.OccurrenceVirtual,
		ID:       domain.NewInstanceID("3f2b8c1e-9a4d-4e6f-8b7a-1c2d3e4f5a6b", domain.DateOf(start)),
		Title:    "Бассейн <дети>",
		Location: "ФОК",
		Start:    start,
		End:      start.Add(time.Hour),
		Derived: []*domain.Event{{
			DerivedKind: domain.DerivedDrive,
			Title:       "Дорога: Бассейн",
			Start:       start.Add(-30 * time.Minute),
			End:         start,
		}},
	}}

	got := formatWeek(occs, monday)
	for _, want := range []string{
		"Неделя 01.01 — 07.01",
		"Среда, 03.01",
		"17:00-18:00 — Бассейн &lt;дети&gt;",
		"📍ФОК",
		"🚗 16:30-17:00 Дорога: Бассейн",
		"<code>3f2b8c1e-9a4d-4e6f-8b7a-1c2d3e4f5a6b-2024-01-03</code>",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("formatWeek output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Понедельник") {
		t.Fatalf("empty day rendered:\n%s", got)
	}

	if got := formatWeek(nil, monday); !strings.Contains(got, "Событий нет") {
		t.Fatalf("empty week = %q", got)
	}
}

func TestParseWeekOffset(t *testing.T) {
	tests := map[string]int{"": 0, "+1": 1, "-2": -2, "next": 1, "пред": -1, "3": 3}
	for in, want := range tests {
		got, err := parseWeekOffset(in)
		if err != nil || got != want {
			t.Fatalf("parseWeekOffset(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	if _, err := parseWeekOffset("soon"); err == nil {
		t.Fatal("expected error for a non-number")
	}
}

func TestWeekKeyboardCallbacksFit(t *testing.T) {
	start := time.Date(2024, time.January, 3, 17, 0, 0, 0, time.UTC)
	occs := []*domain.Occurrence{{
		ID:    domain.NewInstanceID("3f2b8c1e-9a4d-4e6f-8b7a-1c2d3e4f5a6b", domain.DateOf(start)),
		Title: "Practice",
		Start: start,
	}}

	kb := weekKeyboard(0, occs)
	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("got %d rows, want a skip row and the navigation row", len(kb.InlineKeyboard))
	}
	for _, row := range append(kb.InlineKeyboard, confirmSkipKeyboard(occs[0].ID.String()).InlineKeyboard...) {
		for _, btn := range row {
			// Telegram rejects callback data longer than 64 bytes.
			if btn.CallbackData == nil || len(*btn.CallbackData) > 64 {
				t.Fatalf("button %q has callback data %v", btn.Text, btn.CallbackData)
			}
		}
	}
}
