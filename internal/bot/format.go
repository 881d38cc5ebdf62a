package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/tazhate/familycal/internal/domain"
)

var mondayFirst = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

func escape(s string) string {
	return html.EscapeString(s)
}

// formatWeek renders the occurrences of the week starting at monday, one
// block per day that has something on it.
func formatWeek(occs []*domain.Occurrence, monday domain.Date) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>🗓 Неделя %s — %s</b>\n", monday.In(time.UTC).Format("02.01"), monday.AddDays(6).In(time.UTC).Format("02.01")))

	if len(occs) == 0 {
		sb.WriteString("\nСобытий нет")
		return sb.String()
	}

	byDay := make(map[domain.Date][]*domain.Occurrence)
	for _, occ := range occs {
		d := domain.DateOf(occ.Start)
		byDay[d] = append(byDay[d], occ)
	}

	for i := 0; i < 7; i++ {
		day := monday.AddDays(i)
		list := byDay[day]
		if len(list) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("\n<b>%s, %s</b>\n", domain.WeekdayName(day.Weekday()), day.In(time.UTC).Format("02.01")))
		for _, occ := range list {
			sb.WriteString(formatOccurrence(occ))
		}
	}
	return sb.String()
}

func formatOccurrence(occ *domain.Occurrence) string {
	var sb strings.Builder

	mark := "🕐"
	if occ.Kind == domain.OccurrenceException {
		mark = "✏️"
	}
	sb.WriteString(fmt.Sprintf("%s %s — %s", mark, occ.FormatTime(), escape(occ.Title)))
	if occ.Location != "" {
		sb.WriteString(" 📍" + escape(occ.Location))
	}
	sb.WriteString("\n")

	for _, d := range occ.Derived {
		icon := "🚗"
		if d.DerivedKind == domain.DerivedArrival {
			icon = "🚪"
		}
		sb.WriteString(fmt.Sprintf("   %s %s-%s %s\n", icon, d.Start.Format("15:04"), d.End.Format("15:04"), escape(d.Title)))
	}
	if occ.ID.HasDate() {
		sb.WriteString(fmt.Sprintf("   <code>%s</code>\n", occ.ID.String()))
	}
	return sb.String()
}

func formatSeriesList(parents []*domain.Event) string {
	if len(parents) == 0 {
		return "Серий пока нет"
	}

	var sb strings.Builder
	for _, p := range parents {
		sb.WriteString(fmt.Sprintf("• <b>%s</b> — %s, %s\n", escape(p.Title), describeRule(p.Rule), p.Start.Format("15:04")))
	}
	return sb.String()
}

// describeRule renders a rule in Russian, e.g. "каждые 2 недели: Пн, Ср, 10 раз".
func describeRule(r *domain.RecurrenceRule) string {
	if r == nil {
		return "однократно"
	}

	var base string
	switch r.Frequency {
	case domain.FrequencyDaily:
		base = every(r.Interval, "ежедневно", "дня", "дней")
	case domain.FrequencyWeekly:
		base = every(r.Interval, "еженедельно", "недели", "недель")
	case domain.FrequencyMonthly:
		base = every(r.Interval, "ежемесячно", "месяца", "месяцев")
	case domain.FrequencyYearly:
		base = every(r.Interval, "ежегодно", "года", "лет")
	}

	parts := []string{base}
	if r.HasDays() {
		var days []string
		for _, d := range mondayFirst {
			if r.HasDay(d) {
				days = append(days, domain.WeekdayNameShort(d))
			}
		}
		parts[0] += ": " + strings.Join(days, ", ")
	}
	if r.EndDate != nil {
		parts = append(parts, "до "+r.EndDate.In(time.UTC).Format("02.01.2006"))
	}
	if r.EndCount != nil {
		parts = append(parts, fmt.Sprintf("%d раз", *r.EndCount))
	}
	return strings.Join(parts, ", ")
}

func every(n int, once, few, many string) string {
	switch {
	case n <= 1:
		return once
	case n%10 >= 2 && n%10 <= 4 && (n%100 < 12 || n%100 > 14):
		return fmt.Sprintf("каждые %d %s", n, few)
	default:
		return fmt.Sprintf("каждые %d %s", n, many)
	}
}
