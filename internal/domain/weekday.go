package domain

import (
	"fmt"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	// Russian names used in bot commands
	"вс": time.Sunday, "воскресенье": time.Sunday,
	"пн": time.Monday, "понедельник": time.Monday,
	"вт": time.Tuesday, "вторник": time.Tuesday,
	"ср": time.Wednesday, "среда": time.Wednesday,
	"чт": time.Thursday, "четверг": time.Thursday,
	"пт": time.Friday, "пятница": time.Friday,
	"сб": time.Saturday, "суббота": time.Saturday,
}

// ParseWeekday parses an English or Russian weekday name, full or short.
func ParseWeekday(s string) (time.Weekday, error) {
	if d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	return time.Sunday, fmt.Errorf("unknown weekday: %s", s)
}

// WeekdayWireName returns the lowercase English name used in the rule document.
func WeekdayWireName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// WeekdayName returns Russian name for the weekday
func WeekdayName(d time.Weekday) string {
	names := []string{"Воскресенье", "Понедельник", "Вторник", "Среда", "Четверг", "Пятница", "Суббота"}
	if d >= 0 && int(d) < len(names) {
		return names[d]
	}
	return ""
}

// WeekdayNameShort returns short Russian name for the weekday
func WeekdayNameShort(d time.Weekday) string {
	names := []string{"Вс", "Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}
	if d >= 0 && int(d) < len(names) {
		return names[d]
	}
	return ""
}

// mondayIndex maps a weekday to its position in a Monday-first week.
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// WeekStart returns the Monday of the week containing d.
func WeekStart(d Date) Date {
	return d.AddDays(-mondayIndex(d.Weekday()))
}
