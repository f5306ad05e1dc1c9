package model

import "time"

// DateLayout is the calendar-date format used in every persisted artifact.
const DateLayout = "2006-01-02"

// MonthStart truncates t to the first day of its month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthsBetween returns the calendar-month difference to - from, ignoring days.
// 2022-06-30 to 2022-07-01 is one month.
func MonthsBetween(from, to time.Time) int {
	from, to = from.UTC(), to.UTC()
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// AddMonths returns the first day of the month n months after t's month.
func AddMonths(t time.Time, n int) time.Time {
	return MonthStart(t).AddDate(0, n, 0)
}

// FormatMonth renders an observation month as YYYY-MM.
func FormatMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ParseMonth accepts YYYY-MM or a full YYYY-MM-DD date and returns the month start.
func ParseMonth(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01", DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthStart(t), true
		}
	}
	return time.Time{}, false
}
