package calendar

import (
	"fmt"
	"time"

	"turnos/internal/model"
)

// Month is a (year, month) pair with no day component.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing d.
func MonthOf(d model.Date) Month {
	return Month{Year: d.Year, Month: d.Month}
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("parse month %q: %w", s, err)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// FirstDay is the 1st of the month.
func (m Month) FirstDay() model.Date {
	return model.NewDate(m.Year, m.Month, 1)
}

// Days is the number of days in the month.
func (m Month) Days() int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstWeekdayOffset is the column of the 1st in a Monday-first week (Monday = 0).
func (m Month) FirstWeekdayOffset() int {
	return (int(m.FirstDay().Weekday()) + 6) % 7
}

// AddMonths returns the month n months later (or earlier for negative n).
func (m Month) AddMonths(n int) Month {
	idx := m.index() + n
	return Month{Year: floorDiv(idx, 12), Month: time.Month(floorMod(idx, 12) + 1)}
}

// MonthsUntil is the signed number of months from m to o.
func (m Month) MonthsUntil(o Month) int {
	return o.index() - m.index()
}

func (m Month) Contains(d model.Date) bool {
	return d.Year == m.Year && d.Month == m.Month
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) index() int {
	return m.Year*12 + int(m.Month) - 1
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
