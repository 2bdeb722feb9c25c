package calendar

import (
	"fmt"

	"github.com/teambition/rrule-go"

	"turnos/internal/model"
)

// GridCells is the fixed size of a month grid: six Monday-first weeks.
const GridCells = 42

// Cell is one day square of a month grid.
type Cell struct {
	Date    model.Date
	InMonth bool
}

// Grid lays out m as six weeks starting on the Monday on or before the 1st.
// Leading and trailing days belong to the neighbouring months.
func Grid(m Month) ([]Cell, error) {
	start := m.FirstDay().AddDays(-m.FirstWeekdayOffset())

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: start.Time(),
		Count:   GridCells,
	})
	if err != nil {
		return nil, fmt.Errorf("grid %s: %w", m, err)
	}

	days := rule.All()
	cells := make([]Cell, 0, len(days))
	for _, t := range days {
		d := model.DateOf(t)
		cells = append(cells, Cell{Date: d, InMonth: m.Contains(d)})
	}
	return cells, nil
}
