package store

import (
	"image/color"
	"slices"
	"sort"

	"turnos/internal/model"
)

// DayIndex groups appointments by civil date. Each day's slice is ordered by
// start time, then id.
type DayIndex struct {
	byDate map[model.Date][]model.Appointment
}

// NewDayIndex builds an index over items.
func NewDayIndex(items []model.Appointment) *DayIndex {
	idx := &DayIndex{byDate: make(map[model.Date][]model.Appointment)}
	for _, a := range items {
		idx.byDate[a.Date] = append(idx.byDate[a.Date], a)
	}
	for d := range idx.byDate {
		sortDay(idx.byDate[d])
	}
	return idx
}

// AppointmentsOn returns a copy of the appointments on d.
func (x *DayIndex) AppointmentsOn(d model.Date) []model.Appointment {
	day := x.byDate[d]
	if len(day) == 0 {
		return nil
	}
	return slices.Clone(day)
}

func (x *DayIndex) HasAppointmentOn(d model.Date) bool {
	return len(x.byDate[d]) > 0
}

// RepresentativeColorOn is the color of the day's earliest appointment; ok is
// false when the day has no marker.
func (x *DayIndex) RepresentativeColorOn(d model.Date) (c color.RGBA, ok bool) {
	day := x.byDate[d]
	if len(day) == 0 {
		return color.RGBA{}, false
	}
	return day[0].DisplayColor(), true
}

// CountOn is the number of appointments on d.
func (x *DayIndex) CountOn(d model.Date) int {
	return len(x.byDate[d])
}

// Dates lists the days that have appointments, ascending.
func (x *DayIndex) Dates() []model.Date {
	out := make([]model.Date, 0, len(x.byDate))
	for d := range x.byDate {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Len is the total number of indexed appointments.
func (x *DayIndex) Len() int {
	n := 0
	for _, day := range x.byDate {
		n += len(day)
	}
	return n
}

// remove drops the appointment with id from day d.
func (x *DayIndex) remove(d model.Date, id int64) {
	day := x.byDate[d]
	i := slices.IndexFunc(day, func(a model.Appointment) bool { return a.ID == id })
	if i < 0 {
		return
	}
	day = slices.Delete(slices.Clone(day), i, i+1)
	if len(day) == 0 {
		delete(x.byDate, d)
		return
	}
	x.byDate[d] = day
}

// insert adds a back into its day keeping the order.
func (x *DayIndex) insert(a model.Appointment) {
	day := append(slices.Clone(x.byDate[a.Date]), a)
	sortDay(day)
	x.byDate[a.Date] = day
}

func sortDay(day []model.Appointment) {
	sort.SliceStable(day, func(i, j int) bool {
		if !day[i].Start.Equal(day[j].Start) {
			return day[i].Start.Before(day[j].Start)
		}
		return day[i].ID < day[j].ID
	})
}
