package ics

import (
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"turnos/internal/model"
)

// DefaultProductID is used when the caller passes an empty PRODID.
const DefaultProductID = "-//turnos//appointments//ES"

const (
	propColor  = ical.ComponentProperty("COLOR")
	propStatus = ical.ComponentProperty("X-TURNOS-STATUS")
)

// UID returns the stable iCalendar UID of an appointment.
func UID(id int64) string {
	return "turno-" + strconv.FormatInt(id, 10) + "@turnos"
}

// Export renders items as a VCALENDAR with one VEVENT per appointment.
// Items keep their order; stamp is written as DTSTAMP on every event.
func Export(items []model.Appointment, productID string, stamp time.Time) string {
	if productID == "" {
		productID = DefaultProductID
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, a := range items {
		ev := cal.AddEvent(UID(a.ID))
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(a.Start)
		ev.SetEndAt(a.End)
		ev.SetSummary(a.DisplayLabel())
		if desc := description(a); desc != "" {
			ev.SetDescription(desc)
		}
		ev.SetProperty(propColor, model.HexColor(a.DisplayColor()))
		if a.Status != nil && *a.Status != "" {
			ev.SetProperty(propStatus, *a.Status)
		}
	}
	return cal.Serialize()
}

func description(a model.Appointment) string {
	var lines []string
	if a.Staff != nil && a.Staff.Username != nil && *a.Staff.Username != "" {
		lines = append(lines, "Profesional: "+*a.Staff.Username)
	}
	if a.Notes != nil && strings.TrimSpace(*a.Notes) != "" {
		lines = append(lines, strings.TrimSpace(*a.Notes))
	}
	return strings.Join(lines, "\n")
}
