package model

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fallback label parts used when a reference is missing.
const (
	DefaultServiceName = "Servicio"
	DefaultClientName  = "Cliente"
)

// DefaultColor is used when a service has no usable color tag.
var DefaultColor = color.RGBA{R: 0x66, G: 0x7e, B: 0xea, A: 0xff}

// ServiceRef is the display subset of a service owned by the backend.
type ServiceRef struct {
	ID          int64
	Name        *string
	Description *string
	Duration    int // minutes
	Price       decimal.Decimal
	Color       *string
	Active      *bool
}

// ClientRef is the display subset of a client.
type ClientRef struct {
	ID    int64
	Name  *string
	Email *string
	Phone *string
}

// StaffRef is the display subset of the staff member attending.
type StaffRef struct {
	ID       int64
	Username *string
	Role     *string
	Active   *bool
}

// Appointment is a scheduled booking as held by the local store.
//
// Date always equals the civil date of Start in Start's own offset; use
// NewAppointment or the wire decoder to keep that true.
type Appointment struct {
	ID         int64
	Date       Date
	Start      time.Time
	End        time.Time
	Status     *string
	Notes      *string
	BusinessID int64

	Service *ServiceRef
	Client  *ClientRef
	Staff   *StaffRef
}

// NewAppointment builds a record and derives Date from start.
func NewAppointment(id int64, start, end time.Time) Appointment {
	return Appointment{ID: id, Date: DateOf(start), Start: start, End: end}
}

// DisplayColor resolves the service color tag, falling back to DefaultColor.
func (a Appointment) DisplayColor() color.RGBA {
	if a.Service == nil || a.Service.Color == nil {
		return DefaultColor
	}
	c, err := ParseHexColor(*a.Service.Color)
	if err != nil {
		return DefaultColor
	}
	return c
}

// DisplayLabel renders "<service> - <client>".
func (a Appointment) DisplayLabel() string {
	service := DefaultServiceName
	if a.Service != nil && a.Service.Name != nil {
		service = *a.Service.Name
	}
	client := DefaultClientName
	if a.Client != nil && a.Client.Name != nil {
		client = *a.Client.Name
	}
	return service + " - " + client
}

// FormattedTime is the start time as HH:mm in the record's own offset.
func (a Appointment) FormattedTime() string {
	return a.Start.Format("15:04")
}

// ParseHexColor accepts RRGGBB or AARRGGBB with an optional leading '#'.
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("color %q: want 6 or 8 hex digits", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	alpha := uint8(0xff)
	if len(hex) == 8 {
		alpha = uint8(v >> 24)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: alpha}, nil
}

// HexColor renders c as #RRGGBB.
func HexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}
