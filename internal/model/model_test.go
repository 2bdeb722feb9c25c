package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func strPtr(s string) *string { return &s }

func TestDisplayColor(t *testing.T) {
	cases := []struct {
		name string
		tag  *string
		want string
	}{
		{name: "plain hex", tag: strPtr("2196F3"), want: "#2196F3"},
		{name: "hash prefix", tag: strPtr("#e91e63"), want: "#E91E63"},
		{name: "argb", tag: strPtr("#FF4CAF50"), want: "#4CAF50"},
		{name: "invalid", tag: strPtr("xyz"), want: "#667EEA"},
		{name: "wrong length", tag: strPtr("12345"), want: "#667EEA"},
		{name: "nil tag", tag: nil, want: "#667EEA"},
		{name: "empty", tag: strPtr(""), want: "#667EEA"},
	}
	for _, c := range cases {
		a := Appointment{Service: &ServiceRef{Color: c.tag}}
		if got := HexColor(a.DisplayColor()); got != c.want {
			t.Fatalf("%s: expected %s, got %s", c.name, c.want, got)
		}
	}

	if got := (Appointment{}).DisplayColor(); got != DefaultColor {
		t.Fatalf("expected default color without service, got %v", got)
	}
}

func TestDisplayLabelFallbacks(t *testing.T) {
	cases := []struct {
		appt Appointment
		want string
	}{
		{appt: Appointment{}, want: "Servicio - Cliente"},
		{appt: Appointment{Service: &ServiceRef{Name: strPtr("Corte")}}, want: "Corte - Cliente"},
		{appt: Appointment{Client: &ClientRef{Name: strPtr("Ana")}}, want: "Servicio - Ana"},
		{appt: Appointment{Service: &ServiceRef{}, Client: &ClientRef{}}, want: "Servicio - Cliente"},
		{appt: Appointment{Service: &ServiceRef{Name: strPtr("")}}, want: " - Cliente"},
		{appt: Appointment{Service: &ServiceRef{Name: strPtr("  ")}, Client: &ClientRef{Name: strPtr("")}}, want: "   - "},
		{appt: Appointment{Service: &ServiceRef{Name: strPtr("Color")}, Client: &ClientRef{Name: strPtr("Ana")}}, want: "Color - Ana"},
	}
	for _, c := range cases {
		if got := c.appt.DisplayLabel(); got != c.want {
			t.Fatalf("expected %q, got %q", c.want, got)
		}
	}
}

func TestFormattedTimeUsesRecordOffset(t *testing.T) {
	start, err := time.Parse(time.RFC3339, "2025-10-10T21:05:00-03:00")
	if err != nil {
		t.Fatal(err)
	}
	a := NewAppointment(1, start, start.Add(time.Hour))
	if got := a.FormattedTime(); got != "21:05" {
		t.Fatalf("expected 21:05, got %s", got)
	}
	// 00:05 UTC the next day, but the record's own date stays the 10th.
	if a.Date != NewDate(2025, time.October, 10) {
		t.Fatalf("expected date 2025-10-10, got %s", a.Date)
	}
}

func TestDecodeAppointmentsScenario(t *testing.T) {
	body := []byte(`[{"id":1,"fechaTurno":"2025-10-10","horaInicio":"2025-10-10T09:00:00-03:00",
		"horaFinal":"2025-10-10T09:30:00-03:00","negocioId":3,
		"servicio":{"id":9,"nombre":"Corte","duracion":30,"precio":1500,"color":"2196F3"}}]`)

	items, err := DecodeAppointments(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	a := items[0]
	if a.FormattedTime() != "09:00" {
		t.Fatalf("expected 09:00, got %s", a.FormattedTime())
	}
	if a.DisplayLabel() != "Corte - Cliente" {
		t.Fatalf("unexpected label %q", a.DisplayLabel())
	}
	if HexColor(a.DisplayColor()) != "#2196F3" {
		t.Fatalf("unexpected color %s", HexColor(a.DisplayColor()))
	}
	if a.Date.String() != "2025-10-10" {
		t.Fatalf("unexpected date %s", a.Date)
	}
	if a.BusinessID != 3 || a.Service.Duration != 30 {
		t.Fatalf("unexpected carried fields %+v", a)
	}
	if !a.Service.Price.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("unexpected price %s", a.Service.Price)
	}
}

func TestDecodeKeepsFractionalPrice(t *testing.T) {
	body := []byte(`[{"id":1,"horaInicio":"2025-10-10T09:00:00Z","horaFinal":"2025-10-10T09:30:00Z",
		"servicio":{"id":9,"precio":1234.10}}]`)
	items, err := DecodeAppointments(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := items[0].Service.Price.StringFixed(2); got != "1234.10" {
		t.Fatalf("unexpected price %s", got)
	}
}

func TestDecodeAppointmentsLargeID(t *testing.T) {
	body := []byte(`[{"id":9007199254740993,"horaInicio":"2025-10-10T09:00:00Z","horaFinal":"2025-10-10T10:00:00Z"}]`)
	items, err := DecodeAppointments(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if items[0].ID != 9007199254740993 {
		t.Fatalf("64-bit id lost precision: %d", items[0].ID)
	}
}

func TestDecodeAppointmentsRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"oops"`,
		"object":          `{"id":1}`,
		"naive timestamp": `[{"id":1,"horaInicio":"2025-10-10T09:00:00","horaFinal":"2025-10-10T10:00:00"}]`,
		"missing start":   `[{"id":1,"horaFinal":"2025-10-10T10:00:00Z"}]`,
		"duplicate id": `[{"id":1,"horaInicio":"2025-10-10T09:00:00Z","horaFinal":"2025-10-10T10:00:00Z"},
			{"id":1,"horaInicio":"2025-10-11T09:00:00Z","horaFinal":"2025-10-11T10:00:00Z"}]`,
		"bad date": `[{"id":1,"fechaTurno":"10/10/2025","horaInicio":"2025-10-10T09:00:00Z","horaFinal":"2025-10-10T10:00:00Z"}]`,
	}
	for name, body := range cases {
		if _, err := DecodeAppointments([]byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	_, err := DecodeAppointments([]byte(`[{"id":4,"horaInicio":"2025-10-10T09:00:00Z"}]`))
	if !errors.Is(err, ErrMissingTimestamp) {
		t.Fatalf("expected ErrMissingTimestamp, got %v", err)
	}
}

func TestDecodeDerivesDateFromStart(t *testing.T) {
	body := []byte(`[{"id":1,"fechaTurno":"2025-10-11","horaInicio":"2025-10-10T23:30:00-03:00","horaFinal":"2025-10-11T00:30:00-03:00"}]`)
	items, err := DecodeAppointments(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if items[0].Date.String() != "2025-10-10" {
		t.Fatalf("expected date from start, got %s", items[0].Date)
	}
}

func TestDateHelpers(t *testing.T) {
	d := NewDate(2025, time.December, 31)
	if next := d.AddDays(1); next.String() != "2026-01-01" {
		t.Fatalf("unexpected AddDays result %s", next)
	}
	if !d.Before(d.AddDays(1)) || !d.After(d.AddDays(-1)) || d.Compare(d) != 0 {
		t.Fatalf("comparison helpers disagree")
	}
	parsed, err := ParseDate("2025-10-05")
	if err != nil || parsed != NewDate(2025, time.October, 5) {
		t.Fatalf("ParseDate: %v %v", parsed, err)
	}
	if _, err := ParseDate("2025-13-01"); err == nil || !strings.Contains(err.Error(), "2025-13-01") {
		t.Fatalf("expected parse error naming the input, got %v", err)
	}
}
