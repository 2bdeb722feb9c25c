package sheet

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"turnos/internal/model"
)

func TestWriteRows(t *testing.T) {
	zone := time.FixedZone("-03", -3*3600)
	start := time.Date(2025, time.October, 10, 9, 0, 0, 0, zone)
	name, client, status := "Corte", "Ana", "CONFIRMADO"
	a := model.NewAppointment(9007199254740993, start, start.Add(45*time.Minute))
	a.Service = &model.ServiceRef{ID: 1, Name: &name, Price: decimal.NewFromInt(1500)}
	a.Client = &model.ClientRef{ID: 2, Name: &client}
	a.Status = &status
	b := model.NewAppointment(2, start.Add(time.Hour), start.Add(2*time.Hour))

	var buf bytes.Buffer
	if err := Write(&buf, []model.Appointment{a, b}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "id" || rows[0][1] != "fecha" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	got := rows[1]
	want := []string{"9007199254740993", "2025-10-10", "09:00", "09:45", "Corte", "Ana", "", "CONFIRMADO", "1500.00", "#667EEA"}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("column %s: expected %q, got %q (row %v)", headers[i], w, got[i], got)
		}
	}
	if rows[2][0] != "2" || rows[2][9] != "#667EEA" {
		t.Fatalf("unexpected second row %v", rows[2])
	}
}
