// Package sheet exports the appointment list as an .xlsx workbook.
package sheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"turnos/internal/model"
)

// SheetName is the single worksheet written by Write.
const SheetName = "Turnos"

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = []string{"id", "fecha", "hora", "fin", "servicio", "cliente", "profesional", "estado", "precio", "color", "notas"}

// Write renders items, one row each under a header row, into w.
func Write(w io.Writer, items []model.Appointment) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), SheetName); err != nil {
		return fmt.Errorf("sheet: rename: %w", err)
	}
	if err := setRow(f, 1, toAny(headers)); err != nil {
		return err
	}
	for i, a := range items {
		if err := setRow(f, i+2, row(a)); err != nil {
			return err
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("sheet: write: %w", err)
	}
	return nil
}

func row(a model.Appointment) []any {
	service, price := "", ""
	if a.Service != nil {
		service = deref(a.Service.Name)
		price = a.Service.Price.StringFixed(2)
	}
	client := ""
	if a.Client != nil {
		client = deref(a.Client.Name)
	}
	staff := ""
	if a.Staff != nil {
		staff = deref(a.Staff.Username)
	}
	return []any{
		fmt.Sprint(a.ID),
		a.Date.String(),
		a.FormattedTime(),
		a.End.Format("15:04"),
		service,
		client,
		staff,
		deref(a.Status),
		price,
		model.HexColor(a.DisplayColor()),
		deref(a.Notes),
	}
}

func setRow(f *excelize.File, n int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, n)
		if err != nil {
			return fmt.Errorf("sheet: cell %d,%d: %w", col+1, n, err)
		}
		if err := f.SetCellValue(SheetName, cell, v); err != nil {
			return fmt.Errorf("sheet: set %s: %w", cell, err)
		}
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
