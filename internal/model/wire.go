package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AppointmentDTO is the JSON shape served by the appointments endpoint.
type AppointmentDTO struct {
	ID         int64          `json:"id"`
	Date       *Date          `json:"fechaTurno,omitempty"`
	Start      *time.Time     `json:"horaInicio"`
	End        *time.Time     `json:"horaFinal"`
	Status     *string        `json:"estado"`
	Notes      *string        `json:"notas"`
	BusinessID int64          `json:"negocioId"`
	Service    *ServiceRefDTO `json:"servicio"`
	Client     *ClientRefDTO  `json:"cliente"`
	Staff      *StaffRefDTO   `json:"empleado"`
}

type ServiceRefDTO struct {
	ID          int64           `json:"id"`
	Name        *string         `json:"nombre"`
	Description *string         `json:"descripcion"`
	Duration    int             `json:"duracion"`
	Price       decimal.Decimal `json:"precio"`
	Color       *string         `json:"color"`
	Active      *bool           `json:"activo"`
}

type ClientRefDTO struct {
	ID    int64   `json:"id"`
	Name  *string `json:"nombre"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"telefono,omitempty"`
}

type StaffRefDTO struct {
	ID       int64   `json:"id"`
	Username *string `json:"nombreUsuario"`
	Role     *string `json:"rolNegocio"`
	Active   *bool   `json:"activo"`
}

// ErrMissingTimestamp is returned when a record has no start or end time.
var ErrMissingTimestamp = errors.New("model: missing start or end timestamp")

// DecodeAppointments parses a JSON array of appointments. Timestamps must
// carry an explicit offset; the civil date is always derived from the start.
func DecodeAppointments(body []byte) ([]Appointment, error) {
	var dtos []AppointmentDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("decode appointments: %w", err)
	}
	out := make([]Appointment, 0, len(dtos))
	seen := make(map[int64]struct{}, len(dtos))
	for i, dto := range dtos {
		a, err := dto.ToAppointment()
		if err != nil {
			return nil, fmt.Errorf("decode appointments: item %d: %w", i, err)
		}
		if _, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("decode appointments: duplicate id %d", a.ID)
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

// ToAppointment converts the wire record into the local model.
func (d AppointmentDTO) ToAppointment() (Appointment, error) {
	if d.Start == nil || d.End == nil {
		return Appointment{}, fmt.Errorf("id %d: %w", d.ID, ErrMissingTimestamp)
	}
	a := NewAppointment(d.ID, *d.Start, *d.End)
	a.Status = d.Status
	a.Notes = d.Notes
	a.BusinessID = d.BusinessID
	if d.Service != nil {
		a.Service = &ServiceRef{
			ID:          d.Service.ID,
			Name:        d.Service.Name,
			Description: d.Service.Description,
			Duration:    d.Service.Duration,
			Price:       d.Service.Price,
			Color:       d.Service.Color,
			Active:      d.Service.Active,
		}
	}
	if d.Client != nil {
		a.Client = &ClientRef{ID: d.Client.ID, Name: d.Client.Name, Email: d.Client.Email, Phone: d.Client.Phone}
	}
	if d.Staff != nil {
		a.Staff = &StaffRef{ID: d.Staff.ID, Username: d.Staff.Username, Role: d.Staff.Role, Active: d.Staff.Active}
	}
	return a, nil
}

// ToDTO converts a record back into its wire shape.
func ToDTO(a Appointment) AppointmentDTO {
	date := a.Date
	start, end := a.Start, a.End
	d := AppointmentDTO{
		ID:         a.ID,
		Date:       &date,
		Start:      &start,
		End:        &end,
		Status:     a.Status,
		Notes:      a.Notes,
		BusinessID: a.BusinessID,
	}
	if s := a.Service; s != nil {
		d.Service = &ServiceRefDTO{ID: s.ID, Name: s.Name, Description: s.Description, Duration: s.Duration, Price: s.Price, Color: s.Color, Active: s.Active}
	}
	if c := a.Client; c != nil {
		d.Client = &ClientRefDTO{ID: c.ID, Name: c.Name, Email: c.Email, Phone: c.Phone}
	}
	if s := a.Staff; s != nil {
		d.Staff = &StaffRefDTO{ID: s.ID, Username: s.Username, Role: s.Role, Active: s.Active}
	}
	return d
}
