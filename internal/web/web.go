package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"turnos/internal/api"
	"turnos/internal/calendar"
	"turnos/internal/config"
	"turnos/internal/ics"
	appLog "turnos/internal/log"
	"turnos/internal/model"
	"turnos/internal/sheet"
	"turnos/internal/store"
)

// Server exposes the appointment store and calendar selection over a small
// JSON API for local clients.
type Server struct {
	cfg   *config.Config
	store *store.Store
	cal   *calendar.Controller
	now   func() time.Time
	mux   *http.ServeMux
}

// NewServer constructs a new Server. now defaults to time.Now and is only
// used for export timestamps.
func NewServer(cfg *config.Config, st *store.Store, cal *calendar.Controller, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	s := &Server{
		cfg:   cfg,
		store: st,
		cal:   cal,
		now:   now,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if basicAuthEnabled(s.cfg) {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return basicAuthMiddleware(*s.cfg.BasicAuth, h)
	}
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /api/appointments", s.handleAppointments)
	s.mux.HandleFunc("GET /api/appointments.ics", s.handleICS)
	s.mux.HandleFunc("GET /api/appointments.xlsx", s.handleXLSX)
	s.mux.HandleFunc("DELETE /api/appointments/{id}", s.handleDelete)
	s.mux.HandleFunc("POST /api/select", s.handleSelect)
	s.mux.HandleFunc("POST /api/month/prev", s.handlePrevMonth)
	s.mux.HandleFunc("POST /api/month/next", s.handleNextMonth)
	s.mux.HandleFunc("POST /api/page", s.handlePage)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// stateResponse is the JSON response shape for /api/state.
type stateResponse struct {
	Count          int          `json:"count"`
	Loading        bool         `json:"loading"`
	Refreshing     bool         `json:"refreshing"`
	PendingDeletes int          `json:"pending_deletes"`
	LastError      string       `json:"last_error,omitempty"`
	ErrorKind      string       `json:"error_kind,omitempty"`
	NeedsLogin     bool         `json:"needs_login"`
	Today          model.Date   `json:"today"`
	TodayCount     int          `json:"today_count"`
	PendingCount   int          `json:"pending_count"`
	Selection      selectionDTO `json:"selection"`
	Version        uint64       `json:"version"`
}

type selectionDTO struct {
	SelectedDate model.Date `json:"selected_date"`
	Page         int        `json:"page"`
	TotalPages   int        `json:"total_pages"`
	VisibleMonth string     `json:"visible_month"`
}

// cellDTO is one day of the month grid.
type cellDTO struct {
	Date           model.Date `json:"date"`
	Day            int        `json:"day"`
	InMonth        bool       `json:"in_month"`
	Selected       bool       `json:"selected"`
	HasAppointment bool       `json:"has_appointment"`
	Marker         string     `json:"marker,omitempty"`
}

type calendarResponse struct {
	Selection selectionDTO `json:"selection"`
	Cells     []cellDTO    `json:"cells"`
}

// appointmentDTO is a display-ready view of one appointment.
type appointmentDTO struct {
	ID     int64      `json:"id,string"`
	Date   model.Date `json:"date"`
	Time   string     `json:"time"`
	Start  time.Time  `json:"start"`
	End    time.Time  `json:"end"`
	Label  string     `json:"label"`
	Color  string     `json:"color"`
	Status *string    `json:"status,omitempty"`
	Notes  *string    `json:"notes,omitempty"`
}

type dayResponse struct {
	Date         model.Date       `json:"date"`
	Appointments []appointmentDTO `json:"appointments"`
}

func (s *Server) selection() selectionDTO {
	return s.selectionOf(s.cal.Selection())
}

func (s *Server) selectionOf(sel calendar.Selection) selectionDTO {
	return selectionDTO{
		SelectedDate: sel.SelectedDate,
		Page:         sel.Page,
		TotalPages:   s.cal.Pager().TotalPages(),
		VisibleMonth: sel.VisibleMonth.String(),
	}
}

func (s *Server) state() stateResponse {
	snap := s.store.Snapshot()
	return stateResponse{
		Count:          len(snap.Items),
		Loading:        snap.Loading,
		Refreshing:     snap.Refreshing,
		PendingDeletes: snap.PendingDeletes,
		LastError:      snap.LastError,
		ErrorKind:      snap.ErrKind,
		NeedsLogin:     snap.NeedsLogin(),
		Today:          s.store.Today(),
		TodayCount:     s.store.TodayCount(),
		PendingCount:   s.store.PendingCount(),
		Selection:      s.selection(),
		Version:        snap.Version,
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

// handleCalendar returns the 6x7 grid of the visible month with selection
// and per-day markers. Markers are only set on in-month cells.
func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	sel := s.cal.Selection()
	month := sel.VisibleMonth
	cells, err := calendar.Grid(month)
	if err != nil {
		appLog.Error("api calendar: grid failed", err, "month", month.String())
		writeError(w, http.StatusInternalServerError, "failed to build month grid")
		return
	}

	out := make([]cellDTO, 0, len(cells))
	for _, c := range cells {
		dto := cellDTO{
			Date:     c.Date,
			Day:      c.Date.Day,
			InMonth:  c.InMonth,
			Selected: c.Date == sel.SelectedDate,
		}
		if c.InMonth {
			if col, ok := s.store.RepresentativeColorOn(c.Date); ok {
				dto.HasAppointment = true
				dto.Marker = model.HexColor(col)
			}
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, calendarResponse{Selection: s.selectionOf(sel), Cells: out})
}

// handleAppointments lists one day's appointments.
//
// GET /api/appointments?date=YYYY-MM-DD (defaults to the selected date)
func (s *Server) handleAppointments(w http.ResponseWriter, r *http.Request) {
	d := s.cal.SelectedDate()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := model.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		d = parsed
	}

	items := s.store.ForDate(d)
	out := make([]appointmentDTO, 0, len(items))
	for _, a := range items {
		out = append(out, toAppointmentDTO(a))
	}
	writeJSON(w, http.StatusOK, dayResponse{Date: d, Appointments: out})
}

func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	body := ics.Export(s.store.Items(), s.cfg.ICS.ProductID, s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="turnos.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleXLSX(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := sheet.Write(&buf, s.store.Items()); err != nil {
		appLog.Error("api xlsx export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build spreadsheet")
		return
	}
	w.Header().Set("Content-Type", sheet.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="turnos.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleDelete removes an appointment optimistically. The store call ignores
// request cancellation.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	if err := s.store.DeleteAppointment(ctx, id); err != nil {
		s.writeStoreError(w, err, store.MsgDeleteFailed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Refresh(r.Context()); err != nil {
		s.writeStoreError(w, err, store.MsgFetchFailed)
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

// handleSelect selects a date without changing the visible month.
//
// POST /api/select?date=YYYY-MM-DD
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	d, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	s.cal.SelectDate(d)
	writeJSON(w, http.StatusOK, s.selection())
}

func (s *Server) handlePrevMonth(w http.ResponseWriter, _ *http.Request) {
	s.cal.GoToPreviousMonth()
	writeJSON(w, http.StatusOK, s.selection())
}

func (s *Server) handleNextMonth(w http.ResponseWriter, _ *http.Request) {
	s.cal.GoToNextMonth()
	writeJSON(w, http.StatusOK, s.selection())
}

// handlePage jumps to a page; out-of-range indexes are clamped.
//
// POST /api/page?index=N
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	s.cal.GoToPage(index)
	writeJSON(w, http.StatusOK, s.selection())
}

// writeStoreError maps a store failure to a status. The body carries the
// same user-facing message the store records for err.
func (s *Server) writeStoreError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	case errors.Is(err, api.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, store.Message(err, fallback))
	default:
		writeError(w, http.StatusBadGateway, store.Message(err, fallback))
	}
}

func toAppointmentDTO(a model.Appointment) appointmentDTO {
	return appointmentDTO{
		ID:     a.ID,
		Date:   a.Date,
		Time:   a.FormattedTime(),
		Start:  a.Start,
		End:    a.End,
		Label:  a.DisplayLabel(),
		Color:  model.HexColor(a.DisplayColor()),
		Status: a.Status,
		Notes:  a.Notes,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
