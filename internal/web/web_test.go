package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"turnos/internal/api"
	"turnos/internal/calendar"
	"turnos/internal/config"
	"turnos/internal/model"
	"turnos/internal/store"
)

type fakeRemote struct {
	items     []model.Appointment
	deleteErr error
}

func (f *fakeRemote) ListAppointments(context.Context) ([]model.Appointment, error) {
	return f.items, nil
}

func (f *fakeRemote) DeleteAppointment(context.Context, int64) error {
	return f.deleteErr
}

func fixedNow() time.Time {
	return time.Date(2025, time.October, 10, 10, 0, 0, 0, time.UTC)
}

func mustAppt(t *testing.T, id int64, start, color string) model.Appointment {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, start)
	if err != nil {
		t.Fatal(err)
	}
	a := model.NewAppointment(id, ts, ts.Add(30*time.Minute))
	if color != "" {
		a.Service = &model.ServiceRef{ID: 1, Color: &color}
	}
	return a
}

func newTestServer(t *testing.T, cfg *config.Config, remote *fakeRemote) (*Server, *store.Store) {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	st := store.New(remote, store.Options{Now: fixedNow, Location: time.UTC})
	if err := st.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	cal := calendar.NewController(calendar.NewPager(calendar.DefaultAnchor, calendar.DefaultTotalPages), fixedNow, time.UTC)
	return NewServer(cfg, st, cal, fixedNow), st
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestStateReportsCounts(t *testing.T) {
	srv, _ := newTestServer(t, nil, &fakeRemote{items: []model.Appointment{
		mustAppt(t, 1, "2025-10-10T09:00:00Z", ""),
		mustAppt(t, 2, "2025-10-15T09:00:00Z", ""),
		mustAppt(t, 3, "2025-10-05T09:00:00Z", ""),
	}})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var got stateResponse
	decode(t, rec, &got)
	if got.Count != 3 || got.TodayCount != 1 || got.PendingCount != 1 {
		t.Fatalf("unexpected counts %+v", got)
	}
	if got.Selection.SelectedDate.String() != "2025-10-10" || got.Selection.Page != 0 || got.Selection.VisibleMonth != "2025-10" {
		t.Fatalf("unexpected selection %+v", got.Selection)
	}
}

func TestCalendarMarkersAndSelection(t *testing.T) {
	srv, _ := newTestServer(t, nil, &fakeRemote{items: []model.Appointment{
		mustAppt(t, 1, "2025-10-10T15:00:00Z", "F44336"),
		mustAppt(t, 2, "2025-10-10T09:00:00Z", "2196F3"),
		mustAppt(t, 3, "2025-09-29T09:00:00Z", "2196F3"),
	}})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/calendar")
	var got calendarResponse
	decode(t, rec, &got)
	if len(got.Cells) != calendar.GridCells {
		t.Fatalf("expected %d cells, got %d", calendar.GridCells, len(got.Cells))
	}
	first := got.Cells[0]
	if first.Date.String() != "2025-09-29" || first.InMonth || first.HasAppointment {
		t.Fatalf("leading cell should be out of month without marker: %+v", first)
	}
	var oct10 cellDTO
	for _, c := range got.Cells {
		if c.Date.String() == "2025-10-10" {
			oct10 = c
		}
	}
	if !oct10.Selected || !oct10.HasAppointment || oct10.Marker != "#2196F3" {
		t.Fatalf("unexpected cell for the 10th: %+v", oct10)
	}
}

func TestAppointmentsForDate(t *testing.T) {
	srv, _ := newTestServer(t, nil, &fakeRemote{items: []model.Appointment{
		mustAppt(t, 9007199254740993, "2025-10-12T15:00:00-03:00", ""),
		mustAppt(t, 2, "2025-10-12T09:00:00-03:00", ""),
	}})
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/appointments?date=2025-10-12")
	var day dayResponse
	decode(t, rec, &day)
	if len(day.Appointments) != 2 || day.Appointments[0].ID != 2 || day.Appointments[1].ID != 9007199254740993 {
		t.Fatalf("unexpected appointments %+v", day.Appointments)
	}
	if day.Appointments[0].Time != "09:00" || day.Appointments[0].Label != "Servicio - Cliente" {
		t.Fatalf("unexpected display fields %+v", day.Appointments[0])
	}

	rec = do(t, h, http.MethodGet, "/api/appointments")
	decode(t, rec, &day)
	if day.Date.String() != "2025-10-10" || len(day.Appointments) != 0 {
		t.Fatalf("expected selected date with no appointments, got %+v", day)
	}

	if rec := do(t, h, http.MethodGet, "/api/appointments?date=12/10/2025"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestNavigationEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil, &fakeRemote{})
	h := srv.Handler()

	var sel selectionDTO
	decode(t, do(t, h, http.MethodPost, "/api/month/next"), &sel)
	if sel.Page != 1 || sel.VisibleMonth != "2025-11" {
		t.Fatalf("unexpected selection after next %+v", sel)
	}
	decode(t, do(t, h, http.MethodPost, "/api/page?index=500"), &sel)
	if sel.Page != calendar.DefaultTotalPages-1 {
		t.Fatalf("expected clamped page, got %d", sel.Page)
	}
	decode(t, do(t, h, http.MethodPost, "/api/page?index=-3"), &sel)
	if sel.Page != 0 || sel.VisibleMonth != "2025-10" {
		t.Fatalf("expected first page, got %+v", sel)
	}
	decode(t, do(t, h, http.MethodPost, "/api/month/prev"), &sel)
	if sel.Page != 0 {
		t.Fatalf("prev on first page should stay, got %d", sel.Page)
	}
	decode(t, do(t, h, http.MethodPost, "/api/select?date=2025-12-24"), &sel)
	if sel.SelectedDate.String() != "2025-12-24" || sel.VisibleMonth != "2025-10" {
		t.Fatalf("select must not change the month: %+v", sel)
	}
	if rec := do(t, h, http.MethodPost, "/api/page?index=x"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/month/next"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestDeleteEndpoint(t *testing.T) {
	remote := &fakeRemote{items: []model.Appointment{
		mustAppt(t, 1, "2025-10-10T09:00:00Z", ""),
		mustAppt(t, 2, "2025-10-10T11:00:00Z", ""),
	}}
	srv, st := newTestServer(t, nil, remote)
	h := srv.Handler()

	if rec := do(t, h, http.MethodDelete, "/api/appointments/1"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(st.Items()) != 1 {
		t.Fatalf("expected one item left")
	}

	remote.deleteErr = fmt.Errorf("%w: 503", api.ErrNetwork)
	rec := do(t, h, http.MethodDelete, "/api/appointments/2")
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), store.MsgDeleteFailed) {
		t.Fatalf("expected 502 with message, got %d %s", rec.Code, rec.Body.String())
	}
	if len(st.Items()) != 1 {
		t.Fatalf("expected rollback to keep the item")
	}

	remote.deleteErr = api.ErrUnauthenticated
	if rec := do(t, h, http.MethodDelete, "/api/appointments/2"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/appointments/abc"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestExports(t *testing.T) {
	srv, _ := newTestServer(t, nil, &fakeRemote{items: []model.Appointment{mustAppt(t, 1, "2025-10-10T09:00:00Z", "")}})
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/appointments.ics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "BEGIN:VEVENT") {
		t.Fatalf("unexpected ics response %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/appointments.xlsx")
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("unexpected xlsx response %d", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", PasswordHash: hash}
	srv, _ := newTestServer(t, cfg, &fakeRemote{})
	h := srv.Handler()

	if rec := do(t, h, http.MethodGet, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/state"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}

	for _, c := range []struct {
		user, pass string
		want       int
	}{
		{user: "admin", pass: "s3cret", want: http.StatusOK},
		{user: "admin", pass: "wrong", want: http.StatusUnauthorized},
		{user: "root", pass: "s3cret", want: http.StatusUnauthorized},
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
		req.SetBasicAuth(c.user, c.pass)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Fatalf("%s/%s: expected %d, got %d", c.user, c.pass, c.want, rec.Code)
		}
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("pw")
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := VerifyPassword("pw", hash); err != nil || !ok {
		t.Fatalf("expected match, got %v %v", ok, err)
	}
	if ok, _ := VerifyPassword("nope", hash); ok {
		t.Fatalf("expected mismatch")
	}
	if _, err := VerifyPassword("pw", "$2a$10$bcrypt"); err == nil {
		t.Fatalf("expected error for non-argon2 hash")
	}
}

func TestCalendarGridMatchesReturnedSelection(t *testing.T) {
	srv, _ := newTestServer(t, nil, &fakeRemote{})
	h := srv.Handler()

	stop := make(chan struct{})
	paged := make(chan struct{})
	go func() {
		defer close(paged)
		for {
			select {
			case <-stop:
				return
			default:
				srv.cal.GoToNextMonth()
				srv.cal.GoToPreviousMonth()
			}
		}
	}()
	defer func() {
		close(stop)
		<-paged
	}()

	for range 200 {
		rec := do(t, h, http.MethodGet, "/api/calendar")
		var resp calendarResponse
		decode(t, rec, &resp)
		for _, c := range resp.Cells {
			if c.InMonth && calendar.MonthOf(c.Date).String() != resp.Selection.VisibleMonth {
				t.Fatalf("cell %s marked in month but selection shows %s", c.Date, resp.Selection.VisibleMonth)
			}
		}
	}
}

func TestDeleteErrorBodyIgnoresLaterFetch(t *testing.T) {
	remote := &fakeRemote{items: []model.Appointment{mustAppt(t, 1, "2025-10-10T09:00:00Z", "")}}
	srv, st := newTestServer(t, nil, remote)
	h := srv.Handler()

	// A refresh starts as soon as the failure is recorded and clears it.
	refreshed := false
	st.Subscribe(func(snap store.Snapshot) {
		if snap.LastError != "" && !refreshed {
			refreshed = true
			_ = st.Refresh(context.Background())
		}
	})

	remote.deleteErr = api.ErrUnauthenticated
	rec := do(t, h, http.MethodDelete, "/api/appointments/1")
	if !refreshed || st.LastError() != "" {
		t.Fatalf("expected the refresh to clear the store error, got %q", st.LastError())
	}
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), store.MsgUnauthenticated) {
		t.Fatalf("expected 401 with message, got %d %s", rec.Code, rec.Body.String())
	}

	remote.deleteErr = api.ErrNetwork
	refreshed = false
	rec = do(t, h, http.MethodDelete, "/api/appointments/1")
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), store.MsgDeleteFailed) {
		t.Fatalf("expected 502 with message, got %d %s", rec.Code, rec.Body.String())
	}
}
