package store

import (
	"context"
	"errors"
	"image/color"
	"slices"
	"sync"
	"time"

	"turnos/internal/api"
	appLog "turnos/internal/log"
	"turnos/internal/model"
)

// User-facing failure messages. Network and decode failures share one text.
const (
	MsgUnauthenticated = "Autenticación requerida."
	MsgFetchFailed     = "No se pudieron cargar los turnos."
	MsgDeleteFailed    = "No se pudo eliminar el turno."
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("store: closed")

// Remote is the backend the store synchronises with.
type Remote interface {
	ListAppointments(ctx context.Context) ([]model.Appointment, error)
	DeleteAppointment(ctx context.Context, id int64) error
}

// Snapshot is an immutable view of the store handed to subscribers.
type Snapshot struct {
	Items          []model.Appointment
	Loading        bool
	Refreshing     bool
	PendingDeletes int
	LastError      string
	// ErrKind is the api.ErrorKind label of the last failure.
	ErrKind string
	Version uint64
}

// NeedsLogin reports whether the last failure was an authentication one.
func (s Snapshot) NeedsLogin() bool {
	return s.ErrKind == api.KindUnauthenticated
}

// Settled is true when no request is in flight, so Items agrees with the
// backend as far as the store knows.
func (s Snapshot) Settled() bool {
	return !s.Loading && !s.Refreshing && s.PendingDeletes == 0
}

type Options struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// Location decides what "today" is. Defaults to time.Local.
	Location *time.Location
}

// Store holds the authoritative in-memory appointment list and its day index.
// Every mutation is applied atomically and published to subscribers in order.
type Store struct {
	remote Remote
	now    func() time.Time
	loc    *time.Location

	mu         sync.Mutex
	items      []model.Appointment
	index      *DayIndex
	loading    int
	refreshing int
	deleting   int
	lastErr    string
	errKind    string
	version    uint64
	closed     bool
	subs       map[int]func(Snapshot)
	nextSub    int
	pending    []Snapshot
	draining   bool
}

// New creates an empty store backed by remote.
func New(remote Remote, opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Store{
		remote: remote,
		now:    opts.Now,
		loc:    opts.Location,
		index:  NewDayIndex(nil),
		subs:   make(map[int]func(Snapshot)),
	}
}

// FetchAll replaces the list with the backend's. On failure the list is kept
// and the error is recorded; the returned error is informational.
func (s *Store) FetchAll(ctx context.Context) error {
	return s.fetch(ctx, false)
}

// Refresh is FetchAll flagged as a pull-to-refresh.
func (s *Store) Refresh(ctx context.Context) error {
	return s.fetch(ctx, true)
}

func (s *Store) fetch(ctx context.Context, refresh bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if refresh {
		s.refreshing++
	} else {
		s.loading++
	}
	s.clearErrorLocked()
	s.publishLocked()

	items, err := s.remote.ListAppointments(ctx)

	s.mu.Lock()
	if refresh {
		s.refreshing--
	} else {
		s.loading--
	}
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		kind := api.ErrorKind(err)
		if kind == api.KindDecode {
			appLog.Error("appointments response did not match the expected shape", err, "kind", kind, "refresh", refresh)
		} else {
			appLog.Error("appointments fetch failed", err, "kind", kind, "refresh", refresh)
		}
		s.setErrorLocked(err, MsgFetchFailed)
		s.publishLocked()
		return err
	}

	s.items = slices.Clone(items)
	s.index = NewDayIndex(s.items)
	appLog.Debug("appointments replaced", "count", len(s.items), "refresh", refresh)
	s.publishLocked()
	return nil
}

// DeleteAppointment removes id locally before asking the backend. If the
// backend refuses, the record is put back where it was and the error is
// recorded. An id the backend no longer knows stays removed.
func (s *Store) DeleteAppointment(ctx context.Context, id int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	pos := slices.IndexFunc(s.items, func(a model.Appointment) bool { return a.ID == id })
	var removed model.Appointment
	if pos >= 0 {
		removed = s.items[pos]
		s.items = slices.Delete(slices.Clone(s.items), pos, pos+1)
		s.index.remove(removed.Date, id)
	}
	s.deleting++
	s.publishLocked()

	err := s.remote.DeleteAppointment(ctx, id)

	s.mu.Lock()
	s.deleting--
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	switch {
	case err == nil:
		s.publishLocked()
		return nil
	case errors.Is(err, api.ErrNotFound):
		appLog.Info("appointment already gone on the backend", "id", id)
		s.publishLocked()
		return nil
	}

	appLog.Error("appointment delete failed", err, "id", id, "kind", api.ErrorKind(err))
	if pos >= 0 && !s.containsLocked(id) {
		at := min(pos, len(s.items))
		s.items = slices.Insert(slices.Clone(s.items), at, removed)
		s.index.insert(removed)
	}
	s.setErrorLocked(err, MsgDeleteFailed)
	s.publishLocked()
	return err
}

// Close detaches the store from its owner. Responses arriving later are
// dropped and subscribers are released.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = make(map[int]func(Snapshot))
}

// Subscribe registers fn for every later change. The returned func removes it.
// fn runs on whichever goroutine is draining notifications; it may read the
// store but should not block.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Items returns a copy of the current list in backend order.
func (s *Store) Items() []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Get looks up one appointment by id.
func (s *Store) Get(id int64) (model.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.items, func(a model.Appointment) bool { return a.ID == id })
	if i < 0 {
		return model.Appointment{}, false
	}
	return s.items[i], true
}

func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading > 0
}

func (s *Store) IsRefreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshing > 0
}

// LastError is the user-facing message of the last failure, or "".
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Today is the current civil date in the store's location.
func (s *Store) Today() model.Date {
	return model.DateOf(s.now().In(s.loc))
}

// TodayCount is the number of appointments dated today.
func (s *Store) TodayCount() int {
	today := s.Today()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.CountOn(today)
}

// PendingCount is the number of appointments dated strictly after today.
func (s *Store) PendingCount() int {
	today := s.Today()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.items {
		if a.Date.After(today) {
			n++
		}
	}
	return n
}

// ForDate returns the appointments on d ordered by start time.
func (s *Store) ForDate(d model.Date) []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.AppointmentsOn(d)
}

func (s *Store) HasAppointmentOn(d model.Date) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.HasAppointmentOn(d)
}

func (s *Store) RepresentativeColorOn(d model.Date) (color.RGBA, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.RepresentativeColorOn(d)
}

// Dates lists the days with at least one appointment.
func (s *Store) Dates() []model.Date {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Dates()
}

func (s *Store) containsLocked(id int64) bool {
	return slices.ContainsFunc(s.items, func(a model.Appointment) bool { return a.ID == id })
}

func (s *Store) clearErrorLocked() {
	s.lastErr = ""
	s.errKind = ""
}

func (s *Store) setErrorLocked(err error, fallback string) {
	s.errKind = api.ErrorKind(err)
	s.lastErr = Message(err, fallback)
}

// Message is the user-facing text recorded for err. fallback is the
// operation's generic message (MsgFetchFailed or MsgDeleteFailed).
func Message(err error, fallback string) string {
	if api.IsUnauthenticated(err) {
		return MsgUnauthenticated
	}
	return fallback
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Items:          slices.Clone(s.items),
		Loading:        s.loading > 0,
		Refreshing:     s.refreshing > 0,
		PendingDeletes: s.deleting,
		LastError:      s.lastErr,
		ErrKind:        s.errKind,
		Version:        s.version,
	}
}

// publishLocked is entered with mu held and releases it. Snapshots queue in
// mutation order and one caller at a time drains the queue with mu released,
// so subscribers may call back into the store.
func (s *Store) publishLocked() {
	s.version++
	s.pending = append(s.pending, s.snapshotLocked())
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.pending) > 0 {
		snap := s.pending[0]
		s.pending = s.pending[1:]
		subs := make([]func(Snapshot), 0, len(s.subs))
		for _, fn := range s.subs {
			subs = append(subs, fn)
		}
		s.mu.Unlock()
		for _, fn := range subs {
			fn(snap)
		}
		s.mu.Lock()
	}
	s.pending = nil
	s.draining = false
	s.mu.Unlock()
}
