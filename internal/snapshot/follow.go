package snapshot

import (
	"context"
	"time"

	appLog "turnos/internal/log"
	"turnos/internal/model"
	"turnos/internal/store"
)

// Follow saves every settled state of s until ctx is done. Saves run on a
// separate goroutine and bursts collapse to the newest list. The returned
// func blocks until that goroutine has exited.
func (m *Mirror) Follow(ctx context.Context, s *store.Store, now func() time.Time) (wait func()) {
	if now == nil {
		now = time.Now
	}
	latest := make(chan []model.Appointment, 1)

	unsubscribe := s.Subscribe(func(snap store.Snapshot) {
		if !snap.Settled() {
			return
		}
		// Deliveries are serialized, so this is the only sender.
		select {
		case <-latest:
		default:
		}
		latest <- snap.Items
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case items := <-latest:
				if err := m.Save(ctx, items, now()); err != nil {
					appLog.Error("snapshot save failed", err, "count", len(items))
					continue
				}
				appLog.Debug("snapshot saved", "count", len(items))
			}
		}
	}()
	return func() { <-done }
}
