// Package snapshot mirrors the last settled appointment list into a local
// SQLite file for other local tools. The store never reads it back.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"turnos/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS appointments (
	id       INTEGER PRIMARY KEY,
	position INTEGER NOT NULL,
	payload  TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const savedAtKey = "saved_at"

// Mirror is a single-list SQLite file.
type Mirror struct {
	db *sql.DB
}

// Open opens (or creates) the cache at path and applies the schema.
func Open(ctx context.Context, path string) (*Mirror, error) {
	if path == "" {
		return nil, errors.New("snapshot: path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	// One connection serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("snapshot: migrate: %w", err)
	}
	return &Mirror{db: db}, nil
}

func (m *Mirror) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Save replaces the stored list with items, keeping their order.
func (m *Mirror) Save(ctx context.Context, items []model.Appointment, savedAt time.Time) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM appointments`); err != nil {
		return fmt.Errorf("snapshot: clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO appointments (id, position, payload) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("snapshot: prepare: %w", err)
	}
	defer stmt.Close()

	for i, a := range items {
		payload, err := json.Marshal(model.ToDTO(a))
		if err != nil {
			return fmt.Errorf("snapshot: encode %d: %w", a.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, a.ID, i, string(payload)); err != nil {
			return fmt.Errorf("snapshot: insert %d: %w", a.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		savedAtKey, savedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("snapshot: stamp: %w", err)
	}
	return tx.Commit()
}

// Load returns the stored list and when it was saved. An empty mirror yields
// a nil list and a zero time.
func (m *Mirror) Load(ctx context.Context) ([]model.Appointment, time.Time, error) {
	var savedAt time.Time
	var raw string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, savedAtKey).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, time.Time{}, nil
	case err != nil:
		return nil, time.Time{}, fmt.Errorf("snapshot: read stamp: %w", err)
	}
	if savedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
		return nil, time.Time{}, fmt.Errorf("snapshot: bad stamp %q: %w", raw, err)
	}

	rows, err := m.db.QueryContext(ctx, `SELECT payload FROM appointments ORDER BY position`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("snapshot: query: %w", err)
	}
	defer rows.Close()

	var items []model.Appointment
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, time.Time{}, fmt.Errorf("snapshot: scan: %w", err)
		}
		var dto model.AppointmentDTO
		if err := json.Unmarshal([]byte(payload), &dto); err != nil {
			return nil, time.Time{}, fmt.Errorf("snapshot: decode: %w", err)
		}
		a, err := dto.ToAppointment()
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("snapshot: decode: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("snapshot: rows: %w", err)
	}
	return items, savedAt, nil
}
