package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/WessleyAI/wessley-routing/engine/optimizer"
)

// execer is the subset of *sql.DB the recorder needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS navigation_history (
    id                SERIAL PRIMARY KEY,
    session_id        VARCHAR(64) UNIQUE NOT NULL,
    scenario          VARCHAR(32) NOT NULL,
    route_index       INTEGER NOT NULL,
    src_lat           DOUBLE PRECISION NOT NULL,
    src_lon           DOUBLE PRECISION NOT NULL,
    dst_lat           DOUBLE PRECISION NOT NULL,
    dst_lon           DOUBLE PRECISION NOT NULL,
    departure         TIMESTAMPTZ,
    predicted_seconds DOUBLE PRECISION NOT NULL,
    actual_seconds    DOUBLE PRECISION NOT NULL,
    error_seconds     DOUBLE PRECISION NOT NULL,
    adjusted          BOOLEAN NOT NULL DEFAULT FALSE,
    weights           DOUBLE PRECISION[],
    status            VARCHAR(16) NOT NULL DEFAULT 'completed',
    completed_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Redelivered events overwrite the earlier row for the session.
const insertSQL = `
INSERT INTO navigation_history (session_id, scenario, route_index, src_lat, src_lon, dst_lat, dst_lon,
    departure, predicted_seconds, actual_seconds, error_seconds, adjusted, weights, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (session_id) DO UPDATE SET
    route_index = EXCLUDED.route_index,
    actual_seconds = EXCLUDED.actual_seconds,
    error_seconds = EXCLUDED.error_seconds,
    adjusted = EXCLUDED.adjusted,
    weights = EXCLUDED.weights,
    completed_at = EXCLUDED.completed_at`

// Recorder persists trip feedback events to navigation_history.
type Recorder struct {
	db execer
}

// NewRecorder creates a Recorder on db.
func NewRecorder(db execer) *Recorder {
	return &Recorder{db: db}
}

// EnsureSchema creates navigation_history if needed.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create navigation_history: %w", err)
	}
	return nil
}

// Record writes one event.
func (r *Recorder) Record(ctx context.Context, ev optimizer.TripFeedbackEvent) error {
	if ev.SessionID == "" {
		return fmt.Errorf("record trip: empty session id")
	}
	var departure any
	if !ev.Departure.IsZero() {
		departure = ev.Departure
	}
	_, err := r.db.ExecContext(ctx, insertSQL,
		ev.SessionID, string(ev.Scenario), ev.RouteIndex,
		ev.Source.Lat, ev.Source.Lon, ev.Destination.Lat, ev.Destination.Lon,
		departure, ev.PredictedS, ev.ActualS, ev.ErrorS, ev.Adjusted,
		pq.Float64Array(ev.Weights[:]), ev.At,
	)
	if err != nil {
		return fmt.Errorf("record trip %s: %w", ev.SessionID, err)
	}
	return nil
}
