package cost

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lib/pq"

	"github.com/WessleyAI/wessley-routing/engine/domain"
)

// WeightStore persists learned weight vectors across restarts.
type WeightStore interface {
	Load(ctx context.Context) (map[domain.Scenario]Vector, error)
	Save(ctx context.Context, weights map[domain.Scenario]Vector) error
}

// Persist writes the learner's current vectors to store.
func (l *Learner) Persist(ctx context.Context, store WeightStore) error {
	return store.Save(ctx, l.Snapshot())
}

// Restore loads vectors from store and applies every valid one. It returns
// the number of scenarios restored.
func (l *Learner) Restore(ctx context.Context, store WeightStore) (int, error) {
	w, err := store.Load(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for s, v := range w {
		if l.SetWeights(s, v) == nil {
			n++
		}
	}
	return n, nil
}

// FileStore keeps weights in a JSON file.
type FileStore struct {
	Path string
}

// NewFileStore creates a store at path.
func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

// Load reads the file. A missing file yields an empty map.
func (f *FileStore) Load(_ context.Context) (map[domain.Scenario]Vector, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[domain.Scenario]Vector{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cost: read weights: %w", err)
	}
	var out map[domain.Scenario]Vector
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cost: decode weights %s: %w", f.Path, err)
	}
	return out, nil
}

// Save writes the file through a temp file and rename, so readers never
// see a partial document.
func (f *FileStore) Save(_ context.Context, weights map[domain.Scenario]Vector) error {
	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return fmt.Errorf("cost: encode weights: %w", err)
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cost: weights dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".weights-*.json")
	if err != nil {
		return fmt.Errorf("cost: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cost: write weights: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cost: close weights: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("cost: rename weights: %w", err)
	}
	return nil
}

// PostgresStore keeps weights in the scenario_weights table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on db.
func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const weightsSchema = `
CREATE TABLE IF NOT EXISTS scenario_weights (
    scenario   TEXT PRIMARY KEY,
    weights    DOUBLE PRECISION[] NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the table if needed.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, weightsSchema); err != nil {
		return fmt.Errorf("cost: create scenario_weights: %w", err)
	}
	return nil
}

// Load reads every row. Rows with the wrong arity are skipped.
func (p *PostgresStore) Load(ctx context.Context) (map[domain.Scenario]Vector, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT scenario, weights FROM scenario_weights`)
	if err != nil {
		return nil, fmt.Errorf("cost: load weights: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Scenario]Vector)
	for rows.Next() {
		var (
			name string
			arr  pq.Float64Array
		)
		if err := rows.Scan(&name, &arr); err != nil {
			return nil, fmt.Errorf("cost: scan weights: %w", err)
		}
		if len(arr) != len(Vector{}) {
			continue
		}
		var v Vector
		copy(v[:], arr)
		out[domain.Scenario(name)] = v
	}
	return out, rows.Err()
}

const upsertWeightsSQL = `
INSERT INTO scenario_weights (scenario, weights, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (scenario) DO UPDATE
SET weights = EXCLUDED.weights, updated_at = EXCLUDED.updated_at`

// Save upserts every scenario in one transaction.
func (p *PostgresStore) Save(ctx context.Context, weights map[domain.Scenario]Vector) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cost: begin: %w", err)
	}
	defer tx.Rollback()

	for s, v := range weights {
		if _, err := tx.ExecContext(ctx, upsertWeightsSQL, string(s), pq.Float64Array(v[:])); err != nil {
			return fmt.Errorf("cost: save %s: %w", s, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cost: commit: %w", err)
	}
	return nil
}
