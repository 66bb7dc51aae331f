// Command learning-snapshot fetches the learning statistics from the routing
// API, computes per-scenario deltas against the previous run, and writes
// JSON files for the weights dashboard.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/WessleyAI/wessley-routing/engine/cost"
	"github.com/WessleyAI/wessley-routing/engine/domain"
)

// Snapshot is one poll of /api/learning/stats.
type Snapshot struct {
	Timestamp time.Time    `json:"timestamp"`
	Scenarios []cost.Stats `json:"scenarios"`
}

// ScenarioDelta is the change of one scenario between two snapshots.
type ScenarioDelta struct {
	Scenario    domain.Scenario `json:"scenario"`
	NewTrips    int             `json:"new_trips"`
	MAEMinutes  float64         `json:"mae_minutes"`
	MAEChange   float64         `json:"mae_change"`
	WeightDrift float64         `json:"weight_drift"` // L1 distance between weight vectors
	Weights     cost.Vector     `json:"weights"`
}

// Delta is one history entry.
type Delta struct {
	Timestamp time.Time       `json:"timestamp"`
	Period    string          `json:"period"`
	Scenarios []ScenarioDelta `json:"scenarios"`
}

const maxHistory = 288

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "routing API base URL")
	outDir := flag.String("out", "docs/data", "output directory")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 15 * time.Second}
	delta, err := collect(ctx, client, *apiURL, *outDir, time.Now().UTC())
	if err != nil {
		log.Error("snapshot failed", "error", err)
		os.Exit(1)
	}
	for _, d := range delta.Scenarios {
		log.Info("scenario delta",
			"scenario", d.Scenario,
			"new_trips", d.NewTrips,
			"mae_minutes", d.MAEMinutes,
			"weight_drift", d.WeightDrift,
		)
	}
}

// collect fetches a snapshot, appends its delta to the history in dir and
// makes it the baseline for the next run.
func collect(ctx context.Context, client *http.Client, apiURL, dir string, now time.Time) (Delta, error) {
	current, err := fetch(ctx, client, apiURL)
	if err != nil {
		return Delta{}, err
	}
	current.Timestamp = now

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Delta{}, fmt.Errorf("output dir: %w", err)
	}
	latestPath := filepath.Join(dir, "learning-latest.json")
	historyPath := filepath.Join(dir, "learning-history.json")

	var prev Snapshot
	if err := readJSON(latestPath, &prev); err != nil {
		return Delta{}, err
	}
	delta := computeDelta(prev, current)

	var history []Delta
	if err := readJSON(historyPath, &history); err != nil {
		return Delta{}, err
	}
	history = append(history, delta)
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	if err := writeJSON(historyPath, history); err != nil {
		return Delta{}, err
	}
	if err := writeJSON(latestPath, current); err != nil {
		return Delta{}, err
	}
	return delta, nil
}

func fetch(ctx context.Context, client *http.Client, apiURL string) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/learning/stats", nil)
	if err != nil {
		return Snapshot{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Snapshot{}, fmt.Errorf("fetch stats: status %d: %s", resp.StatusCode, body)
	}
	var s Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("decode stats: %w", err)
	}
	return s, nil
}

// computeDelta compares scenarios by name. A scenario missing from prev is
// measured against zero trips and its own weights.
func computeDelta(prev, cur Snapshot) Delta {
	before := make(map[domain.Scenario]cost.Stats, len(prev.Scenarios))
	for _, st := range prev.Scenarios {
		before[st.Scenario] = st
	}
	period := ""
	if !prev.Timestamp.IsZero() {
		period = cur.Timestamp.Sub(prev.Timestamp).Round(time.Second).String()
	}
	d := Delta{Timestamp: cur.Timestamp, Period: period}
	for _, st := range cur.Scenarios {
		p, ok := before[st.Scenario]
		if !ok {
			p = cost.Stats{Scenario: st.Scenario, Weights: st.Weights}
		}
		var drift float64
		for i := range st.Weights {
			drift += abs(st.Weights[i] - p.Weights[i])
		}
		d.Scenarios = append(d.Scenarios, ScenarioDelta{
			Scenario:    st.Scenario,
			NewTrips:    st.NumTrips - p.NumTrips,
			MAEMinutes:  st.MAEMinutes,
			MAEChange:   st.MAEMinutes - p.MAEMinutes,
			WeightDrift: drift,
			Weights:     st.Weights,
		})
	}
	return d
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// readJSON leaves v untouched when path does not exist.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
