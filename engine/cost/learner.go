package cost

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/WessleyAI/wessley-routing/engine/domain"
)

// LearnerOptions configures the feedback rule.
type LearnerOptions struct {
	ThresholdS   float64 // errors at or below this are ignored
	LearningRate float64 // relative nudge applied to the time weight
	RecentWindow int     // trips in the recent MAE
	HistoryLimit int     // trips kept per scenario; 0 keeps all
}

// DefaultLearnerOptions returns the reference rule.
func DefaultLearnerOptions() LearnerOptions {
	return LearnerOptions{
		ThresholdS:   60,
		LearningRate: 0.01,
		RecentWindow: 5,
		HistoryLimit: 10_000,
	}
}

// Feedback is one observed trip.
type Feedback struct {
	Scenario   domain.Scenario `json:"scenario"`
	PredictedS float64         `json:"predicted_seconds"`
	ActualS    float64         `json:"actual_seconds"`
	ErrorS     float64         `json:"error_seconds"`
	At         time.Time       `json:"at"`
}

// Update reports the effect of one feedback submission.
type Update struct {
	Feedback Feedback `json:"feedback"`
	Adjusted bool     `json:"adjusted"`
	Before   Vector   `json:"before"`
	After    Vector   `json:"after"`
}

// Stats summarizes a scenario's trip history.
type Stats struct {
	Scenario         domain.Scenario `json:"scenario"`
	NumTrips         int             `json:"num_trips"`
	MeanErrorS       float64         `json:"mean_error_seconds"`
	StdErrorS        float64         `json:"std_error_seconds"`
	MAEMinutes       float64         `json:"mae_minutes"`
	RecentMAEMinutes float64         `json:"recent_mae_minutes"`
	Weights          Vector          `json:"weights"`
}

type scenarioState struct {
	mu      sync.Mutex
	theta   Vector
	history []Feedback
}

// Learner owns the weight vector of every scenario. Each scenario has its
// own lock, so feedback for different scenarios never contends.
type Learner struct {
	opts   LearnerOptions
	states map[domain.Scenario]*scenarioState // fixed at construction
	now    func() time.Time
}

// NewLearner seeds a learner from initial, falling back to DefaultWeights
// for scenarios that are missing or invalid.
func NewLearner(initial map[domain.Scenario]Vector, opts LearnerOptions) *Learner {
	defaults := DefaultWeights()
	l := &Learner{
		opts:   opts,
		states: make(map[domain.Scenario]*scenarioState, len(domain.Scenarios)),
		now:    time.Now,
	}
	for _, s := range domain.Scenarios {
		theta := defaults[s]
		if v, ok := initial[s]; ok && v.Validate() == nil {
			theta = v
		}
		l.states[s] = &scenarioState{theta: theta}
	}
	return l
}

func (l *Learner) state(s domain.Scenario) (*scenarioState, error) {
	st, ok := l.states[s]
	if !ok {
		return nil, domain.NewValidationError("scenario", string(s), domain.ErrUnknownScenario)
	}
	return st, nil
}

// Weights returns the current vector for s.
func (l *Learner) Weights(s domain.Scenario) (Vector, error) {
	st, err := l.state(s)
	if err != nil {
		return Vector{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.theta, nil
}

// SetWeights replaces the vector for s.
func (l *Learner) SetWeights(s domain.Scenario, v Vector) error {
	if err := v.Validate(); err != nil {
		return err
	}
	st, err := l.state(s)
	if err != nil {
		return err
	}
	st.mu.Lock()
	st.theta = v
	st.mu.Unlock()
	return nil
}

// Snapshot returns a copy of every scenario's vector.
func (l *Learner) Snapshot() map[domain.Scenario]Vector {
	out := make(map[domain.Scenario]Vector, len(l.states))
	for s, st := range l.states {
		st.mu.Lock()
		out[s] = st.theta
		st.mu.Unlock()
	}
	return out
}

// UpdateFromFeedback records a trip and, when the error exceeds the
// threshold, nudges the time weight toward the observed direction: up when
// the trip took longer than predicted, down when shorter. The vector is then
// rescaled to keep its previous sum. Times are in seconds.
func (l *Learner) UpdateFromFeedback(s domain.Scenario, predictedS, actualS float64) (Update, error) {
	if !finite(predictedS) || !finite(actualS) || predictedS < 0 || actualS <= 0 {
		return Update{}, fmt.Errorf("cost: predicted=%v actual=%v: %w", predictedS, actualS, domain.ErrInvalidFeedback)
	}
	st, err := l.state(s)
	if err != nil {
		return Update{}, err
	}

	fb := Feedback{
		Scenario:   s,
		PredictedS: predictedS,
		ActualS:    actualS,
		ErrorS:     actualS - predictedS,
		At:         l.now(),
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	u := Update{Feedback: fb, Before: st.theta, After: st.theta}
	if math.Abs(fb.ErrorS) > l.opts.ThresholdS {
		theta := st.theta
		total := theta.Sum()
		if fb.ErrorS > 0 {
			theta[Time] *= 1 + l.opts.LearningRate
		} else {
			theta[Time] *= 1 - l.opts.LearningRate
		}
		if sum := theta.Sum(); sum > 0 {
			for i := range theta {
				theta[i] = theta[i] / sum * total
			}
		}
		st.theta = theta
		u.After = theta
		u.Adjusted = true
	}

	st.history = append(st.history, fb)
	if n := l.opts.HistoryLimit; n > 0 && len(st.history) > n {
		st.history = append([]Feedback(nil), st.history[len(st.history)-n:]...)
	}
	return u, nil
}

// History returns a copy of the recorded trips for s, oldest first.
func (l *Learner) History(s domain.Scenario) ([]Feedback, error) {
	st, err := l.state(s)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]Feedback(nil), st.history...), nil
}

// Stats summarizes the trip history for s. With no trips every figure is 0.
func (l *Learner) Stats(s domain.Scenario) (Stats, error) {
	st, err := l.state(s)
	if err != nil {
		return Stats{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	out := Stats{Scenario: s, NumTrips: len(st.history), Weights: st.theta}
	if len(st.history) == 0 {
		return out, nil
	}

	var sum, abs float64
	for _, fb := range st.history {
		sum += fb.ErrorS
		abs += math.Abs(fb.ErrorS)
	}
	n := float64(len(st.history))
	out.MeanErrorS = sum / n
	out.MAEMinutes = abs / n / 60

	var sq float64
	for _, fb := range st.history {
		d := fb.ErrorS - out.MeanErrorS
		sq += d * d
	}
	out.StdErrorS = math.Sqrt(sq / n)

	window := l.opts.RecentWindow
	if window <= 0 || window > len(st.history) {
		window = len(st.history)
	}
	var recent float64
	for _, fb := range st.history[len(st.history)-window:] {
		recent += math.Abs(fb.ErrorS)
	}
	out.RecentMAEMinutes = recent / float64(window) / 60
	return out, nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
