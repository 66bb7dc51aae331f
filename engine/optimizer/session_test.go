package optimizer

import (
	"errors"
	"testing"
	"time"

	"github.com/WessleyAI/wessley-routing/engine/domain"
)

func TestSessionExpiry(t *testing.T) {
	s := NewSessionStore(time.Hour)
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	a := s.Create(Session{Scenario: domain.ScenarioPersonal, PredictedS: []float64{300}})
	if a.ID == "" || a.Selected != -1 {
		t.Fatalf("session = %+v", a)
	}
	now = now.Add(30 * time.Minute)
	b := s.Create(Session{Scenario: domain.ScenarioLogistics, PredictedS: []float64{300}})

	now = now.Add(45 * time.Minute)
	if _, err := s.Get(a.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expired session: got %v", err)
	}
	if _, err := s.Get(b.ID); err != nil {
		t.Fatalf("live session: %v", err)
	}
	if n := s.Evict(); n != 1 || s.Len() != 1 {
		t.Fatalf("evicted %d, left %d", n, s.Len())
	}
}

func TestSessionComplete(t *testing.T) {
	s := NewSessionStore(0)
	sess := s.Create(Session{Scenario: domain.ScenarioPersonal, PredictedS: []float64{300, 420}})

	got, predicted, err := s.Complete(sess.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if predicted != 420 || !got.Completed || got.Selected != 1 {
		t.Fatalf("got %+v predicted %v", got, predicted)
	}
	if _, _, err := s.Complete(sess.ID, 0); !errors.Is(err, domain.ErrInvalidFeedback) {
		t.Fatalf("second completion: got %v", err)
	}
	s.reopen(sess.ID)
	if _, _, err := s.Complete(sess.ID, 0); err != nil {
		t.Fatalf("after reopen: %v", err)
	}
}

func TestStateTransitions(t *testing.T) {
	r := &run{}
	for _, next := range []State{StateWeightsRefreshed, StateNodesResolved, StatePathsFound, StateMetricsComputed, StateResultReady} {
		if err := r.advance(next); err != nil {
			t.Fatal(err)
		}
	}
	if !r.state.Terminal() || len(r.trail) != 5 {
		t.Fatalf("state = %s trail = %v", r.state, r.trail)
	}
	if err := r.advance(StateIdle); err == nil {
		t.Fatal("terminal state must not advance")
	}

	skip := &run{}
	if err := skip.advance(StatePathsFound); err == nil {
		t.Fatal("skipping stages must fail")
	}
	if StateNoRoute.String() != "no_route" || State(42).String() != "state(42)" {
		t.Fatal("unexpected state names")
	}
}
