package cost

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/WessleyAI/wessley-routing/engine/domain"
)

func TestLearnerDefaults(t *testing.T) {
	l := NewLearner(map[domain.Scenario]Vector{
		domain.ScenarioLogistics: {-1, 0, 0, 0},
	}, DefaultLearnerOptions())
	for s, want := range DefaultWeights() {
		got, err := l.Weights(s)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("%s: got %v, want %v", s, got, want)
		}
	}
	if _, err := l.Weights("bicycle"); !errors.Is(err, domain.ErrUnknownScenario) {
		t.Fatalf("got %v, want ErrUnknownScenario", err)
	}
}

func TestUpdateBelowThreshold(t *testing.T) {
	l := NewLearner(nil, DefaultLearnerOptions())
	u, err := l.UpdateFromFeedback(domain.ScenarioPersonal, 600, 650)
	if err != nil {
		t.Fatal(err)
	}
	if u.Adjusted || u.Before != u.After {
		t.Fatalf("50s error must not adjust weights: %+v", u)
	}
	stats, _ := l.Stats(domain.ScenarioPersonal)
	if stats.NumTrips != 1 {
		t.Fatalf("trip must still be recorded, got %d", stats.NumTrips)
	}
}

func TestUpdateSlowerTripRaisesTimeWeight(t *testing.T) {
	l := NewLearner(nil, DefaultLearnerOptions())
	u, err := l.UpdateFromFeedback(domain.ScenarioPersonal, 600, 700)
	if err != nil {
		t.Fatal(err)
	}
	if !u.Adjusted {
		t.Fatal("100s error must adjust")
	}
	if u.Feedback.ErrorS != 100 {
		t.Fatalf("error = %v", u.Feedback.ErrorS)
	}
	if u.After[Time] <= 0.5 {
		t.Fatalf("time weight = %v, want > 0.5", u.After[Time])
	}
	if !approx(u.After.Sum(), 1, 1e-12) {
		t.Fatalf("sum = %v, want 1", u.After.Sum())
	}
	for _, c := range []int{Distance, Money, Fuel} {
		if u.After[c] >= u.Before[c] {
			t.Fatalf("component %d should shrink: %v -> %v", c, u.Before[c], u.After[c])
		}
	}
	// 0.505 / 1.005
	if !approx(u.After[Time], 0.505/1.005, 1e-12) {
		t.Fatalf("time weight = %v", u.After[Time])
	}
}

func TestUpdateFasterTripLowersTimeWeight(t *testing.T) {
	l := NewLearner(nil, DefaultLearnerOptions())
	u, err := l.UpdateFromFeedback(domain.ScenarioLogistics, 900, 600)
	if err != nil {
		t.Fatal(err)
	}
	if !u.Adjusted || u.After[Time] >= u.Before[Time] {
		t.Fatalf("time weight should drop: %v -> %v", u.Before[Time], u.After[Time])
	}
	if !approx(u.After.Sum(), u.Before.Sum(), 1e-12) {
		t.Fatalf("sum changed: %v -> %v", u.Before.Sum(), u.After.Sum())
	}
}

func TestUpdatePreservesNonUnitSum(t *testing.T) {
	l := NewLearner(nil, DefaultLearnerOptions())
	if err := l.SetWeights(domain.ScenarioAggregator, Vector{1, 1, 1, 1}); err != nil {
		t.Fatal(err)
	}
	u, err := l.UpdateFromFeedback(domain.ScenarioAggregator, 100, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(u.After.Sum(), 4, 1e-12) {
		t.Fatalf("sum = %v, want 4", u.After.Sum())
	}
}

func TestWeightsStayPositive(t *testing.T) {
	l := NewLearner(nil, DefaultLearnerOptions())
	for i := 0; i < 2000; i++ {
		actual := 100.0
		if i%3 == 0 {
			actual = 5000
		}
		if _, err := l.UpdateFromFeedback(domain.ScenarioPersonal, 1000, actual); err != nil {
			t.Fatal(err)
		}
	}
	w, _ := l.Weights(domain.ScenarioPersonal)
	for i, x := range w {
		if x <= 0 || math.IsNaN(x) {
			t.Fatalf("component %d = %v", i, x)
		}
	}
	if !approx(w.Sum(), 1, 1e-9) {
		t.Fatalf("sum drifted to %v", w.Sum())
	}
}

func TestUpdateRejectsInvalidFeedback(t *testing.T) {
	l := NewLearner(nil, DefaultLearnerOptions())
	cases := [][2]float64{{600, 0}, {600, -5}, {math.NaN(), 600}, {600, math.Inf(1)}, {-1, 600}}
	for _, c := range cases {
		if _, err := l.UpdateFromFeedback(domain.ScenarioPersonal, c[0], c[1]); !errors.Is(err, domain.ErrInvalidFeedback) {
			t.Fatalf("%v: got %v, want ErrInvalidFeedback", c, err)
		}
	}
	stats, _ := l.Stats(domain.ScenarioPersonal)
	if stats.NumTrips != 0 {
		t.Fatalf("rejected feedback was recorded: %d", stats.NumTrips)
	}
}

func TestStats(t *testing.T) {
	opts := DefaultLearnerOptions()
	opts.RecentWindow = 2
	l := NewLearner(nil, opts)

	empty, err := l.Stats(domain.ScenarioPersonal)
	if err != nil {
		t.Fatal(err)
	}
	if empty.NumTrips != 0 || empty.MAEMinutes != 0 {
		t.Fatalf("empty stats = %+v", empty)
	}

	// errors: +120, -60, +240
	for _, fb := range [][2]float64{{600, 720}, {600, 540}, {600, 840}} {
		if _, err := l.UpdateFromFeedback(domain.ScenarioPersonal, fb[0], fb[1]); err != nil {
			t.Fatal(err)
		}
	}
	s, _ := l.Stats(domain.ScenarioPersonal)
	if s.NumTrips != 3 {
		t.Fatalf("trips = %d", s.NumTrips)
	}
	if !approx(s.MeanErrorS, 100, 1e-9) {
		t.Fatalf("mean = %v", s.MeanErrorS)
	}
	if !approx(s.StdErrorS, math.Sqrt((400+25600+19600)/3.0), 1e-9) {
		t.Fatalf("std = %v", s.StdErrorS)
	}
	if !approx(s.MAEMinutes, 420.0/3/60, 1e-9) {
		t.Fatalf("mae = %v", s.MAEMinutes)
	}
	if !approx(s.RecentMAEMinutes, 300.0/2/60, 1e-9) {
		t.Fatalf("recent mae = %v", s.RecentMAEMinutes)
	}
}

func TestHistoryLimit(t *testing.T) {
	opts := DefaultLearnerOptions()
	opts.HistoryLimit = 3
	l := NewLearner(nil, opts)
	for i := 1; i <= 5; i++ {
		l.UpdateFromFeedback(domain.ScenarioPersonal, 600, 600+float64(i))
	}
	h, _ := l.History(domain.ScenarioPersonal)
	if len(h) != 3 || h[0].ErrorS != 3 || h[2].ErrorS != 5 {
		t.Fatalf("history = %+v", h)
	}
}

func TestConcurrentFeedback(t *testing.T) {
	l := NewLearner(nil, DefaultLearnerOptions())
	var wg sync.WaitGroup
	for _, s := range domain.Scenarios {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(s domain.Scenario) {
				defer wg.Done()
				l.UpdateFromFeedback(s, 600, 900)
			}(s)
		}
	}
	wg.Wait()
	for _, s := range domain.Scenarios {
		st, _ := l.Stats(s)
		if st.NumTrips != 50 {
			t.Fatalf("%s: trips = %d", s, st.NumTrips)
		}
		if !approx(st.Weights.Sum(), 1, 1e-9) {
			t.Fatalf("%s: sum = %v", s, st.Weights.Sum())
		}
	}
}
