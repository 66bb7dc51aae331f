package cost

import (
	"errors"
	"math"
	"testing"

	"github.com/WessleyAI/wessley-routing/engine/domain"
	"github.com/WessleyAI/wessley-routing/engine/network"
)

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestBaseSpeed(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		name string
		edge network.Edge
		want float64
	}{
		{"class table", network.Edge{Class: network.Primary}, 35},
		{"unknown class", network.Edge{Class: "track"}, 25},
		{"posted in band", network.Edge{Class: network.Primary, SpeedLimitKmh: 50}, 35},
		{"posted low edge", network.Edge{Class: network.Motorway, SpeedLimitKmh: 5}, 3.5},
		{"posted above band", network.Edge{Class: network.Residential, SpeedLimitKmh: 100}, 18},
		{"posted below band", network.Edge{Class: network.Residential, SpeedLimitKmh: 3}, 18},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.BaseSpeed(tt.edge); !approx(got, tt.want, 1e-9) {
				t.Fatalf("BaseSpeed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputePrimaryKilometre(t *testing.T) {
	p := DefaultParams()
	theta := DefaultWeights()[domain.ScenarioPersonal]
	c := p.Compute(network.Edge{LengthM: 1000, Class: network.Primary}, 1, theta)

	if !approx(c.DistanceKm, 1, 1e-12) {
		t.Fatalf("distance = %v", c.DistanceKm)
	}
	if !approx(c.TravelTimeS, 3600.0/35, 1e-9) {
		t.Fatalf("time = %v", c.TravelTimeS)
	}
	if !approx(c.MonetaryCost, 2, 1e-12) {
		t.Fatalf("money = %v", c.MonetaryCost)
	}
	if !approx(c.FuelCost, 100.0/12, 1e-9) {
		t.Fatalf("fuel = %v", c.FuelCost)
	}
	want := 0.3*0.1 + 0.5*(3600.0/35/600) + 0.1*0.1 + 0.1*(100.0/12/50)
	if !approx(c.CombinedWeight, want, 1e-9) {
		t.Fatalf("combined = %v, want %v", c.CombinedWeight, want)
	}
}

func TestComputeTrafficClamps(t *testing.T) {
	p := DefaultParams()
	theta := DefaultWeights()[domain.ScenarioPersonal]
	e := network.Edge{LengthM: 1000, Class: network.Primary}

	jam := p.Compute(e, 100, theta)
	if jam.AdjustedSpeedKmh != p.MinSpeedKmh {
		t.Fatalf("jam speed = %v, want %v", jam.AdjustedSpeedKmh, p.MinSpeedKmh)
	}
	if !approx(jam.TravelTimeS, 1800, 1e-9) {
		t.Fatalf("jam time = %v", jam.TravelTimeS)
	}

	free := p.Compute(e, 0.5, theta)
	if free.AdjustedSpeedKmh != 35 {
		t.Fatalf("speed must not exceed base, got %v", free.AdjustedSpeedKmh)
	}

	rush := p.Compute(e, 3, theta)
	if !approx(rush.AdjustedSpeedKmh, 35.0/3, 1e-9) {
		t.Fatalf("rush speed = %v", rush.AdjustedSpeedKmh)
	}
	if rush.TravelTimeS <= free.TravelTimeS || rush.CombinedWeight <= free.CombinedWeight {
		t.Fatal("higher traffic factor must not make an edge cheaper")
	}
}

func TestComputeFallbackSpeed(t *testing.T) {
	p := DefaultParams()
	p.MinSpeedKmh = 0
	p.DefaultSpeedKmh = 0
	theta := DefaultWeights()[domain.ScenarioPersonal]
	c := p.Compute(network.Edge{LengthM: 500, Class: "track"}, 1, theta)
	if c.AdjustedSpeedKmh != 0 {
		t.Fatalf("adjusted = %v, want 0", c.AdjustedSpeedKmh)
	}
	if !approx(c.TravelTimeS, 0.5/p.FallbackSpeedKmh*3600, 1e-9) {
		t.Fatalf("time = %v, want fallback pricing", c.TravelTimeS)
	}

	// the default floor keeps the fallback out of reach
	if d := DefaultParams().Compute(network.Edge{LengthM: 500, Class: "track"}, 1e9, theta); d.AdjustedSpeedKmh != 2 {
		t.Fatalf("adjusted = %v, want the 2 km/h floor", d.AdjustedSpeedKmh)
	}
}

func TestCombineFloor(t *testing.T) {
	p := DefaultParams()
	theta := DefaultWeights()[domain.ScenarioLogistics]
	c := p.Compute(network.Edge{LengthM: 0, Class: network.Motorway}, 1, theta)
	if c.CombinedWeight != p.MinCombinedWeight {
		t.Fatalf("combined = %v, want floor %v", c.CombinedWeight, p.MinCombinedWeight)
	}
	if w := p.Combine(Vector{math.NaN(), 0, 0, 0}, theta); w != p.MinCombinedWeight {
		t.Fatalf("NaN combine = %v", w)
	}
}

func TestMinWeightPerKmIsLowerBound(t *testing.T) {
	p := DefaultParams()
	classes := []network.RoadClass{
		network.Motorway, network.Trunk, network.Primary, network.Secondary,
		network.Tertiary, network.Residential, network.MotorwayLink, network.TrunkLink,
		network.PrimaryLink, network.SecondaryLink, network.Unclassified, network.Service, "track",
	}
	for s, theta := range DefaultWeights() {
		bound := p.MinWeightPerKm(theta)
		if bound <= 0 {
			t.Fatalf("%s: bound = %v", s, bound)
		}
		for _, c := range classes {
			for _, limit := range []float64{0, 30, 80} {
				e := network.Edge{LengthM: 5000, Class: c, SpeedLimitKmh: limit}
				got := p.Compute(e, 0.5, theta).CombinedWeight / 5
				if got < bound-1e-12 {
					t.Fatalf("%s/%s/%v: per-km weight %v below bound %v", s, c, limit, got, bound)
				}
			}
		}
	}
}

func TestVectorValidate(t *testing.T) {
	tests := []struct {
		name string
		v    Vector
		ok   bool
	}{
		{"default", Vector{0.3, 0.5, 0.1, 0.1}, true},
		{"single component", Vector{0, 1, 0, 0}, true},
		{"negative", Vector{-0.1, 0.5, 0.3, 0.3}, false},
		{"zero", Vector{}, false},
		{"nan", Vector{math.NaN(), 0.5, 0.3, 0.2}, false},
		{"inf", Vector{math.Inf(1), 0, 0, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, domain.ErrInvalidFeedback) {
				t.Fatalf("got %v, want ErrInvalidFeedback", err)
			}
		})
	}
}
