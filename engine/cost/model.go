// Package cost turns an edge's physical attributes and traffic factor into
// distance, time, monetary and fuel costs, combines them with a
// per-scenario weight vector, and adapts those vectors from trip feedback.
package cost

import (
	"fmt"
	"math"

	"github.com/WessleyAI/wessley-routing/engine/domain"
	"github.com/WessleyAI/wessley-routing/engine/network"
)

// Component indexes a cost Vector.
const (
	Distance = iota
	Time
	Money
	Fuel
)

// Vector holds one value per cost component: distance, time, money, fuel.
type Vector [4]float64

// Sum returns the component sum.
func (v Vector) Sum() float64 { return v[0] + v[1] + v[2] + v[3] }

// Dot returns the dot product of v and w.
func (v Vector) Dot(w Vector) float64 {
	return v[0]*w[0] + v[1]*w[1] + v[2]*w[2] + v[3]*w[3]
}

// Validate checks that a weight vector is usable as linear coefficients.
func (v Vector) Validate() error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
			return fmt.Errorf("cost: component %d = %v: %w", i, x, domain.ErrInvalidFeedback)
		}
	}
	if v.Sum() <= 0 {
		return fmt.Errorf("cost: zero weight vector: %w", domain.ErrInvalidFeedback)
	}
	return nil
}

// DefaultWeights returns the reference vector for each scenario.
func DefaultWeights() map[domain.Scenario]Vector {
	return map[domain.Scenario]Vector{
		domain.ScenarioPersonal:   {0.3, 0.5, 0.1, 0.1},
		domain.ScenarioAggregator: {0.2, 0.5, 0.1, 0.2},
		domain.ScenarioLogistics:  {0.2, 0.3, 0.3, 0.2},
	}
}

var baseSpeeds = map[network.RoadClass]float64{
	network.Motorway:      60,
	network.Trunk:         45,
	network.Primary:       35,
	network.Secondary:     28,
	network.Tertiary:      22,
	network.Residential:   18,
	network.MotorwayLink:  40,
	network.TrunkLink:     35,
	network.PrimaryLink:   30,
	network.SecondaryLink: 25,
	network.Unclassified:  20,
	network.Service:       15,
}

var fuelEfficiency = map[network.RoadClass]float64{ // km per liter
	network.Motorway:     15,
	network.Trunk:        14,
	network.Primary:      12,
	network.Secondary:    11,
	network.Tertiary:     10,
	network.Residential:  9,
	network.MotorwayLink: 13,
	network.TrunkLink:    12,
}

// Params holds the constants of the cost model.
type Params struct {
	DefaultSpeedKmh   float64 // classes missing from the speed table
	MinSpeedKmh       float64
	PostedMinKmh      float64
	PostedMaxKmh      float64
	PostedScale       float64
	CostPerKm         float64
	FuelPricePerLiter float64
	DefaultFuelKmPerL float64
	Normalizers       Vector
	MinCombinedWeight float64

	// FallbackSpeedKmh prices an edge whose adjusted speed is not positive.
	// With MinSpeedKmh > 0 that only happens for custom Params that also
	// zero the speed tables.
	FallbackSpeedKmh float64
}

// DefaultParams returns the reference constants.
func DefaultParams() Params {
	return Params{
		DefaultSpeedKmh:   25,
		MinSpeedKmh:       2,
		FallbackSpeedKmh:  1,
		PostedMinKmh:      5,
		PostedMaxKmh:      80,
		PostedScale:       0.7,
		CostPerKm:         2.0,
		FuelPricePerLiter: 100,
		DefaultFuelKmPerL: 10,
		Normalizers:       Vector{10, 600, 20, 50},
		MinCombinedWeight: 0.01,
	}
}

// EdgeCost is the cost record of one edge for one request.
type EdgeCost struct {
	DistanceKm       float64 `json:"distance_km"`
	TravelTimeS      float64 `json:"travel_time_seconds"`
	MonetaryCost     float64 `json:"monetary_cost"`
	FuelCost         float64 `json:"fuel_cost"`
	CombinedWeight   float64 `json:"combined_weight"`
	TrafficFactor    float64 `json:"traffic_factor"`
	AdjustedSpeedKmh float64 `json:"adjusted_speed_kmh"`
}

// Raw returns the unnormalized components as a Vector.
func (c EdgeCost) Raw() Vector {
	return Vector{c.DistanceKm, c.TravelTimeS, c.MonetaryCost, c.FuelCost}
}

// BaseSpeed resolves the free-flow speed of an edge. A posted limit inside
// the sane band overrides the class table, scaled down to what dense
// traffic actually achieves.
func (p Params) BaseSpeed(e network.Edge) float64 {
	if l := e.SpeedLimitKmh; l >= p.PostedMinKmh && l <= p.PostedMaxKmh {
		return l * p.PostedScale
	}
	if s, ok := baseSpeeds[e.Class]; ok {
		return s
	}
	return p.DefaultSpeedKmh
}

// FuelEfficiency returns km per liter for a road class.
func (p Params) FuelEfficiency(c network.RoadClass) float64 {
	if f, ok := fuelEfficiency[c]; ok {
		return f
	}
	return p.DefaultFuelKmPerL
}

// Compute builds the cost record of e under trafficFactor and weights theta.
// CombinedWeight is always at least MinCombinedWeight.
func (p Params) Compute(e network.Edge, trafficFactor float64, theta Vector) EdgeCost {
	km := e.LengthM / 1000
	if math.IsNaN(km) || km < 0 {
		km = 0
	}
	base := p.BaseSpeed(e)

	adjusted := base
	if trafficFactor > 0 && !math.IsNaN(trafficFactor) {
		adjusted = base / trafficFactor
	}
	adjusted = math.Max(p.MinSpeedKmh, math.Min(adjusted, base))

	var seconds float64
	if adjusted > 0 {
		seconds = km / adjusted * 3600
	} else {
		seconds = km / p.FallbackSpeedKmh * 3600
	}

	c := EdgeCost{
		DistanceKm:       km,
		TravelTimeS:      seconds,
		MonetaryCost:     km * p.CostPerKm,
		FuelCost:         km / p.FuelEfficiency(e.Class) * p.FuelPricePerLiter,
		TrafficFactor:    trafficFactor,
		AdjustedSpeedKmh: adjusted,
	}
	c.CombinedWeight = p.Combine(c.Raw(), theta)
	return c
}

// Combine normalizes raw components and weights them with theta.
func (p Params) Combine(raw, theta Vector) float64 {
	var norm Vector
	for i := range raw {
		norm[i] = raw[i] / p.Normalizers[i]
	}
	w := norm.Dot(theta)
	if math.IsNaN(w) || w < p.MinCombinedWeight {
		return p.MinCombinedWeight
	}
	return w
}

// MinWeightPerKm is a lower bound on CombinedWeight per kilometre for any
// edge under theta, ignoring the floor. It scales a straight-line distance
// into an admissible search heuristic.
func (p Params) MinWeightPerKm(theta Vector) float64 {
	maxSpeed := p.DefaultSpeedKmh
	for _, s := range baseSpeeds {
		maxSpeed = math.Max(maxSpeed, s)
	}
	maxSpeed = math.Max(maxSpeed, p.PostedMaxKmh*p.PostedScale)
	maxEff := p.DefaultFuelKmPerL
	for _, f := range fuelEfficiency {
		maxEff = math.Max(maxEff, f)
	}
	perKm := Vector{1, 3600 / maxSpeed, p.CostPerKm, p.FuelPricePerLiter / maxEff}
	var norm Vector
	for i := range perKm {
		norm[i] = perKm[i] / p.Normalizers[i]
	}
	return norm.Dot(theta)
}
