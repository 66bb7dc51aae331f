package route

import (
	"math"
	"testing"

	"github.com/WessleyAI/wessley-routing/engine/cost"
	"github.com/WessleyAI/wessley-routing/engine/domain"
	"github.com/WessleyAI/wessley-routing/engine/network"
)

func threeNodes(t *testing.T) *network.Network {
	t.Helper()
	b := network.NewBuilder()
	b.AddNode(1, 12.97, 77.59)
	b.AddNode(2, 12.97, 77.60)
	b.AddNode(3, 12.97, 77.61)
	for _, e := range []network.RawEdge{
		{From: 1, To: 2, LengthM: 1000, Highway: "primary_link"},
		{From: 2, To: 3, LengthM: 2000, Highway: "motorway"},
	} {
		if err := b.AddEdge(e); err != nil {
			t.Fatal(err)
		}
	}
	return b.Build()
}

func costsFor(n *network.Network) []cost.EdgeCost {
	p := cost.DefaultParams()
	theta := cost.DefaultWeights()[domain.ScenarioPersonal]
	out := make([]cost.EdgeCost, n.NumEdges())
	for _, e := range n.Edges() {
		out[e.ID] = p.Compute(e, 1, theta)
	}
	return out
}

func TestComputeSingleEdgeRoundTrip(t *testing.T) {
	n := threeNodes(t)
	costs := costsFor(n)
	m := Compute(n, costs, nil, []network.NodeID{1, 2})

	c := costs[0]
	if m.DistanceKm != c.DistanceKm || m.Cost != c.MonetaryCost || m.Fuel != c.FuelCost {
		t.Fatalf("metrics %+v do not match edge %+v", m, c)
	}
	if math.Abs(m.TimeMinutes*60-c.TravelTimeS) > 1e-9 {
		t.Fatalf("time = %v min, edge %v s", m.TimeMinutes, c.TravelTimeS)
	}
	if m.NodeCount != 2 || len(m.Segments) != 1 || m.MissingEdges != 0 {
		t.Fatalf("got %+v", m)
	}
}

func TestComputeLinearRoute(t *testing.T) {
	n := threeNodes(t)
	m := Compute(n, costsFor(n), nil, []network.NodeID{1, 2, 3})
	if math.Abs(m.DistanceKm-3) > 1e-9 {
		t.Fatalf("distance = %v", m.DistanceKm)
	}
	if math.Abs(m.TimeMinutes-4) > 0.01 {
		t.Fatalf("time = %v, want 4", m.TimeMinutes)
	}
	if math.Abs(m.AverageSpeedKmh-45) > 0.01 {
		t.Fatalf("avg speed = %v, want 45", m.AverageSpeedKmh)
	}
}

func TestComputeSkipsMissingEdges(t *testing.T) {
	n := threeNodes(t)
	m := Compute(n, costsFor(n), nil, []network.NodeID{1, 3, 2})
	if m.MissingEdges != 2 || m.DistanceKm != 0 {
		t.Fatalf("got %+v", m)
	}
	if m.AverageSpeedKmh != 0 || m.TimeMinutes != 0 {
		t.Fatalf("zero time must give zero speed: %+v", m)
	}
}

func TestComputeDeduplicatesIncidents(t *testing.T) {
	n := threeNodes(t)
	a := domain.NewIncident("b-7", 2, domain.Coordinate{Lat: 12.97, Lon: 77.6}, "stalled truck")
	b := domain.NewIncident("a-3", 1, domain.Coordinate{Lat: 12.97, Lon: 77.6}, "")
	incidents := [][]domain.Incident{{a}, {a, b}}

	m := Compute(n, costsFor(n), incidents, []network.NodeID{1, 2, 3})
	if m.IncidentCount != 2 || len(m.Incidents) != 2 {
		t.Fatalf("got %d incidents", m.IncidentCount)
	}
	if m.Incidents[0].ID != "a-3" || m.Incidents[1].ID != "b-7" {
		t.Fatalf("order = %s, %s", m.Incidents[0].ID, m.Incidents[1].ID)
	}
}
