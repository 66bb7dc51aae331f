package network

import (
	"errors"
	"math"
	"testing"

	"github.com/WessleyAI/wessley-routing/engine/domain"
)

func lineNetwork(t *testing.T) *Network {
	t.Helper()
	b := NewBuilder()
	b.AddNode(1, 0, 0)
	b.AddNode(2, 0, 0.01)
	b.AddNode(3, 0, 0.02)
	for _, e := range []RawEdge{
		{From: 1, To: 2, LengthM: 1200, Highway: "primary"},
		{From: 2, To: 3, LengthM: 1150, Highway: []any{"residential", "service"}, MaxSpeed: "30"},
	} {
		if err := b.AddEdge(e); err != nil {
			t.Fatal(err)
		}
	}
	return b.Build()
}

func TestBuilderBasics(t *testing.T) {
	n := lineNetwork(t)
	if n.NumNodes() != 3 || n.NumEdges() != 2 {
		t.Fatalf("got %d nodes, %d edges", n.NumNodes(), n.NumEdges())
	}
	id, ok := n.EdgeBetween(2, 3)
	if !ok {
		t.Fatal("expected edge 2->3")
	}
	e, _ := n.Edge(id)
	if e.Class != Residential || e.SpeedLimitKmh != 30 {
		t.Fatalf("unexpected attributes %+v", e)
	}
	if _, ok := n.EdgeBetween(3, 2); ok {
		t.Fatal("edges are directed")
	}
	if got := n.Out(1); len(got) != 1 {
		t.Fatalf("expected one out edge from 1, got %v", got)
	}
}

func TestBuilderCollapsesParallelEdges(t *testing.T) {
	b := NewBuilder()
	b.AddNode(1, 0, 0)
	b.AddNode(2, 0, 0.01)
	_ = b.AddEdge(RawEdge{From: 1, To: 2, LengthM: 1500, Highway: "primary"})
	_ = b.AddEdge(RawEdge{From: 1, To: 2, LengthM: 1100, Highway: "secondary"})
	_ = b.AddEdge(RawEdge{From: 1, To: 2, LengthM: 1300, Highway: "trunk"})
	n := b.Build()

	if n.NumEdges() != 1 {
		t.Fatalf("expected 1 edge, got %d", n.NumEdges())
	}
	e, _ := n.Edge(0)
	if e.LengthM != 1100 || e.Class != Secondary || e.ID != 0 {
		t.Fatalf("expected shortest edge kept, got %+v", e)
	}
}

func TestBuilderMalformedEdges(t *testing.T) {
	b := NewBuilder()
	b.AddNode(1, 0, 0)
	b.AddNode(2, 0, 0.01)

	if err := b.AddEdge(RawEdge{From: 1, To: 9}); !errors.Is(err, domain.ErrMalformedEdge) {
		t.Fatalf("expected ErrMalformedEdge for unknown node, got %v", err)
	}
	if err := b.AddEdge(RawEdge{From: 1, To: 1}); !errors.Is(err, domain.ErrMalformedEdge) {
		t.Fatalf("expected ErrMalformedEdge for self loop, got %v", err)
	}
	if err := b.AddEdge(RawEdge{From: 1, To: 2, LengthM: math.NaN(), Highway: 17, MaxSpeed: "none"}); err != nil {
		t.Fatal(err)
	}
	n := b.Build()
	e, _ := n.Edge(0)
	if math.Abs(e.LengthM-1112) > 5 {
		t.Fatalf("expected straight-line fallback ~1112m, got %f", e.LengthM)
	}
	if e.Class != DefaultClass || e.SpeedLimitKmh != 0 {
		t.Fatalf("expected defaults, got %+v", e)
	}
	if b.Malformed() != 1 {
		t.Fatalf("expected 1 malformed, got %d", b.Malformed())
	}
}

func TestParseRoadClass(t *testing.T) {
	tests := []struct {
		in   any
		want RoadClass
	}{
		{"Primary", Primary},
		{[]any{"motorway_link", "trunk"}, MotorwayLink},
		{[]string{"tertiary"}, Tertiary},
		{"", DefaultClass},
		{nil, DefaultClass},
		{[]any{}, DefaultClass},
		{3.5, DefaultClass},
	}
	for _, tt := range tests {
		if got := ParseRoadClass(tt.in); got != tt.want {
			t.Errorf("ParseRoadClass(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSpeed(t *testing.T) {
	tests := []struct {
		in   any
		want float64
	}{
		{"50", 50},
		{"30 mph", 30 * 1.609344},
		{[]any{"40", "60"}, 40},
		{float64(70), 70},
		{int64(25), 25},
		{"signals", 0},
		{nil, 0},
		{float64(-3), 0},
	}
	for _, tt := range tests {
		if got := ParseSpeed(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseSpeed(%v) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestNearestNode(t *testing.T) {
	n := lineNetwork(t)
	id, err := n.NearestNode(domain.Coordinate{Lat: 0.001, Lon: 0.018})
	if err != nil {
		t.Fatal(err)
	}
	if id != 3 {
		t.Fatalf("expected node 3, got %d", id)
	}

	empty := NewBuilder().Build()
	if _, err := empty.NearestNode(domain.Coordinate{}); !errors.Is(err, domain.ErrGraphUnavailable) {
		t.Fatalf("expected ErrGraphUnavailable, got %v", err)
	}
}

func TestPathEdges(t *testing.T) {
	n := lineNetwork(t)
	edges, missing := n.PathEdges([]NodeID{1, 2, 3})
	if len(edges) != 2 || missing != 0 {
		t.Fatalf("got %v, missing %d", edges, missing)
	}
	edges, missing = n.PathEdges([]NodeID{1, 3})
	if len(edges) != 0 || missing != 1 {
		t.Fatalf("got %v, missing %d", edges, missing)
	}
	if pts := n.PathPoints([]NodeID{1, 99, 3}); len(pts) != 2 {
		t.Fatalf("expected unknown nodes skipped, got %v", pts)
	}
}
