// Package route aggregates per-edge costs along a path into route metrics.
package route

import (
	"sort"

	"github.com/WessleyAI/wessley-routing/engine/cost"
	"github.com/WessleyAI/wessley-routing/engine/domain"
	"github.com/WessleyAI/wessley-routing/engine/network"
)

// Segment is the cost breakdown of one traversed edge.
type Segment struct {
	From          network.NodeID    `json:"from"`
	To            network.NodeID    `json:"to"`
	Edge          network.EdgeID    `json:"edge"`
	Class         network.RoadClass `json:"road_class"`
	DistanceKm    float64           `json:"distance_km"`
	TimeS         float64           `json:"time_seconds"`
	Cost          float64           `json:"cost"`
	Fuel          float64           `json:"fuel"`
	SpeedKmh      float64           `json:"speed_kmh"`
	TrafficFactor float64           `json:"traffic_factor"`
}

// Metrics summarizes one candidate route.
type Metrics struct {
	DistanceKm      float64           `json:"distance_km"`
	TimeMinutes     float64           `json:"time_minutes"`
	Cost            float64           `json:"cost"`
	Fuel            float64           `json:"fuel"`
	NodeCount       int               `json:"node_count"`
	Incidents       []domain.Incident `json:"incidents"`
	IncidentCount   int               `json:"incident_count"`
	AverageSpeedKmh float64           `json:"average_speed_kmh"`
	Segments        []Segment         `json:"segments"`
	MissingEdges    int               `json:"missing_edges,omitempty"`
}

// Compute walks path and sums the cost records of its edges. costs and
// incidents are indexed by EdgeID; incidents may be nil. Node pairs with no
// connecting edge, or edges without a cost record, are skipped and counted
// in MissingEdges. Incidents are deduplicated by ID and ordered by ID.
func Compute(n *network.Network, costs []cost.EdgeCost, incidents [][]domain.Incident, path []network.NodeID) Metrics {
	m := Metrics{
		NodeCount: len(path),
		Incidents: []domain.Incident{},
		Segments:  []Segment{},
	}

	var seconds float64
	seen := make(map[string]struct{})
	for i := 1; i < len(path); i++ {
		id, ok := n.EdgeBetween(path[i-1], path[i])
		if !ok || int(id) >= len(costs) {
			m.MissingEdges++
			continue
		}
		e, _ := n.Edge(id)
		c := costs[id]

		m.DistanceKm += c.DistanceKm
		m.Cost += c.MonetaryCost
		m.Fuel += c.FuelCost
		seconds += c.TravelTimeS
		m.Segments = append(m.Segments, Segment{
			From:          e.From,
			To:            e.To,
			Edge:          id,
			Class:         e.Class,
			DistanceKm:    c.DistanceKm,
			TimeS:         c.TravelTimeS,
			Cost:          c.MonetaryCost,
			Fuel:          c.FuelCost,
			SpeedKmh:      c.AdjustedSpeedKmh,
			TrafficFactor: c.TrafficFactor,
		})

		if int(id) < len(incidents) {
			for _, inc := range incidents[id] {
				if _, dup := seen[inc.ID]; dup {
					continue
				}
				seen[inc.ID] = struct{}{}
				m.Incidents = append(m.Incidents, inc)
			}
		}
	}

	m.TimeMinutes = seconds / 60
	if seconds > 0 {
		m.AverageSpeedKmh = m.DistanceKm / (seconds / 3600)
	}
	sort.Slice(m.Incidents, func(i, j int) bool { return m.Incidents[i].ID < m.Incidents[j].ID })
	m.IncidentCount = len(m.Incidents)
	return m
}
