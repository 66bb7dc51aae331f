// Package domain defines the core types, constants, and validation shared by
// the routing engine: scenarios, coordinates, bounding boxes and incidents.
package domain

import (
	"math"
	"strings"
	"time"
)

// Scenario is a named usage profile with its own cost-weighting vector.
type Scenario string

const (
	ScenarioPersonal   Scenario = "personal"
	ScenarioAggregator Scenario = "aggregator"
	ScenarioLogistics  Scenario = "logistics"
)

// Scenarios lists every known scenario in a stable order.
var Scenarios = []Scenario{ScenarioPersonal, ScenarioAggregator, ScenarioLogistics}

// ParseScenario resolves a scenario name, case-insensitively.
func ParseScenario(s string) (Scenario, error) {
	sc := Scenario(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Scenarios {
		if sc == known {
			return sc, nil
		}
	}
	return "", NewValidationError("scenario", s, ErrUnknownScenario)
}

// Coordinate is a WGS84 position.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether c lies within WGS84 bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// BoundingBox is an axis-aligned lat/lon rectangle.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// BoxAround returns the smallest box containing every point, padded by
// margin degrees on all sides.
func BoxAround(margin float64, pts ...Coordinate) BoundingBox {
	if len(pts) == 0 {
		return BoundingBox{}
	}
	b := BoundingBox{MinLat: pts[0].Lat, MaxLat: pts[0].Lat, MinLon: pts[0].Lon, MaxLon: pts[0].Lon}
	for _, p := range pts[1:] {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
	}
	b.MinLat -= margin
	b.MinLon -= margin
	b.MaxLat += margin
	b.MaxLon += margin
	return b
}

// Contains reports whether c is inside b, edges included.
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

// Pad grows the box by margin degrees on all sides.
func (b BoundingBox) Pad(margin float64) BoundingBox {
	return BoundingBox{
		MinLat: b.MinLat - margin, MinLon: b.MinLon - margin,
		MaxLat: b.MaxLat + margin, MaxLon: b.MaxLon + margin,
	}
}

// Severity describes how strongly an incident slows traffic.
type Severity struct {
	Label       string  `json:"label"`
	SpeedKmh    float64 `json:"speed_kmh"`
	DelayFactor float64 `json:"delay_factor"`
}

// Incident type codes.
const (
	IncidentSlowTraffic       = 1
	IncidentStationaryTraffic = 3
	IncidentRoadClosed        = 4
	IncidentHeavyTraffic      = 6
	IncidentAccident          = 9
)

var severities = map[int]Severity{
	IncidentSlowTraffic:       {Label: "Slow Traffic", SpeedKmh: 18, DelayFactor: 1.3},
	IncidentStationaryTraffic: {Label: "Stationary Traffic", SpeedKmh: 8, DelayFactor: 2.5},
	IncidentRoadClosed:        {Label: "Road Closed", SpeedKmh: 2, DelayFactor: 10.0},
	IncidentHeavyTraffic:      {Label: "Heavy Traffic", SpeedKmh: 12, DelayFactor: 1.8},
	IncidentAccident:          {Label: "Accident", SpeedKmh: 5, DelayFactor: 2.0},
}

// SeverityFor maps an incident type code to its severity. Unknown codes are
// treated as slow traffic.
func SeverityFor(typeCode int) Severity {
	if s, ok := severities[typeCode]; ok {
		return s
	}
	return severities[IncidentSlowTraffic]
}

// Incident is a reported traffic event.
type Incident struct {
	ID          string     `json:"id"`
	Type        int        `json:"type"`
	Position    Coordinate `json:"position"`
	Description string     `json:"description,omitempty"`
	RadiusM     float64    `json:"radius_m,omitempty"`
	ReportedAt  time.Time  `json:"reported_at"`
	Severity    Severity   `json:"severity"`

	// Set by near-path queries only.
	DistanceM float64     `json:"distance_m,omitempty"`
	Snapped   *Coordinate `json:"snapped,omitempty"`
}

// NewIncident builds an incident and derives its severity from the type code.
func NewIncident(id string, typeCode int, pos Coordinate, description string) Incident {
	return Incident{
		ID:          id,
		Type:        typeCode,
		Position:    pos,
		Description: description,
		Severity:    SeverityFor(typeCode),
	}
}
