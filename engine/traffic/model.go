// Package traffic computes the congestion multiplier applied to an edge's
// free-flow speed from time of day, road class and nearby incidents.
package traffic

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/WessleyAI/wessley-routing/engine/domain"
	"github.com/WessleyAI/wessley-routing/engine/incident"
	"github.com/WessleyAI/wessley-routing/engine/network"
)

// MinFactor is the lowest factor the model ever returns.
const MinFactor = 0.5

// hourly congestion multipliers, index = local hour.
var hourly = [24]float64{
	0.8, 0.7, 0.7, 0.7, 0.7, 0.9, // night
	1.0, 1.8, 2.0, 1.7, // morning rush
	1.2, 1.2, 1.3, 1.3, 1.2, 1.3, 1.4, // daytime
	1.9, 2.1, 1.8, // evening rush
	1.4, 1.2, 1.0, 0.9,
}

var sensitivity = map[network.RoadClass]float64{
	network.Primary:       1.5,
	network.Secondary:     1.3,
	network.Tertiary:      1.2,
	network.Residential:   1.0,
	network.Trunk:         1.4,
	network.Motorway:      1.1,
	network.MotorwayLink:  1.2,
	network.TrunkLink:     1.3,
	network.PrimaryLink:   1.4,
	network.SecondaryLink: 1.3,
}

// HourlyFactor returns the time-of-day multiplier for t's hour.
func HourlyFactor(t time.Time) float64 { return hourly[t.Hour()] }

// Sensitivity returns how strongly a road class reacts to congestion.
// Unknown classes return 1.0.
func Sensitivity(c network.RoadClass) float64 {
	if s, ok := sensitivity[c]; ok {
		return s
	}
	return 1.0
}

// Result is the factor for one edge and the incidents that contributed.
type Result struct {
	Factor    float64
	Incidents []domain.Incident
}

// Model computes traffic factors.
type Model interface {
	Factor(e network.Edge, midpoint orb.Point, at time.Time) Result
}

// Options tunes the incident contribution.
type Options struct {
	RadiusM    float64
	MaxNearby  int
	DisableTOD bool // ignore time of day, e.g. for replaying free-flow conditions
}

// DefaultOptions returns the reference radius and neighbour count.
func DefaultOptions() Options {
	return Options{RadiusM: incident.DefaultRadiusM, MaxNearby: incident.DefaultMaxNearby}
}

// IncidentModel combines the hourly table, road sensitivity and the
// strongest nearby incident. It is deterministic for a given index and time.
type IncidentModel struct {
	index *incident.Index
	opts  Options
}

// NewModel creates a model over an incident snapshot. A nil index means no
// incident influence.
func NewModel(index *incident.Index, opts Options) *IncidentModel {
	if opts.RadiusM <= 0 {
		opts.RadiusM = incident.DefaultRadiusM
	}
	if opts.MaxNearby <= 0 {
		opts.MaxNearby = incident.DefaultMaxNearby
	}
	if index == nil {
		index = incident.NewIndex(nil)
	}
	return &IncidentModel{index: index, opts: opts}
}

// Factor implements Model.
func (m *IncidentModel) Factor(e network.Edge, midpoint orb.Point, at time.Time) Result {
	h := 1.0
	if !m.opts.DisableTOD {
		h = HourlyFactor(at)
	}
	incFactor, contributing := m.IncidentFactor(midpoint)
	f := h * Sensitivity(e.Class) * incFactor
	if f < MinFactor {
		f = MinFactor
	}
	return Result{Factor: f, Incidents: contributing}
}

// IncidentFactor returns the strongest distance-weighted delay factor among
// the closest incidents around p, or 1.0 when none is close enough.
func (m *IncidentModel) IncidentFactor(p orb.Point) (float64, []domain.Incident) {
	matches := m.index.Nearby(p, m.opts.RadiusM, m.opts.MaxNearby)
	if len(matches) == 0 {
		return 1.0, nil
	}
	factor := 1.0
	contributing := make([]domain.Incident, 0, len(matches))
	for _, mt := range matches {
		weighted := mt.Incident.Severity.DelayFactor * (1 - mt.DistanceM/m.opts.RadiusM)
		if weighted > factor {
			factor = weighted
		}
		contributing = append(contributing, mt.Incident)
	}
	return factor, contributing
}

// Constant returns the same factor for every edge. Useful for free-flow
// estimates and tests.
type Constant float64

// Factor implements Model.
func (c Constant) Factor(network.Edge, orb.Point, time.Time) Result {
	f := float64(c)
	if f < MinFactor {
		f = MinFactor
	}
	return Result{Factor: f}
}
