package incident

import (
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/WessleyAI/wessley-routing/engine/domain"
	"github.com/WessleyAI/wessley-routing/pkg/geo"
)

// Index defaults.
const (
	DefaultResolution = 2000 // grid cells per degree
	DefaultRadiusM    = 200.0
	DefaultMaxNearby  = 3
)

// metersPerDegree is the length of one degree of latitude on the sphere
// used by geo.DistanceM.
const metersPerDegree = orb.EarthRadius * math.Pi / 180

// Match is an incident found near a point.
type Match struct {
	Incident  domain.Incident
	DistanceM float64
}

type cell struct{ x, y int }

// Index is a uniform grid over incident positions. It is immutable after
// construction and safe for concurrent use.
type Index struct {
	resolution float64
	cells      map[cell][]int
	incidents  []domain.Incident
}

// NewIndex builds a grid index with the default resolution.
func NewIndex(incidents []domain.Incident) *Index {
	return NewIndexWithResolution(incidents, DefaultResolution)
}

// NewIndexWithResolution builds a grid index with cellsPerDegree cells per
// degree.
func NewIndexWithResolution(incidents []domain.Incident, cellsPerDegree float64) *Index {
	idx := &Index{
		resolution: cellsPerDegree,
		cells:      make(map[cell][]int),
		incidents:  incidents,
	}
	for i, inc := range incidents {
		c := idx.cellOf(inc.Position.Lon, inc.Position.Lat)
		idx.cells[c] = append(idx.cells[c], i)
	}
	return idx
}

func (idx *Index) cellOf(lon, lat float64) cell {
	return cell{int(math.Floor(lon * idx.resolution)), int(math.Floor(lat * idx.resolution))}
}

// Len returns the number of indexed incidents.
func (idx *Index) Len() int { return len(idx.incidents) }

// All returns the indexed incidents.
func (idx *Index) All() []domain.Incident { return idx.incidents }

// span returns how many cells in each direction cover radiusM around lat.
// A degree of longitude shrinks with cos(lat), so the east-west span grows
// towards the poles; it is sized for the poleward edge of the radius.
func (idx *Index) span(lat, radiusM float64) (lonCells, latCells int) {
	latDeg := radiusM / metersPerDegree
	latCells = int(math.Ceil(latDeg * idx.resolution))
	edge := math.Abs(lat) + latDeg
	if edge >= 90 {
		return math.MaxInt32, latCells
	}
	cos := math.Cos(edge * math.Pi / 180)
	lon := math.Ceil(radiusM / (metersPerDegree * cos) * idx.resolution)
	if lon > math.MaxInt32 {
		return math.MaxInt32, latCells
	}
	return int(lon), latCells
}

// Nearby returns up to limit incidents within radiusM of p, closest first.
// Ties are broken by incident id so results are reproducible.
func (idx *Index) Nearby(p orb.Point, radiusM float64, limit int) []Match {
	if len(idx.incidents) == 0 || radiusM < 0 {
		return nil
	}
	var out []Match
	consider := func(i int) {
		inc := idx.incidents[i]
		d := geo.DistanceM(p, geo.Point(inc.Position.Lat, inc.Position.Lon))
		if d <= radiusM {
			out = append(out, Match{Incident: inc, DistanceM: d})
		}
	}

	lonCells, latCells := idx.span(p[1], radiusM)
	// scanning more cells than there are incidents is slower than a full pass
	if (2*float64(lonCells)+1)*(2*float64(latCells)+1) > float64(len(idx.incidents)) {
		for i := range idx.incidents {
			consider(i)
		}
	} else {
		center := idx.cellOf(p[0], p[1])
		for dx := -lonCells; dx <= lonCells; dx++ {
			for dy := -latCells; dy <= latCells; dy++ {
				for _, i := range idx.cells[cell{center.x + dx, center.y + dy}] {
					consider(i)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceM != out[j].DistanceM {
			return out[i].DistanceM < out[j].DistanceM
		}
		return out[i].Incident.ID < out[j].Incident.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FilterNearPath keeps incidents within radiusM of the polyline and records
// the distance and snapped point on each.
func FilterNearPath(incidents []domain.Incident, path []domain.Coordinate, radiusM float64) []domain.Incident {
	pts := make([]orb.Point, len(path))
	for i, c := range path {
		pts[i] = geo.Point(c.Lat, c.Lon)
	}
	out := []domain.Incident{}
	for _, inc := range incidents {
		d, snapped, ok := geo.PathDistanceM(geo.Point(inc.Position.Lat, inc.Position.Lon), pts)
		if !ok || d > radiusM {
			continue
		}
		inc.DistanceM = d
		inc.Snapped = &domain.Coordinate{Lat: snapped[1], Lon: snapped[0]}
		out = append(out, inc)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	return out
}

// PathBounds returns the bounding box of path padded by radiusM meters.
func PathBounds(path []domain.Coordinate, radiusM float64) domain.BoundingBox {
	pts := make([]orb.Point, len(path))
	for i, c := range path {
		pts[i] = geo.Point(c.Lat, c.Lon)
	}
	b := geo.BoundOf(pts, radiusM)
	return domain.BoundingBox{MinLat: b.Min[1], MinLon: b.Min[0], MaxLat: b.Max[1], MaxLon: b.Max[0]}
}
