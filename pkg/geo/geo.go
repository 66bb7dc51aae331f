// Package geo holds small geodesic helpers shared by the network, incident
// and API layers. Points are orb.Point values, i.e. {lon, lat}.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/twpayne/go-polyline"
)

// Point builds an orb.Point from latitude and longitude.
func Point(lat, lon float64) orb.Point { return orb.Point{lon, lat} }

// DistanceM returns the great-circle distance between a and b in meters.
func DistanceM(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}

// Midpoint returns the planar midpoint of a and b. Adequate for road
// segments, which are short relative to the earth's curvature.
func Midpoint(a, b orb.Point) orb.Point {
	return orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
}

// SegmentDistanceM returns the distance in meters from p to the segment ab
// and the closest point on the segment. It projects onto a local
// equirectangular plane centered on p.
func SegmentDistanceM(p, a, b orb.Point) (float64, orb.Point) {
	kx := math.Cos(p[1]*math.Pi/180) * metersPerDegree
	ky := metersPerDegree

	ax, ay := (a[0]-p[0])*kx, (a[1]-p[1])*ky
	bx, by := (b[0]-p[0])*kx, (b[1]-p[1])*ky
	dx, dy := bx-ax, by-ay

	t := 0.0
	if l2 := dx*dx + dy*dy; l2 > 0 {
		t = -(ax*dx + ay*dy) / l2
		t = math.Max(0, math.Min(1, t))
	}
	snapped := orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
	return DistanceM(p, snapped), snapped
}

// PathDistanceM returns the distance from p to the nearest segment of the
// polyline and the snapped point. A single-point path degenerates to a
// point distance. The boolean is false for an empty path.
func PathDistanceM(p orb.Point, path []orb.Point) (float64, orb.Point, bool) {
	switch len(path) {
	case 0:
		return 0, orb.Point{}, false
	case 1:
		return DistanceM(p, path[0]), path[0], true
	}
	best := math.Inf(1)
	var snapped orb.Point
	for i := 1; i < len(path); i++ {
		d, s := SegmentDistanceM(p, path[i-1], path[i])
		if d < best {
			best, snapped = d, s
		}
	}
	return best, snapped, true
}

// BoundOf returns the bounding box of the points padded by marginM meters.
func BoundOf(points []orb.Point, marginM float64) orb.Bound {
	if len(points) == 0 {
		return orb.Bound{}
	}
	b := orb.MultiPoint(points).Bound()
	if marginM <= 0 {
		return b
	}
	dLat := marginM / metersPerDegree
	dLon := marginM / (metersPerDegree * math.Max(math.Cos(b.Center()[1]*math.Pi/180), 0.01))
	return orb.Bound{
		Min: orb.Point{b.Min[0] - dLon, b.Min[1] - dLat},
		Max: orb.Point{b.Max[0] + dLon, b.Max[1] + dLat},
	}
}

// EncodePolyline encodes the points in Google's polyline format.
func EncodePolyline(points []orb.Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p[1], p[0]}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePolyline is the inverse of EncodePolyline.
func DecodePolyline(s string) ([]orb.Point, error) {
	coords, _, err := polyline.DecodeCoords([]byte(s))
	if err != nil {
		return nil, err
	}
	out := make([]orb.Point, len(coords))
	for i, c := range coords {
		out[i] = orb.Point{c[1], c[0]}
	}
	return out, nil
}

const metersPerDegree = 111_320.0
