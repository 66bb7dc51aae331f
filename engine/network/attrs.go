package network

import (
	"regexp"
	"strconv"
	"strings"
)

// RoadClass is an OSM highway tag.
type RoadClass string

const (
	Motorway      RoadClass = "motorway"
	Trunk         RoadClass = "trunk"
	Primary       RoadClass = "primary"
	Secondary     RoadClass = "secondary"
	Tertiary      RoadClass = "tertiary"
	Residential   RoadClass = "residential"
	MotorwayLink  RoadClass = "motorway_link"
	TrunkLink     RoadClass = "trunk_link"
	PrimaryLink   RoadClass = "primary_link"
	SecondaryLink RoadClass = "secondary_link"
	Unclassified  RoadClass = "unclassified"
	Service       RoadClass = "service"
)

// DefaultClass is used when an edge carries no usable highway tag.
const DefaultClass = Unclassified

// ParseRoadClass normalizes a highway attribute. Lists use their first
// element, as OSM exports do for merged ways.
func ParseRoadClass(v any) RoadClass {
	switch t := v.(type) {
	case RoadClass:
		if t == "" {
			return DefaultClass
		}
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		if s == "" {
			return DefaultClass
		}
		return RoadClass(s)
	case []string:
		if len(t) > 0 {
			return ParseRoadClass(t[0])
		}
	case []any:
		if len(t) > 0 {
			return ParseRoadClass(t[0])
		}
	}
	return DefaultClass
}

var digits = regexp.MustCompile(`\d+(\.\d+)?`)

// ParseSpeed normalizes a maxspeed attribute to km/h. Values in mph are
// converted. Anything unparseable yields 0, meaning no posted limit.
func ParseSpeed(v any) float64 {
	switch t := v.(type) {
	case float64:
		if t > 0 {
			return t
		}
	case int:
		if t > 0 {
			return float64(t)
		}
	case int64:
		if t > 0 {
			return float64(t)
		}
	case string:
		m := digits.FindString(t)
		if m == "" {
			return 0
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0
		}
		if strings.Contains(strings.ToLower(t), "mph") {
			f *= 1.609344
		}
		return f
	case []string:
		if len(t) > 0 {
			return ParseSpeed(t[0])
		}
	case []any:
		if len(t) > 0 {
			return ParseSpeed(t[0])
		}
	}
	return 0
}
