package domain

import "fmt"

// MaxRoutes bounds how many alternatives a single request may ask for.
const MaxRoutes = 10

// RouteRequest is the validated input of a route optimization.
type RouteRequest struct {
	Source      Coordinate
	Destination Coordinate
	Scenario    Scenario
	K           int
}

// ValidateCoordinate checks that c is a usable WGS84 position.
func ValidateCoordinate(field string, c Coordinate) error {
	if !c.Valid() {
		return NewValidationError(field, fmt.Sprintf("%g,%g", c.Lat, c.Lon), ErrInvalidCoordinate)
	}
	return nil
}

// ValidateRouteRequest validates a RouteRequest.
func ValidateRouteRequest(r RouteRequest) error {
	if err := ValidateCoordinate("source", r.Source); err != nil {
		return err
	}
	if err := ValidateCoordinate("destination", r.Destination); err != nil {
		return err
	}
	if _, err := ParseScenario(string(r.Scenario)); err != nil {
		return err
	}
	if r.K < 1 || r.K > MaxRoutes {
		return NewValidationError("k", fmt.Sprintf("%d", r.K), ErrInvalidK)
	}
	return nil
}
