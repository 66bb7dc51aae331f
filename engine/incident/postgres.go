package incident

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/WessleyAI/wessley-routing/engine/domain"
)

// PostgresStore reads the incidents table. Near-path queries need PostGIS
// and a geom_indexed geometry column.
type PostgresStore struct {
	db    *sql.DB
	limit int
}

// OpenPostgres connects with a lib/pq DSN and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("incident: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("incident: ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresStore creates a store on db. limit caps rows per query; zero
// means 500.
func NewPostgresStore(db *sql.DB, limit int) *PostgresStore {
	if limit <= 0 {
		limit = 500
	}
	return &PostgresStore{db: db, limit: limit}
}

const fetchSQL = `
SELECT CAST(id AS TEXT), ty, latitude, longitude, COALESCE(d, ''),
       COALESCE(CAST(l AS INTEGER), 300), sd
FROM incidents
WHERE latitude BETWEEN $1 AND $2
  AND longitude BETWEEN $3 AND $4
  AND sd > $5
ORDER BY sd DESC
LIMIT $6`

// Fetch returns incidents inside bbox reported after since.
func (s *PostgresStore) Fetch(ctx context.Context, bbox domain.BoundingBox, since time.Time) ([]domain.Incident, error) {
	rows, err := s.db.QueryContext(ctx, fetchSQL,
		bbox.MinLat, bbox.MaxLat, bbox.MinLon, bbox.MaxLon, since, s.limit)
	if err != nil {
		return nil, fmt.Errorf("incident: postgres fetch: %w", err)
	}
	defer rows.Close()

	out := []domain.Incident{}
	for rows.Next() {
		var (
			inc    domain.Incident
			radius int
			sd     sql.NullTime
		)
		if err := rows.Scan(&inc.ID, &inc.Type, &inc.Position.Lat, &inc.Position.Lon,
			&inc.Description, &radius, &sd); err != nil {
			return nil, fmt.Errorf("incident: postgres scan: %w", err)
		}
		inc.RadiusM = float64(radius)
		if sd.Valid {
			inc.ReportedAt = sd.Time
		}
		inc.Severity = domain.SeverityFor(inc.Type)
		out = append(out, inc)
	}
	return out, rows.Err()
}

const nearPathSQL = `
WITH route_line AS (
    SELECT ST_SetSRID(ST_GeomFromText($1), 4326) AS geom
)
SELECT CAST(i.id AS TEXT), i.ty, i.latitude, i.longitude, COALESCE(i.d, ''),
       COALESCE(CAST(i.l AS INTEGER), 300),
       ST_Distance(i.geom_indexed::geography, r.geom::geography),
       ST_Y(ST_ClosestPoint(r.geom, ST_SetSRID(ST_MakePoint(i.longitude, i.latitude), 4326))),
       ST_X(ST_ClosestPoint(r.geom, ST_SetSRID(ST_MakePoint(i.longitude, i.latitude), 4326)))
FROM incidents i, route_line r
WHERE i.latitude IS NOT NULL AND i.longitude IS NOT NULL
  AND ST_DWithin(i.geom_indexed::geography, r.geom::geography, $2)
ORDER BY 7
LIMIT $3`

// NearPath returns incidents within radiusM of the path, closest first.
func (s *PostgresStore) NearPath(ctx context.Context, path []domain.Coordinate, radiusM float64) ([]domain.Incident, error) {
	if len(path) == 0 {
		return []domain.Incident{}, nil
	}
	rows, err := s.db.QueryContext(ctx, nearPathSQL, LineStringWKT(path), radiusM, s.limit)
	if err != nil {
		return nil, fmt.Errorf("incident: postgres near path: %w", err)
	}
	defer rows.Close()

	out := []domain.Incident{}
	for rows.Next() {
		var (
			inc     domain.Incident
			radius  int
			snapped domain.Coordinate
		)
		if err := rows.Scan(&inc.ID, &inc.Type, &inc.Position.Lat, &inc.Position.Lon,
			&inc.Description, &radius, &inc.DistanceM, &snapped.Lat, &snapped.Lon); err != nil {
			return nil, fmt.Errorf("incident: postgres scan: %w", err)
		}
		inc.RadiusM = float64(radius)
		inc.Snapped = &snapped
		inc.Severity = domain.SeverityFor(inc.Type)
		out = append(out, inc)
	}
	return out, rows.Err()
}

// LineStringWKT renders path as a WKT LINESTRING in lon/lat order. A single
// point is repeated so the geometry stays valid.
func LineStringWKT(path []domain.Coordinate) string {
	if len(path) == 1 {
		path = []domain.Coordinate{path[0], path[0]}
	}
	parts := make([]string, len(path))
	for i, c := range path {
		parts[i] = strconv.FormatFloat(c.Lon, 'f', -1, 64) + " " + strconv.FormatFloat(c.Lat, 'f', -1, 64)
	}
	return "LINESTRING(" + strings.Join(parts, ", ") + ")"
}
