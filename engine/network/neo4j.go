package network

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/wessley-routing/engine/domain"
)

// cypherRunner executes a Cypher query and returns every record.
type cypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any, write bool) ([]*neo4j.Record, error)
}

type driverRunner struct {
	driver neo4j.DriverWithContext
}

func (r driverRunner) Run(ctx context.Context, cypher string, params map[string]any, write bool) ([]*neo4j.Record, error) {
	routing := neo4j.ExecuteQueryWithReadersRouting()
	if write {
		routing = neo4j.ExecuteQueryWithWritersRouting()
	}
	res, err := neo4j.ExecuteQuery(ctx, r.driver, cypher, params, neo4j.EagerResultTransformer, routing)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// Neo4jProvider reads the road network from a graph of
// (:Intersection {id, lat, lon})-[:ROAD {length, highway, maxspeed}]->(:Intersection).
type Neo4jProvider struct {
	run cypherRunner
}

// NewNeo4jProvider creates a provider on top of a Neo4j driver.
func NewNeo4jProvider(driver neo4j.DriverWithContext) *Neo4jProvider {
	return &Neo4jProvider{run: driverRunner{driver: driver}}
}

// NewNeo4jProviderWithRunner creates a provider with an injected runner (for tests).
func NewNeo4jProviderWithRunner(r cypherRunner) *Neo4jProvider {
	return &Neo4jProvider{run: r}
}

const fetchCypher = `
MATCH (a:Intersection)-[r:ROAD]->(b:Intersection)
WHERE a.lat >= $minLat AND a.lat <= $maxLat AND a.lon >= $minLon AND a.lon <= $maxLon
  AND b.lat >= $minLat AND b.lat <= $maxLat AND b.lon >= $minLon AND b.lon <= $maxLon
RETURN a.id AS from, a.lat AS fromLat, a.lon AS fromLon,
       b.id AS to, b.lat AS toLat, b.lon AS toLon,
       r.length AS length, r.highway AS highway, r.maxspeed AS maxspeed`

// Fetch loads every road with both ends inside bbox.
func (p *Neo4jProvider) Fetch(ctx context.Context, bbox domain.BoundingBox) (*Network, error) {
	records, err := p.run.Run(ctx, fetchCypher, map[string]any{
		"minLat": bbox.MinLat, "maxLat": bbox.MaxLat,
		"minLon": bbox.MinLon, "maxLon": bbox.MaxLon,
	}, false)
	if err != nil {
		return nil, fmt.Errorf("network: neo4j fetch: %v: %w", err, domain.ErrGraphUnavailable)
	}

	b := NewBuilder()
	var raws []RawEdge
	for _, rec := range records {
		from, ok1 := int64Prop(rec, "from")
		to, ok2 := int64Prop(rec, "to")
		if !ok1 || !ok2 {
			continue
		}
		b.AddNode(NodeID(from), floatProp(rec, "fromLat"), floatProp(rec, "fromLon"))
		b.AddNode(NodeID(to), floatProp(rec, "toLat"), floatProp(rec, "toLon"))
		highway, _ := rec.Get("highway")
		maxspeed, _ := rec.Get("maxspeed")
		raws = append(raws, RawEdge{
			From:     NodeID(from),
			To:       NodeID(to),
			LengthM:  floatProp(rec, "length"),
			Highway:  highway,
			MaxSpeed: maxspeed,
		})
	}
	for _, r := range raws {
		_ = b.AddEdge(r)
	}
	return b.Build(), nil
}

const storeCypher = `
UNWIND $roads AS road
MERGE (a:Intersection {id: road.from})
  SET a.lat = road.fromLat, a.lon = road.fromLon
MERGE (b:Intersection {id: road.to})
  SET b.lat = road.toLat, b.lon = road.toLon
MERGE (a)-[r:ROAD]->(b)
  SET r.length = road.length, r.highway = road.highway, r.maxspeed = road.maxspeed`

// Store writes the network in batches of batchSize roads.
func (p *Neo4jProvider) Store(ctx context.Context, n *Network, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	edges := n.Edges()
	for start := 0; start < len(edges); start += batchSize {
		end := min(start+batchSize, len(edges))
		roads := make([]map[string]any, 0, end-start)
		for _, e := range edges[start:end] {
			a, _ := n.Node(e.From)
			b, _ := n.Node(e.To)
			roads = append(roads, map[string]any{
				"from": int64(a.ID), "fromLat": a.Lat, "fromLon": a.Lon,
				"to": int64(b.ID), "toLat": b.Lat, "toLon": b.Lon,
				"length": e.LengthM, "highway": string(e.Class), "maxspeed": e.SpeedLimitKmh,
			})
		}
		if _, err := p.run.Run(ctx, storeCypher, map[string]any{"roads": roads}, true); err != nil {
			return fmt.Errorf("network: neo4j store batch %d: %w", start/batchSize, err)
		}
	}
	return nil
}

func int64Prop(rec *neo4j.Record, key string) (int64, bool) {
	v, ok := rec.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return t, true
	case float64:
		return int64(t), true
	}
	return 0, false
}

func floatProp(rec *neo4j.Record, key string) float64 {
	v, _ := rec.Get(key)
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	}
	return 0
}
