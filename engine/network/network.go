// Package network holds the immutable road-network topology used by route
// search: typed nodes and edges, attribute normalization, parallel-edge
// collapse, and nearest-node resolution. Per-request edge costs live outside
// the network, in tables indexed by EdgeID.
package network

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/WessleyAI/wessley-routing/engine/domain"
	"github.com/WessleyAI/wessley-routing/pkg/geo"
)

// NodeID identifies an intersection.
type NodeID int64

// EdgeID indexes an edge within a single Network. IDs are dense, starting at 0.
type EdgeID int

// Node is an intersection with a position.
type Node struct {
	ID  NodeID  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Point returns the node position as an orb.Point.
func (n Node) Point() orb.Point { return geo.Point(n.Lat, n.Lon) }

// Edge is a directed road segment.
type Edge struct {
	ID            EdgeID    `json:"id"`
	From          NodeID    `json:"from"`
	To            NodeID    `json:"to"`
	LengthM       float64   `json:"length_m"`
	Class         RoadClass `json:"class"`
	SpeedLimitKmh float64   `json:"speed_limit_kmh,omitempty"` // 0 when not posted
}

// Network is a directed road graph. It is immutable once built and safe for
// concurrent readers.
type Network struct {
	nodes []Node
	index map[NodeID]int
	edges []Edge
	out   map[NodeID][]EdgeID
	pairs map[[2]NodeID]EdgeID
}

// Node returns the node with the given id.
func (n *Network) Node(id NodeID) (Node, bool) {
	i, ok := n.index[id]
	if !ok {
		return Node{}, false
	}
	return n.nodes[i], true
}

// Nodes returns all nodes in insertion order. The slice must not be modified.
func (n *Network) Nodes() []Node { return n.nodes }

// Edge returns the edge with the given id.
func (n *Network) Edge(id EdgeID) (Edge, bool) {
	if id < 0 || int(id) >= len(n.edges) {
		return Edge{}, false
	}
	return n.edges[id], true
}

// Edges returns all edges indexed by EdgeID. The slice must not be modified.
func (n *Network) Edges() []Edge { return n.edges }

// NumNodes returns the node count.
func (n *Network) NumNodes() int { return len(n.nodes) }

// NumEdges returns the edge count.
func (n *Network) NumEdges() int { return len(n.edges) }

// Out returns the ids of edges leaving node id.
func (n *Network) Out(id NodeID) []EdgeID { return n.out[id] }

// EdgeBetween returns the edge from u to v, if any.
func (n *Network) EdgeBetween(u, v NodeID) (EdgeID, bool) {
	id, ok := n.pairs[[2]NodeID{u, v}]
	return id, ok
}

// Midpoint returns the representative point of an edge.
func (n *Network) Midpoint(e Edge) orb.Point {
	a, _ := n.Node(e.From)
	b, _ := n.Node(e.To)
	return geo.Midpoint(a.Point(), b.Point())
}

// PathEdges maps a node sequence to the edges joining consecutive nodes.
// Pairs with no connecting edge are skipped and reported in missing.
func (n *Network) PathEdges(path []NodeID) (edges []EdgeID, missing int) {
	for i := 1; i < len(path); i++ {
		id, ok := n.EdgeBetween(path[i-1], path[i])
		if !ok {
			missing++
			continue
		}
		edges = append(edges, id)
	}
	return edges, missing
}

// PathPoints returns the positions of the nodes in path. Unknown nodes are
// skipped.
func (n *Network) PathPoints(path []NodeID) []orb.Point {
	pts := make([]orb.Point, 0, len(path))
	for _, id := range path {
		if node, ok := n.Node(id); ok {
			pts = append(pts, node.Point())
		}
	}
	return pts
}

// NearestNode resolves a coordinate to the closest node by great-circle
// distance.
func (n *Network) NearestNode(c domain.Coordinate) (NodeID, error) {
	if len(n.nodes) == 0 {
		return 0, fmt.Errorf("network: nearest node: %w", domain.ErrGraphUnavailable)
	}
	p := geo.Point(c.Lat, c.Lon)
	best, bestDist := n.nodes[0].ID, math.Inf(1)
	for _, node := range n.nodes {
		if d := geo.DistanceM(p, node.Point()); d < bestDist {
			best, bestDist = node.ID, d
		}
	}
	return best, nil
}

// Builder assembles a Network. Parallel edges between the same ordered node
// pair are collapsed to the shortest one.
type Builder struct {
	nodes     []Node
	index     map[NodeID]int
	edges     []Edge
	pairs     map[[2]NodeID]int
	malformed int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		index: make(map[NodeID]int),
		pairs: make(map[[2]NodeID]int),
	}
}

// AddNode adds or repositions a node.
func (b *Builder) AddNode(id NodeID, lat, lon float64) {
	if i, ok := b.index[id]; ok {
		b.nodes[i] = Node{ID: id, Lat: lat, Lon: lon}
		return
	}
	b.index[id] = len(b.nodes)
	b.nodes = append(b.nodes, Node{ID: id, Lat: lat, Lon: lon})
}

// RawEdge carries edge attributes as they appear in source data. Highway and
// MaxSpeed may be scalars or lists.
type RawEdge struct {
	From     NodeID
	To       NodeID
	LengthM  float64
	Highway  any
	MaxSpeed any
}

// AddEdge normalizes and adds a directed edge. Edges referencing unknown
// nodes or forming self-loops are rejected with ErrMalformedEdge. Garbage
// length falls back to the straight-line distance between the endpoints;
// garbage class or speed falls back to defaults.
func (b *Builder) AddEdge(raw RawEdge) error {
	fi, okFrom := b.index[raw.From]
	ti, okTo := b.index[raw.To]
	if !okFrom || !okTo {
		return fmt.Errorf("network: edge %d->%d: unknown endpoint: %w", raw.From, raw.To, domain.ErrMalformedEdge)
	}
	if raw.From == raw.To {
		return fmt.Errorf("network: edge %d->%d: self loop: %w", raw.From, raw.To, domain.ErrMalformedEdge)
	}

	length := raw.LengthM
	if math.IsNaN(length) || math.IsInf(length, 0) || length <= 0 {
		length = geo.DistanceM(b.nodes[fi].Point(), b.nodes[ti].Point())
		b.malformed++
	}
	e := Edge{
		From:          raw.From,
		To:            raw.To,
		LengthM:       length,
		Class:         ParseRoadClass(raw.Highway),
		SpeedLimitKmh: ParseSpeed(raw.MaxSpeed),
	}

	key := [2]NodeID{raw.From, raw.To}
	if i, ok := b.pairs[key]; ok {
		if e.LengthM < b.edges[i].LengthM {
			e.ID = b.edges[i].ID
			b.edges[i] = e
		}
		return nil
	}
	e.ID = EdgeID(len(b.edges))
	b.pairs[key] = len(b.edges)
	b.edges = append(b.edges, e)
	return nil
}

// Malformed returns how many edges needed a length fallback.
func (b *Builder) Malformed() int { return b.malformed }

// Build freezes the builder into a Network. The builder must not be reused.
func (b *Builder) Build() *Network {
	n := &Network{
		nodes: b.nodes,
		index: b.index,
		edges: b.edges,
		out:   make(map[NodeID][]EdgeID, len(b.nodes)),
		pairs: make(map[[2]NodeID]EdgeID, len(b.edges)),
	}
	for _, e := range b.edges {
		n.out[e.From] = append(n.out[e.From], e.ID)
		n.pairs[[2]NodeID{e.From, e.To}] = e.ID
	}
	return n
}
