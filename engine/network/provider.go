package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/WessleyAI/wessley-routing/engine/domain"
)

// Provider supplies the road network covering a bounding box.
type Provider interface {
	Fetch(ctx context.Context, bbox domain.BoundingBox) (*Network, error)
}

// nodeLinkDoc is the node-link JSON layout produced by common OSM exporters.
// Node positions use x=lon, y=lat.
type nodeLinkDoc struct {
	Nodes []struct {
		ID json.Number `json:"id"`
		X  float64     `json:"x"`
		Y  float64     `json:"y"`
	} `json:"nodes"`
	Links []struct {
		Source   json.Number `json:"source"`
		Target   json.Number `json:"target"`
		Length   float64     `json:"length"`
		Highway  any         `json:"highway"`
		MaxSpeed any         `json:"maxspeed"`
	} `json:"links"`
}

// Decode parses a node-link JSON document into a Network. Malformed edges are
// skipped; their count is returned.
func Decode(r io.Reader) (*Network, int, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc nodeLinkDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, 0, fmt.Errorf("network: decode: %w", err)
	}

	b := NewBuilder()
	for _, n := range doc.Nodes {
		id, err := n.ID.Int64()
		if err != nil {
			return nil, 0, fmt.Errorf("network: decode: node id %q: %w", n.ID, err)
		}
		b.AddNode(NodeID(id), n.Y, n.X)
	}
	skipped := 0
	for _, l := range doc.Links {
		from, errF := l.Source.Int64()
		to, errT := l.Target.Int64()
		if errF != nil || errT != nil {
			skipped++
			continue
		}
		err := b.AddEdge(RawEdge{
			From:     NodeID(from),
			To:       NodeID(to),
			LengthM:  l.Length,
			Highway:  l.Highway,
			MaxSpeed: l.MaxSpeed,
		})
		if err != nil {
			skipped++
		}
	}
	return b.Build(), skipped + b.Malformed(), nil
}

// FileProvider serves sub-networks of a network loaded from a JSON file.
type FileProvider struct {
	path string

	once sync.Once
	full *Network
	err  error
}

// NewFileProvider returns a provider backed by the node-link JSON at path.
// The file is read on first use.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) load() {
	f, err := os.Open(p.path)
	if err != nil {
		p.err = err
		return
	}
	defer f.Close()
	p.full, _, p.err = Decode(f)
}

// Fetch returns the nodes inside bbox and the edges joining them.
func (p *FileProvider) Fetch(ctx context.Context, bbox domain.BoundingBox) (*Network, error) {
	p.once.Do(p.load)
	if p.err != nil {
		return nil, fmt.Errorf("network: file %s: %v: %w", p.path, p.err, domain.ErrGraphUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Subnetwork(p.full, bbox)
}

// Subnetwork extracts the nodes of n inside bbox and the edges with both
// endpoints among them.
func Subnetwork(n *Network, bbox domain.BoundingBox) (*Network, error) {
	b := NewBuilder()
	inside := make(map[NodeID]bool)
	for _, node := range n.Nodes() {
		if bbox.Contains(domain.Coordinate{Lat: node.Lat, Lon: node.Lon}) {
			b.AddNode(node.ID, node.Lat, node.Lon)
			inside[node.ID] = true
		}
	}
	for _, e := range n.Edges() {
		if !inside[e.From] || !inside[e.To] {
			continue
		}
		err := b.AddEdge(RawEdge{
			From:     e.From,
			To:       e.To,
			LengthM:  e.LengthM,
			Highway:  e.Class,
			MaxSpeed: e.SpeedLimitKmh,
		})
		if err != nil {
			return nil, fmt.Errorf("network: subnetwork: %w", err)
		}
	}
	return b.Build(), nil
}
