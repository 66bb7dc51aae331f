// Package search finds minimum-weight paths and sets of mutually diverse
// alternatives over a road network with request-local edge weights.
package search

import (
	"container/heap"
	"math"

	"github.com/WessleyAI/wessley-routing/engine/network"
)

// Heuristic estimates the remaining weight from a node to the target. It
// must never overestimate, or returned paths may not be minimal.
type Heuristic func(from network.NodeID) float64

// Path is a route through the network.
type Path struct {
	Nodes  []network.NodeID
	Edges  []network.EdgeID
	Weight float64
}

type item struct {
	node network.NodeID
	f    float64
	seq  int
}

type frontier []item

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].f != f[j].f {
		return f[i].f < f[j].f
	}
	return f[i].seq < f[j].seq
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(item)) }
func (f *frontier) Pop() any {
	old := *f
	it := old[len(old)-1]
	*f = old[:len(old)-1]
	return it
}

// ShortestPath runs A* from src to dst. weights is indexed by EdgeID; a nil
// heuristic degrades to Dijkstra. Ties are broken by discovery order, which
// is stable for a given network and weight table. ok is false when dst is
// unreachable or either endpoint is missing.
func ShortestPath(n *network.Network, src, dst network.NodeID, weights []float64, h Heuristic) (Path, bool) {
	if _, ok := n.Node(src); !ok {
		return Path{}, false
	}
	if _, ok := n.Node(dst); !ok {
		return Path{}, false
	}
	if h == nil {
		h = func(network.NodeID) float64 { return 0 }
	}

	type label struct {
		g    float64
		via  network.EdgeID
		prev network.NodeID
		root bool
	}
	labels := map[network.NodeID]*label{src: {root: true}}
	closed := make(map[network.NodeID]bool)
	pq := &frontier{{node: src, f: h(src)}}
	seq := 1

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(item)
		if closed[cur.node] {
			continue
		}
		if cur.node == dst {
			break
		}
		closed[cur.node] = true
		g := labels[cur.node].g

		for _, eid := range n.Out(cur.node) {
			e, _ := n.Edge(eid)
			if closed[e.To] {
				continue
			}
			w := weights[eid]
			if math.IsNaN(w) || w < 0 {
				continue
			}
			ng := g + w
			if l, seen := labels[e.To]; seen && l.g <= ng {
				continue
			}
			labels[e.To] = &label{g: ng, via: eid, prev: cur.node}
			heap.Push(pq, item{node: e.To, f: ng + h(e.To), seq: seq})
			seq++
		}
	}

	end, ok := labels[dst]
	if !ok {
		return Path{}, false
	}
	p := Path{Weight: end.g}
	for id := dst; ; {
		l := labels[id]
		p.Nodes = append(p.Nodes, id)
		if l.root {
			break
		}
		p.Edges = append(p.Edges, l.via)
		id = l.prev
	}
	reverse(p.Nodes)
	reverse(p.Edges)
	return p, true
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
