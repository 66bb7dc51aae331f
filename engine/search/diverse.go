package search

import (
	"context"

	"github.com/WessleyAI/wessley-routing/engine/network"
)

// Options tunes FindKDiverse.
type Options struct {
	Penalty       float64 // multiplier added per prior use of an edge
	MaxOverlap    float64 // paths at or above this overlap are rejected
	AttemptFactor int     // attempt budget is AttemptFactor*k

	// PenalizeRejected also counts the edges of rejected candidates, so
	// consecutive attempts explore further instead of repeating the same
	// rejected path.
	PenalizeRejected bool
}

// DefaultOptions returns the reference constants.
func DefaultOptions() Options {
	return Options{Penalty: 0.3, MaxOverlap: 0.7, AttemptFactor: 3}
}

// Penalized returns a copy of weights with each used edge multiplied by
// 1 + usage*penalty.
func Penalized(weights []float64, usage map[network.EdgeID]int, penalty float64) []float64 {
	out := make([]float64, len(weights))
	copy(out, weights)
	for id, count := range usage {
		if int(id) < len(out) {
			out[id] *= 1 + float64(count)*penalty
		}
	}
	return out
}

// Overlap returns the share of candidate's edges that also appear in
// existing. An edgeless candidate overlaps fully.
func Overlap(candidate, existing []network.EdgeID) float64 {
	if len(candidate) == 0 {
		return 1
	}
	set := make(map[network.EdgeID]struct{}, len(existing))
	for _, id := range existing {
		set[id] = struct{}{}
	}
	seen := make(map[network.EdgeID]struct{}, len(candidate))
	shared := 0
	for _, id := range candidate {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := set[id]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(seen))
}

// MaxOverlap returns the largest Overlap of candidate against accepted.
func MaxOverlap(candidate []network.EdgeID, accepted []Path) float64 {
	var m float64
	for _, p := range accepted {
		if o := Overlap(candidate, p.Edges); o > m {
			m = o
		}
	}
	return m
}

// FindKDiverse returns up to k paths from src to dst whose pairwise edge
// overlap stays below opts.MaxOverlap. The first path is the plain
// shortest path; later ones come from repeated searches over weights that
// penalize already used edges. Path weights are reported against the
// unpenalized table.
//
// An unreachable target yields an empty slice and no error. Context
// cancellation is checked between attempts; on cancellation the paths
// accepted so far are returned with ctx.Err().
func FindKDiverse(ctx context.Context, n *network.Network, src, dst network.NodeID, k int, weights []float64, h Heuristic, opts Options) ([]Path, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Path{}, nil
	}
	first, ok := ShortestPath(n, src, dst, weights, h)
	if !ok {
		return []Path{}, nil
	}
	accepted := []Path{first}
	if len(first.Edges) == 0 {
		return accepted, nil
	}

	usage := make(map[network.EdgeID]int)
	use := func(edges []network.EdgeID) {
		for _, id := range edges {
			usage[id]++
		}
	}
	use(first.Edges)

	budget := opts.AttemptFactor * k
	for attempt := 0; len(accepted) < k && attempt < budget; attempt++ {
		if err := ctx.Err(); err != nil {
			return accepted, err
		}
		penalized := Penalized(weights, usage, opts.Penalty)
		alt, ok := ShortestPath(n, src, dst, penalized, h)
		if !ok {
			continue
		}
		if MaxOverlap(alt.Edges, accepted) >= opts.MaxOverlap {
			if opts.PenalizeRejected {
				use(alt.Edges)
			}
			continue
		}
		alt.Weight = pathWeight(alt.Edges, weights)
		accepted = append(accepted, alt)
		use(alt.Edges)
	}
	return accepted, nil
}

func pathWeight(edges []network.EdgeID, weights []float64) float64 {
	var w float64
	for _, id := range edges {
		w += weights[id]
	}
	return w
}
