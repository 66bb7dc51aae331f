package optimizer

import "fmt"

// State is a stage of a single optimization run.
type State int

const (
	StateIdle State = iota
	StateWeightsRefreshed
	StateNodesResolved
	StatePathsFound
	StateMetricsComputed
	StateResultReady
	StateNoRoute
)

var stateNames = map[State]string{
	StateIdle:             "idle",
	StateWeightsRefreshed: "weights_refreshed",
	StateNodesResolved:    "nodes_resolved",
	StatePathsFound:       "paths_found",
	StateMetricsComputed:  "metrics_computed",
	StateResultReady:      "result_ready",
	StateNoRoute:          "no_route",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateResultReady || s == StateNoRoute }

var transitions = map[State][]State{
	StateIdle:             {StateWeightsRefreshed},
	StateWeightsRefreshed: {StateNodesResolved},
	StateNodesResolved:    {StatePathsFound},
	StatePathsFound:       {StateMetricsComputed, StateNoRoute},
	StateMetricsComputed:  {StateResultReady},
}

// run tracks the progress of one Optimize call.
type run struct {
	state State
	trail []State
}

func (r *run) advance(next State) error {
	for _, s := range transitions[r.state] {
		if s == next {
			r.trail = append(r.trail, r.state)
			r.state = next
			return nil
		}
	}
	return fmt.Errorf("optimizer: illegal transition %s -> %s", r.state, next)
}
