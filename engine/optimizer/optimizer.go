// Package optimizer orchestrates a route request: it fetches the road
// network and incidents for the area, prices every edge for the scenario
// and departure time, searches for diverse alternatives, aggregates their
// metrics, and turns trip feedback into weight updates.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/WessleyAI/wessley-routing/engine/cost"
	"github.com/WessleyAI/wessley-routing/engine/domain"
	"github.com/WessleyAI/wessley-routing/engine/incident"
	"github.com/WessleyAI/wessley-routing/engine/network"
	"github.com/WessleyAI/wessley-routing/engine/route"
	"github.com/WessleyAI/wessley-routing/engine/search"
	"github.com/WessleyAI/wessley-routing/engine/traffic"
	"github.com/WessleyAI/wessley-routing/pkg/fn"
	"github.com/WessleyAI/wessley-routing/pkg/geo"
)

var tracer = otel.Tracer("engine/optimizer")

// nearPathWorkers bounds concurrent near-path queries per request.
const nearPathWorkers = 4

// NetworkSource returns the road network covering a bounding box.
type NetworkSource interface {
	Get(ctx context.Context, bbox domain.BoundingBox) (*network.Network, error)
}

// Options configures the orchestrator.
type Options struct {
	DefaultK      int
	BBoxMarginDeg float64
	Recency       time.Duration // incident look-back window
	NearPath      bool          // also query the store for incidents along each route
	SessionTTL    time.Duration
	Search        search.Options
	Traffic       traffic.Options
	Cost          cost.Params
}

// DefaultOptions returns the reference configuration.
func DefaultOptions() Options {
	return Options{
		DefaultK:      4,
		BBoxMarginDeg: 0.05,
		Recency:       incident.DefaultRecency,
		NearPath:      true,
		SessionTTL:    DefaultSessionTTL,
		Search:        search.DefaultOptions(),
		Traffic:       traffic.DefaultOptions(),
		Cost:          cost.DefaultParams(),
	}
}

// Hooks receive observations for metrics. Any field may be nil.
type Hooks struct {
	Optimized func(status State, d time.Duration)
	Failed    func(err error)
	Feedback  func(s domain.Scenario, u cost.Update)
}

// Request is the input of Optimize.
type Request struct {
	Source      domain.Coordinate
	Destination domain.Coordinate
	Scenario    domain.Scenario
	K           int       // 0 uses Options.DefaultK
	Departure   time.Time // zero means now
}

// Route is one candidate with its metrics.
type Route struct {
	Index           int                 `json:"index"`
	Nodes           []network.NodeID    `json:"nodes"`
	Points          []domain.Coordinate `json:"points"`
	Polyline        string              `json:"polyline"`
	Weight          float64             `json:"weight"`
	Metrics         route.Metrics       `json:"metrics"`
	NearbyIncidents []domain.Incident   `json:"nearby_incidents,omitempty"`
}

// Result is the outcome of Optimize. A NoRoute result has no session and
// no routes; it is not an error.
type Result struct {
	SessionID string          `json:"session_id,omitempty"`
	Status    State           `json:"status"`
	Scenario  domain.Scenario `json:"scenario"`
	Departure time.Time       `json:"departure"`
	Weights   cost.Vector     `json:"weights"`
	Incidents int             `json:"incidents_considered"`
	Routes    []Route         `json:"routes"`
}

// Service is the route optimizer.
type Service struct {
	networks  NetworkSource
	incidents incident.Store
	learner   *cost.Learner
	sessions  *SessionStore
	events    EventPublisher
	hooks     Hooks
	opts      Options
	logger    *slog.Logger
	now       func() time.Time

	// model builds the traffic model for one request's incident snapshot.
	model func(idx *incident.Index) traffic.Model
}

// New creates a Service. incidents should already be guarded so that a
// backend failure yields no incidents rather than an error.
func New(networks NetworkSource, incidents incident.Store, learner *cost.Learner, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if incidents == nil {
		incidents = incident.Static{}
	}
	s := &Service{
		networks:  networks,
		incidents: incidents,
		learner:   learner,
		sessions:  NewSessionStore(opts.SessionTTL),
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
	s.model = func(idx *incident.Index) traffic.Model { return traffic.NewModel(idx, s.opts.Traffic) }
	return s
}

// SetEvents installs a publisher for feedback events.
func (s *Service) SetEvents(p EventPublisher) { s.events = p }

// SetHooks installs metric hooks.
func (s *Service) SetHooks(h Hooks) { s.hooks = h }

// Sessions exposes the session store for eviction and inspection.
func (s *Service) Sessions() *SessionStore { return s.sessions }

// Learner returns the weight learner.
func (s *Service) Learner() *cost.Learner { return s.learner }

// refresh is the request-local pricing of one network.
type refresh struct {
	costs     []cost.EdgeCost
	incidents [][]domain.Incident
}

// Optimize searches for up to K diverse routes.
func (s *Service) Optimize(ctx context.Context, req Request) (*Result, error) {
	start := s.now()
	res, err := s.optimize(ctx, req)
	if err != nil {
		if s.hooks.Failed != nil {
			s.hooks.Failed(err)
		}
		return nil, err
	}
	if s.hooks.Optimized != nil {
		s.hooks.Optimized(res.Status, s.now().Sub(start))
	}
	return res, nil
}

func (s *Service) optimize(ctx context.Context, req Request) (*Result, error) {
	if req.K == 0 {
		req.K = s.opts.DefaultK
	}
	if err := domain.ValidateRouteRequest(domain.RouteRequest{
		Source: req.Source, Destination: req.Destination, Scenario: req.Scenario, K: req.K,
	}); err != nil {
		return nil, err
	}
	at := req.Departure
	if at.IsZero() {
		at = s.now()
	}

	ctx, span := tracer.Start(ctx, "optimizer.optimize")
	defer span.End()
	span.SetAttributes(
		attribute.String("routing.scenario", string(req.Scenario)),
		attribute.Int("routing.k", req.K),
	)
	fail := func(err error) (*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	theta, err := s.learner.Weights(req.Scenario)
	if err != nil {
		return fail(err)
	}

	r := &run{}
	bbox := domain.BoxAround(s.opts.BBoxMarginDeg, req.Source, req.Destination)

	var (
		net       *network.Network
		incidents []domain.Incident
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.networks.Get(gctx, bbox)
		if err != nil {
			return graphUnavailable(err)
		}
		net = n
		return nil
	})
	g.Go(func() error {
		incs, err := s.incidents.Fetch(gctx, bbox, at.Add(-s.opts.Recency))
		if err != nil {
			if gctx.Err() != nil {
				return nil
			}
			// An unguarded store may still fail; route without incidents.
			s.logger.Warn("incident fetch failed", "error", err)
			return nil
		}
		incidents = incs
		return nil
	})
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	ref := s.refresh(ctx, net, incident.NewIndex(incidents), theta, at)
	if err := r.advance(StateWeightsRefreshed); err != nil {
		return fail(err)
	}

	src, err := net.NearestNode(req.Source)
	if err != nil {
		return fail(err)
	}
	dst, err := net.NearestNode(req.Destination)
	if err != nil {
		return fail(err)
	}
	if err := r.advance(StateNodesResolved); err != nil {
		return fail(err)
	}

	_, sspan := tracer.Start(ctx, "optimizer.search")
	weights := make([]float64, len(ref.costs))
	for i, c := range ref.costs {
		weights[i] = c.CombinedWeight
	}
	paths, err := search.FindKDiverse(ctx, net, src, dst, req.K, weights, s.heuristic(net, dst, theta), s.opts.Search)
	sspan.SetAttributes(attribute.Int("routing.paths", len(paths)))
	sspan.End()
	if err != nil {
		return fail(err)
	}
	if err := r.advance(StatePathsFound); err != nil {
		return fail(err)
	}

	res := &Result{
		Status:    StateNoRoute,
		Scenario:  req.Scenario,
		Departure: at,
		Weights:   theta,
		Incidents: len(incidents),
		Routes:    []Route{},
	}
	if len(paths) == 0 {
		if err := r.advance(StateNoRoute); err != nil {
			return fail(err)
		}
		span.SetAttributes(attribute.String("routing.status", res.Status.String()))
		s.logger.Info("no route", "scenario", req.Scenario, "src", src, "dst", dst)
		return res, nil
	}

	predicted := make([]float64, len(paths))
	for i, p := range paths {
		m := route.Compute(net, ref.costs, ref.incidents, p.Nodes)
		rt := Route{Index: i, Nodes: p.Nodes, Weight: p.Weight, Metrics: m}
		for _, pt := range net.PathPoints(p.Nodes) {
			rt.Points = append(rt.Points, domain.Coordinate{Lat: pt.Lat(), Lon: pt.Lon()})
		}
		rt.Polyline = geo.EncodePolyline(net.PathPoints(p.Nodes))
		res.Routes = append(res.Routes, rt)
		predicted[i] = m.TimeMinutes * 60
	}
	if s.opts.NearPath {
		s.attachNearPath(ctx, res.Routes)
	}
	if err := r.advance(StateMetricsComputed); err != nil {
		return fail(err)
	}

	sess := s.sessions.Create(Session{
		Scenario:   req.Scenario,
		Source:     req.Source,
		Dest:       req.Destination,
		Departure:  at,
		PredictedS: predicted,
	})
	res.SessionID = sess.ID
	if err := r.advance(StateResultReady); err != nil {
		return fail(err)
	}
	res.Status = r.state

	span.SetAttributes(attribute.String("routing.status", res.Status.String()))
	s.logger.Info("routes optimized",
		"session", sess.ID,
		"scenario", req.Scenario,
		"routes", len(res.Routes),
		"incidents", len(incidents),
		"best_minutes", res.Routes[0].Metrics.TimeMinutes,
	)
	return res, nil
}

// refresh prices every edge of net for theta at time at. The tables are
// owned by the caller; the network itself is never written.
func (s *Service) refresh(ctx context.Context, net *network.Network, idx *incident.Index, theta cost.Vector, at time.Time) refresh {
	_, span := tracer.Start(ctx, "optimizer.refresh")
	defer span.End()

	model := s.model(idx)
	edges := net.Edges()
	ref := refresh{
		costs:     make([]cost.EdgeCost, len(edges)),
		incidents: make([][]domain.Incident, len(edges)),
	}
	for _, e := range edges {
		tf := model.Factor(e, net.Midpoint(e), at)
		ref.costs[e.ID] = s.opts.Cost.Compute(e, tf.Factor, theta)
		ref.incidents[e.ID] = tf.Incidents
	}
	span.SetAttributes(attribute.Int("routing.edges", len(edges)))
	return ref
}

// heuristic scales the straight-line distance to dst by the cheapest
// possible weight per kilometre.
func (s *Service) heuristic(net *network.Network, dst network.NodeID, theta cost.Vector) search.Heuristic {
	target, _ := net.Node(dst)
	perKm := s.opts.Cost.MinWeightPerKm(theta)
	return func(from network.NodeID) float64 {
		n, ok := net.Node(from)
		if !ok {
			return 0
		}
		return geo.DistanceM(n.Point(), target.Point()) / 1000 * perKm
	}
}

func (s *Service) attachNearPath(ctx context.Context, routes []Route) {
	radius := s.opts.Traffic.RadiusM
	if radius <= 0 {
		radius = incident.DefaultRadiusM
	}
	found := fn.ParMap(ctx, routes, nearPathWorkers, func(ctx context.Context, r Route) []domain.Incident {
		if len(r.Points) == 0 {
			return nil
		}
		incs, err := s.incidents.NearPath(ctx, r.Points, radius)
		if err != nil {
			s.logger.Warn("near-path incidents unavailable", "route", r.Index, "error", err)
			return nil
		}
		return incs
	})
	for i := range routes {
		routes[i].NearbyIncidents = found[i]
	}
}

func graphUnavailable(err error) error {
	if errors.Is(err, domain.ErrGraphUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("optimizer: %v: %w", err, domain.ErrGraphUnavailable)
}

// FeedbackResult acknowledges a trip report.
type FeedbackResult struct {
	SessionID  string      `json:"session_id"`
	RouteIndex int         `json:"route_index"`
	PredictedS float64     `json:"predicted_seconds"`
	ActualS    float64     `json:"actual_seconds"`
	ErrorS     float64     `json:"error_seconds"`
	Adjusted   bool        `json:"adjusted"`
	Weights    cost.Vector `json:"weights"`
}

// ProcessTripFeedback scores the actual duration of the selected route of
// a session against its prediction and updates the scenario weights.
func (s *Service) ProcessTripFeedback(ctx context.Context, sessionID string, index int, actualMinutes float64) (*FeedbackResult, error) {
	if math.IsNaN(actualMinutes) || math.IsInf(actualMinutes, 0) || actualMinutes <= 0 {
		return nil, domain.NewValidationError("actual_minutes", fmt.Sprint(actualMinutes), domain.ErrInvalidFeedback)
	}
	sess, predicted, err := s.sessions.Complete(sessionID, index)
	if err != nil {
		return nil, err
	}
	actual := actualMinutes * 60
	u, err := s.learner.UpdateFromFeedback(sess.Scenario, predicted, actual)
	if err != nil {
		s.sessions.reopen(sessionID)
		return nil, err
	}
	if s.hooks.Feedback != nil {
		s.hooks.Feedback(sess.Scenario, u)
	}
	s.logger.Info("trip feedback",
		"session", sessionID,
		"scenario", sess.Scenario,
		"error_s", u.Feedback.ErrorS,
		"adjusted", u.Adjusted,
	)

	if s.events != nil {
		ev := TripFeedbackEvent{
			SessionID:   sessionID,
			Scenario:    sess.Scenario,
			RouteIndex:  index,
			Source:      sess.Source,
			Destination: sess.Dest,
			Departure:   sess.Departure,
			PredictedS:  predicted,
			ActualS:     actual,
			ErrorS:      u.Feedback.ErrorS,
			Adjusted:    u.Adjusted,
			Weights:     u.After,
			At:          u.Feedback.At,
		}
		if err := s.events.PublishFeedback(ctx, ev); err != nil {
			s.logger.Warn("publish trip feedback", "session", sessionID, "error", err)
		}
	}

	return &FeedbackResult{
		SessionID:  sessionID,
		RouteIndex: index,
		PredictedS: predicted,
		ActualS:    actual,
		ErrorS:     u.Feedback.ErrorS,
		Adjusted:   u.Adjusted,
		Weights:    u.After,
	}, nil
}
