// Package incident provides access to reported traffic incidents: the Store
// contract with Postgres, Elasticsearch and Qdrant backends, a guarded
// wrapper that degrades to "no incidents" on failure, and a grid index for
// proximity lookups.
package incident

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/wessley-routing/engine/domain"
	"github.com/WessleyAI/wessley-routing/pkg/resilience"
)

// DefaultRecency is how far back incidents are considered current.
const DefaultRecency = 24 * time.Hour

// Store queries a spatial incident dataset. Both methods return an empty
// slice, not an error, when nothing matches.
type Store interface {
	Fetch(ctx context.Context, bbox domain.BoundingBox, since time.Time) ([]domain.Incident, error)
	NearPath(ctx context.Context, path []domain.Coordinate, radiusM float64) ([]domain.Incident, error)
}

// Static is an in-memory Store over a fixed incident list.
type Static struct {
	Incidents []domain.Incident
}

// Fetch returns incidents inside bbox reported at or after since. Incidents
// without a report time are always included.
func (s Static) Fetch(_ context.Context, bbox domain.BoundingBox, since time.Time) ([]domain.Incident, error) {
	var out []domain.Incident
	for _, inc := range s.Incidents {
		if !bbox.Contains(inc.Position) {
			continue
		}
		if !inc.ReportedAt.IsZero() && inc.ReportedAt.Before(since) {
			continue
		}
		out = append(out, inc)
	}
	return out, nil
}

// NearPath returns incidents within radiusM of path.
func (s Static) NearPath(_ context.Context, path []domain.Coordinate, radiusM float64) ([]domain.Incident, error) {
	return FilterNearPath(s.Incidents, path, radiusM), nil
}

// GuardOptions configures Guarded.
type GuardOptions struct {
	Timeout time.Duration
	Breaker resilience.BreakerOpts
	Limiter resilience.LimiterOpts
	// OnDegrade, if set, is called with the cause whenever a query is
	// answered with no incidents because the backend failed.
	OnDegrade func(op string, err error)
}

// DefaultGuardOptions returns the defaults used by the routing API.
func DefaultGuardOptions() GuardOptions {
	return GuardOptions{
		Timeout: 2 * time.Second,
		Breaker: resilience.BreakerOpts{FailThreshold: 3, Timeout: 30 * time.Second, HalfOpenMax: 1},
		Limiter: resilience.LimiterOpts{Rate: 50, Burst: 20},
	}
}

// Guarded bounds every backend call with a timeout, a rate limit and a
// circuit breaker. Failures are logged and answered with an empty result,
// so route search proceeds without incident influence.
type Guarded struct {
	store   Store
	opts    GuardOptions
	breaker *resilience.Breaker
	limiter *resilience.Limiter
	logger  *slog.Logger
}

// NewGuarded wraps store.
func NewGuarded(store Store, opts GuardOptions, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultGuardOptions().Timeout
	}
	bopts := opts.Breaker
	bopts.OnStateChange = func(from, to resilience.State) {
		logger.Warn("incident store breaker", "from", from.String(), "to", to.String())
	}
	return &Guarded{
		store:   store,
		opts:    opts,
		breaker: resilience.NewBreaker(bopts),
		limiter: resilience.NewLimiter(opts.Limiter),
		logger:  logger,
	}
}

// BreakerState reports the breaker state, for health checks.
func (g *Guarded) BreakerState() resilience.State { return g.breaker.State() }

// Fetch implements Store. It never returns an error unless ctx itself was
// cancelled by the caller.
func (g *Guarded) Fetch(ctx context.Context, bbox domain.BoundingBox, since time.Time) ([]domain.Incident, error) {
	return g.guard(ctx, "fetch", func(ctx context.Context) ([]domain.Incident, error) {
		return g.store.Fetch(ctx, bbox, since)
	})
}

// NearPath implements Store with the same degradation as Fetch.
func (g *Guarded) NearPath(ctx context.Context, path []domain.Coordinate, radiusM float64) ([]domain.Incident, error) {
	return g.guard(ctx, "near_path", func(ctx context.Context) ([]domain.Incident, error) {
		return g.store.NearPath(ctx, path, radiusM)
	})
}

func (g *Guarded) guard(ctx context.Context, op string, f func(context.Context) ([]domain.Incident, error)) ([]domain.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !g.limiter.Allow() {
		return g.degrade(op, resilience.ErrRateLimited), nil
	}
	incidents, err := resilience.Do(ctx, g.breaker, func(ctx context.Context) ([]domain.Incident, error) {
		tctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
		return f(tctx)
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return g.degrade(op, err), nil
	}
	return incidents, nil
}

func (g *Guarded) degrade(op string, err error) []domain.Incident {
	err = fmt.Errorf("incident: %s: %v: %w", op, err, domain.ErrIncidentStoreUnavailable)
	g.logger.Warn("incident store degraded", "op", op, "error", err)
	if g.opts.OnDegrade != nil {
		g.opts.OnDegrade(op, err)
	}
	return []domain.Incident{}
}
