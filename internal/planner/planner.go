// Package planner puts a plan cache and instrumentation in front of the
// space resolver. A plan is the index chosen for a filter field set; the
// values are bound and cast on every call.
package planner

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/internal/notify"
	"github.com/arkilian/spacemeta/internal/observability"
	"github.com/arkilian/spacemeta/internal/schema"
	"github.com/arkilian/spacemeta/pkg/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultCacheSize is used when a non-positive cache size is given.
const DefaultCacheSize = 1024

// planKey identifies a plan. The generation changes with every shape change
// of a space, so plans of an older shape are never returned.
type planKey struct {
	space      uint32
	generation uint64
	fields     string
}

// Resolver resolves filters against the spaces of a schema.
type Resolver struct {
	schema *schema.Schema
	plans  *lru.Cache[planKey, *schema.Index] // nil value: no index covers the field set
	stats  *observability.QueryStats
	logger *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStats records hits and misses into stats.
func WithStats(stats *observability.QueryStats) Option {
	return func(r *Resolver) {
		r.stats = stats
	}
}

// WithLogger sets the logger used for resolution misses.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a resolver over s holding up to cacheSize plans.
func NewResolver(s *schema.Schema, cacheSize int, opts ...Option) (*Resolver, error) {
	if s == nil {
		return nil, apperrors.NewInvalidArgument("planner: nil schema")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	plans, err := lru.New[planKey, *schema.Index](cacheSize)
	if err != nil {
		return nil, apperrors.NewInternalError("planner: failed to create plan cache", err)
	}

	r := &Resolver{
		schema: s,
		plans:  plans,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve looks up the named space and resolves filter against it.
func (r *Resolver) Resolve(ctx context.Context, space string, filter types.Filter) (*schema.Lookup, error) {
	sp, err := r.schema.GetSpace(ctx, space)
	if err != nil {
		return nil, err
	}
	return r.ResolveSpace(sp, filter)
}

// ResolveSpace resolves filter against sp, reusing the cached plan for the
// filter's field set when the space has not changed since.
func (r *Resolver) ResolveSpace(sp *schema.Space, filter types.Filter) (*schema.Lookup, error) {
	start := time.Now()
	defer func() {
		observability.ResolveDuration.Observe(time.Since(start).Seconds())
	}()

	key := planKey{
		space:      sp.ID(),
		generation: sp.Generation(),
		fields:     fieldSetKey(filter),
	}

	idx, cached := r.plans.Get(key)
	if cached {
		observability.PlanCache.WithLabelValues("hit").Inc()
	} else {
		observability.PlanCache.WithLabelValues("miss").Inc()
		var err error
		idx, err = sp.MatchIndex(filter)
		switch {
		case err == nil:
			r.plans.Add(key, idx)
		case errors.Is(err, apperrors.ErrNoMatchingIndex):
			r.plans.Add(key, nil)
		default:
			observability.Resolutions.WithLabelValues("invalid").Inc()
			return nil, err
		}
	}

	if idx == nil {
		fields := filter.Fields()
		observability.Resolutions.WithLabelValues("miss").Inc()
		if r.stats != nil {
			r.stats.RecordMiss(sp.Name(), fields)
		}
		r.logger.Debug("no index for filter",
			zap.String("space", sp.Name()),
			zap.Strings("fields", fields),
			zap.Bool("cached", cached))
		return nil, apperrors.NewNoMatchingIndex(sp.Name(), fields)
	}

	lookup, err := sp.Bind(idx, filter)
	if err != nil {
		if errors.Is(err, apperrors.ErrCastFailed) {
			observability.Resolutions.WithLabelValues("cast_error").Inc()
		} else {
			observability.Resolutions.WithLabelValues("invalid").Inc()
		}
		return nil, err
	}

	outcome := "partial"
	if lookup.Full() {
		outcome = "full"
	}
	observability.Resolutions.WithLabelValues(outcome).Inc()
	if r.stats != nil {
		r.stats.RecordLookup(sp.Name(), idx.Name, lookup.Full())
	}
	return lookup, nil
}

// Watch drops the plans that schema changes make unreachable, until ctx is
// done or ch is closed. Plans of altered spaces age out through their
// generation; dropped spaces and refreshes are removed eagerly.
func (r *Resolver) Watch(ctx context.Context, ch <-chan notify.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			switch c.Type {
			case notify.SpaceDropped:
				n := r.forgetSpace(c.SpaceID)
				r.logger.Debug("plans dropped", zap.String("space", c.Space), zap.Int("plans", n))
			case notify.Refreshed:
				r.Purge()
			}
		}
	}
}

func (r *Resolver) forgetSpace(id uint32) int {
	n := 0
	for _, k := range r.plans.Keys() {
		if k.space == id && r.plans.Remove(k) {
			n++
		}
	}
	return n
}

// Stats returns the statistics the resolver records into, or nil.
func (r *Resolver) Stats() *observability.QueryStats {
	return r.stats
}

// Len returns the number of cached plans.
func (r *Resolver) Len() int {
	return r.plans.Len()
}

// Purge drops every cached plan.
func (r *Resolver) Purge() {
	r.plans.Purge()
}

func fieldSetKey(filter types.Filter) string {
	fields := filter.Fields()
	sort.Strings(fields)
	return strings.Join(fields, "\x00")
}
