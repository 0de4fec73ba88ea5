package observability

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "spacemeta"

var (
	// SchemaMutations counts schema changes by operation and result.
	SchemaMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "schema",
		Name:      "mutations_total",
		Help:      "Schema changes by operation and result.",
	}, []string{"op", "result"})

	// SpaceLoads counts spaces loaded from the catalog.
	SpaceLoads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "schema",
		Name:      "space_loads_total",
		Help:      "Spaces loaded from the catalog into a schema cache.",
	})

	// OnceRuns counts once-ledger outcomes.
	OnceRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "schema",
		Name:      "once_total",
		Help:      "Once migrations by outcome (applied, skipped, failed).",
	}, []string{"result"})

	// Resolutions counts resolver outcomes.
	Resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "resolutions_total",
		Help:      "Filter resolutions by outcome (full, partial, miss, cast_error, invalid).",
	}, []string{"outcome"})

	// PlanCache counts resolver plan cache lookups.
	PlanCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "plan_cache_total",
		Help:      "Plan cache lookups by result (hit, miss).",
	}, []string{"result"})

	// ResolveDuration observes resolution latency.
	ResolveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "resolve_duration_seconds",
		Help:      "Time spent resolving a filter to an index.",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
	})

	// AdvisorActions counts index advisor actions by type.
	AdvisorActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "advisor",
		Name:      "actions_total",
		Help:      "Index advisor suggestions and created indexes.",
	}, []string{"action"})
)

// Collectors returns every spacemeta collector.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		SchemaMutations, SpaceLoads, OnceRuns,
		Resolutions, PlanCache, ResolveDuration,
		AdvisorActions,
	}
}

// Register adds the spacemeta collectors to reg. Collectors that are
// already registered are left as they are.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
