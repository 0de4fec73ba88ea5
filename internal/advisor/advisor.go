// Package advisor suggests indexes for filters the resolver could not serve,
// and optionally creates them.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arkilian/spacemeta/internal/config"
	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/internal/observability"
	"github.com/arkilian/spacemeta/internal/schema"
	"github.com/arkilian/spacemeta/pkg/types"
	"go.uber.org/zap"
)

// Suggestion is a proposed non-unique tree index on a missed field set.
type Suggestion struct {
	Space     string   `json:"space"`
	Fields    []string `json:"fields"`
	Frequency int64    `json:"frequency"`
}

// IndexName is the name the suggested index would get.
func (s Suggestion) IndexName() string {
	return schema.DefaultIndexName(s.Fields)
}

// Advisor turns resolution misses into index suggestions.
type Advisor struct {
	schema         *schema.Schema
	stats          *observability.QueryStats
	threshold      int64
	interval       time.Duration
	maxSuggestions int
	autoCreate     bool
	logger         *zap.Logger
	mu             sync.Mutex
}

// New creates an advisor reading misses from stats.
func New(s *schema.Schema, stats *observability.QueryStats, cfg config.AdvisorConfig, logger *zap.Logger) *Advisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Advisor{
		schema:         s,
		stats:          stats,
		threshold:      cfg.Threshold,
		interval:       cfg.Interval,
		maxSuggestions: cfg.MaxSuggestions,
		autoCreate:     cfg.AutoCreate,
		logger:         logger,
	}
	if a.threshold <= 0 {
		a.threshold = 1
	}
	if a.maxSuggestions <= 0 {
		a.maxSuggestions = 10
	}
	return a
}

// Run evaluates the statistics every interval until ctx is cancelled,
// creating the suggested indexes when auto-create is enabled.
func (a *Advisor) Run(ctx context.Context) {
	interval := a.interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.stats.Prune()
			if _, err := a.Tick(ctx); err != nil {
				a.logger.Warn("advisor: evaluation failed", zap.Error(err))
			}
		}
	}
}

// Tick runs one evaluation and, with auto-create, applies the suggestions.
// It returns the suggestions that were created, or all of them when
// auto-create is off.
func (a *Advisor) Tick(ctx context.Context) ([]Suggestion, error) {
	suggestions, err := a.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	if !a.autoCreate {
		for _, sg := range suggestions {
			a.logger.Info("advisor: index suggested",
				zap.String("space", sg.Space),
				zap.Strings("fields", sg.Fields),
				zap.Int64("misses", sg.Frequency))
		}
		return suggestions, nil
	}

	created := make([]Suggestion, 0, len(suggestions))
	for _, sg := range suggestions {
		if _, err := a.Apply(ctx, sg); err != nil {
			a.logger.Warn("advisor: failed to create index",
				zap.String("space", sg.Space),
				zap.Strings("fields", sg.Fields),
				zap.Error(err))
			continue
		}
		created = append(created, sg)
	}
	return created, nil
}

// Evaluate returns the missed field sets at or above the threshold that
// belong to an existing user space, name only existing properties, and are
// still not covered by any index. Most frequent first.
func (a *Advisor) Evaluate(ctx context.Context) ([]Suggestion, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var suggestions []Suggestion
	for _, miss := range a.stats.GetTopMisses(a.maxSuggestions + 10) {
		if miss.Frequency < a.threshold || len(suggestions) >= a.maxSuggestions {
			break
		}

		sp, err := a.schema.GetSpace(ctx, miss.Space)
		if err != nil {
			if apperrors.IsNotFound(err) {
				a.stats.ForgetMiss(miss.Space, miss.Fields)
				continue
			}
			return nil, fmt.Errorf("advisor: failed to load space %s: %w", miss.Space, err)
		}
		if sp.IsSystem() || !hasAll(sp, miss.Fields) {
			a.stats.ForgetMiss(miss.Space, miss.Fields)
			continue
		}
		if _, err := sp.MatchIndex(fieldsFilter(miss.Fields)); err == nil {
			// covered by an index created since the misses were recorded
			a.stats.ForgetMiss(miss.Space, miss.Fields)
			continue
		}

		suggestions = append(suggestions, Suggestion{
			Space:     miss.Space,
			Fields:    miss.Fields,
			Frequency: miss.Frequency,
		})
		observability.AdvisorActions.WithLabelValues("suggested").Inc()
	}
	return suggestions, nil
}

// Apply creates the suggested index and clears its statistics.
func (a *Advisor) Apply(ctx context.Context, sg Suggestion) (*schema.Index, error) {
	sp, err := a.schema.GetSpace(ctx, sg.Space)
	if err != nil {
		return nil, err
	}

	idx, err := sp.CreateIndex(ctx, schema.On(sg.Fields...).NonUnique())
	if err != nil {
		if !errors.Is(err, apperrors.ErrDuplicateIndex) {
			return nil, err
		}
		// the same field sequence may already exist under another name
		if existing, matchErr := sp.MatchIndex(fieldsFilter(sg.Fields)); matchErr == nil {
			a.stats.ForgetMiss(sg.Space, sg.Fields)
			return existing, nil
		}
		return nil, err
	}

	a.stats.ForgetMiss(sg.Space, sg.Fields)
	observability.AdvisorActions.WithLabelValues("created").Inc()
	a.logger.Info("advisor: index created",
		zap.String("space", sg.Space),
		zap.String("index", idx.Name),
		zap.Int64("misses", sg.Frequency))
	return idx, nil
}

func hasAll(sp *schema.Space, fields []string) bool {
	for _, f := range fields {
		if !sp.HasProperty(f) {
			return false
		}
	}
	return true
}

// fieldsFilter builds a filter naming fields, for index matching only.
func fieldsFilter(fields []string) types.Filter {
	f := make(types.Filter, len(fields))
	for i, name := range fields {
		f[i] = types.Term{Field: name}
	}
	return f
}
