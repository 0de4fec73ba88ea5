// Package observability provides resolution statistics for the index advisor
// and the prometheus metrics exported by spacemeta.
package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// QueryStats tracks which filters found an index and which did not.
type QueryStats struct {
	mu      sync.RWMutex
	misses  map[string]*FieldSetStats
	lookups map[string]*IndexStats
	window  time.Duration
}

// FieldSetStats holds statistics for a filter field set that no index covered.
type FieldSetStats struct {
	Space     string
	Fields    []string // order of the first occurrence
	Frequency int64
	LastSeen  time.Time
}

// IndexStats holds statistics for an index chosen by the resolver.
type IndexStats struct {
	Space     string
	Index     string
	Frequency int64
	Partial   int64 // lookups on a key prefix only
	LastSeen  time.Time
}

// NewQueryStats creates a new statistics tracker.
// window: time duration for pruning old entries (e.g., 1 hour)
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		misses:  make(map[string]*FieldSetStats),
		lookups: make(map[string]*IndexStats),
		window:  window,
	}
}

// fieldSetKey identifies a field set independently of order.
func fieldSetKey(space string, fields []string) string {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	return space + "\x00" + strings.Join(sorted, "\x00")
}

// RecordMiss records a filter on space that no index covered.
// This method is O(len(fields)) and thread-safe.
func (q *QueryStats) RecordMiss(space string, fields []string) {
	key := fieldSetKey(space, fields)

	q.mu.Lock()
	defer q.mu.Unlock()

	stats, exists := q.misses[key]
	if !exists {
		stats = &FieldSetStats{
			Space:  space,
			Fields: append([]string(nil), fields...),
		}
		q.misses[key] = stats
	}
	stats.Frequency++
	stats.LastSeen = time.Now()
}

// RecordLookup records a successful resolution onto index.
func (q *QueryStats) RecordLookup(space, index string, full bool) {
	key := space + "\x00" + index

	q.mu.Lock()
	defer q.mu.Unlock()

	stats, exists := q.lookups[key]
	if !exists {
		stats = &IndexStats{Space: space, Index: index}
		q.lookups[key] = stats
	}
	stats.Frequency++
	if !full {
		stats.Partial++
	}
	stats.LastSeen = time.Now()
}

// ForgetMiss drops the statistics of a field set, e.g. once it got an index.
func (q *QueryStats) ForgetMiss(space string, fields []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.misses, fieldSetKey(space, fields))
}

// GetTopMisses returns the top N missed field sets by frequency.
// Returns copies sorted by frequency (descending).
func (q *QueryStats) GetTopMisses(n int) []FieldSetStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if n <= 0 || len(q.misses) == 0 {
		return []FieldSetStats{}
	}

	stats := make([]FieldSetStats, 0, len(q.misses))
	for _, s := range q.misses {
		cp := *s
		cp.Fields = append([]string(nil), s.Fields...)
		stats = append(stats, cp)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return fieldSetKey(stats[i].Space, stats[i].Fields) < fieldSetKey(stats[j].Space, stats[j].Fields)
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// GetTopIndexes returns the top N chosen indexes by frequency.
func (q *QueryStats) GetTopIndexes(n int) []IndexStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if n <= 0 || len(q.lookups) == 0 {
		return []IndexStats{}
	}

	stats := make([]IndexStats, 0, len(q.lookups))
	for _, s := range q.lookups {
		stats = append(stats, *s)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		if stats[i].Space != stats[j].Space {
			return stats[i].Space < stats[j].Space
		}
		return stats[i].Index < stats[j].Index
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries where time.Since(LastSeen) > window.
// This should be called periodically (e.g., every 5 minutes).
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := time.Now().Add(-q.window)

	for key, stats := range q.misses {
		if stats.LastSeen.Before(threshold) {
			delete(q.misses, key)
		}
	}
	for key, stats := range q.lookups {
		if stats.LastSeen.Before(threshold) {
			delete(q.lookups, key)
		}
	}
}
