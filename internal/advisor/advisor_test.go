package advisor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/arkilian/spacemeta/internal/catalog"
	"github.com/arkilian/spacemeta/internal/config"
	"github.com/arkilian/spacemeta/internal/observability"
	"github.com/arkilian/spacemeta/internal/schema"
	"github.com/arkilian/spacemeta/pkg/types"
)

func setup(t *testing.T) (*schema.Schema, *observability.QueryStats) {
	t.Helper()
	c, err := catalog.NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	s := schema.New(c)
	ctx := context.Background()
	task, err := s.CreateSpace(ctx, "task", types.Fields{
		types.F("id", types.TypeUnsigned),
		types.F("year", types.TypeUnsigned),
		types.F("month", types.TypeUnsigned),
		types.F("day", types.TypeUnsigned),
	})
	if err != nil {
		t.Fatalf("failed to create space: %v", err)
	}
	if err := task.AddIndex(ctx, "id"); err != nil {
		t.Fatalf("failed to add index: %v", err)
	}
	return s, observability.NewQueryStats(time.Hour)
}

func recordMisses(stats *observability.QueryStats, space string, fields []string, n int) {
	for i := 0; i < n; i++ {
		stats.RecordMiss(space, fields)
	}
}

// TestEvaluate_AboveThreshold verifies that only frequent, resolvable field
// sets become suggestions.
func TestEvaluate_AboveThreshold(t *testing.T) {
	s, stats := setup(t)
	recordMisses(stats, "task", []string{"year", "month"}, 5)
	recordMisses(stats, "task", []string{"day"}, 2)
	recordMisses(stats, "ghost", []string{"year"}, 9)
	recordMisses(stats, "task", []string{"colour"}, 9)

	a := New(s, stats, config.AdvisorConfig{Threshold: 3}, nil)
	suggestions, err := a.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d: %+v", len(suggestions), suggestions)
	}
	sg := suggestions[0]
	if sg.Space != "task" || sg.IndexName() != "year_month" || sg.Frequency != 5 {
		t.Errorf("unexpected suggestion %+v", sg)
	}

	// unknown spaces and properties are dropped from the statistics
	for _, miss := range stats.GetTopMisses(10) {
		if miss.Space == "ghost" || miss.Fields[0] == "colour" {
			t.Errorf("expected %s %v to be forgotten", miss.Space, miss.Fields)
		}
	}
}

// TestApply_CreatesNonUniqueIndex verifies that applying a suggestion makes
// the field set resolvable and clears its statistics.
func TestApply_CreatesNonUniqueIndex(t *testing.T) {
	s, stats := setup(t)
	ctx := context.Background()
	recordMisses(stats, "task", []string{"month", "year"}, 4)

	a := New(s, stats, config.AdvisorConfig{Threshold: 1}, nil)
	suggestions, err := a.Evaluate(ctx)
	if err != nil || len(suggestions) != 1 {
		t.Fatalf("expected one suggestion, got %v (err %v)", suggestions, err)
	}

	idx, err := a.Apply(ctx, suggestions[0])
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if idx.Unique || idx.Type != types.IndexTree || idx.Name != "month_year" {
		t.Errorf("unexpected index %+v", idx)
	}

	task, _ := s.GetSpace(ctx, "task")
	lookup, err := task.CastIndex(types.Eq("year", 2017).And("month", 1))
	if err != nil {
		t.Fatalf("expected filter to resolve after Apply: %v", err)
	}
	if lookup.Index.Name != "month_year" {
		t.Errorf("expected month_year, got %s", lookup.Index.Name)
	}

	if misses := stats.GetTopMisses(10); len(misses) != 0 {
		t.Errorf("expected statistics to be cleared, got %+v", misses)
	}

	// applying again reuses the index
	again, err := a.Apply(ctx, suggestions[0])
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if again.IID != idx.IID {
		t.Errorf("expected iid %d, got %d", idx.IID, again.IID)
	}
}

// TestEvaluate_CoveredFieldSet verifies that a field set covered by an index
// created after the misses is not suggested.
func TestEvaluate_CoveredFieldSet(t *testing.T) {
	s, stats := setup(t)
	ctx := context.Background()
	recordMisses(stats, "task", []string{"day"}, 10)

	task, _ := s.GetSpace(ctx, "task")
	if err := task.AddIndex(ctx, "day", "month"); err != nil {
		t.Fatalf("failed to add index: %v", err)
	}

	a := New(s, stats, config.AdvisorConfig{Threshold: 1}, nil)
	suggestions, err := a.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(suggestions) != 0 {
		t.Errorf("expected no suggestions, got %+v", suggestions)
	}
}

// TestEvaluate_MaxSuggestions verifies the suggestion cap.
func TestEvaluate_MaxSuggestions(t *testing.T) {
	s, stats := setup(t)
	recordMisses(stats, "task", []string{"year"}, 3)
	recordMisses(stats, "task", []string{"month"}, 2)
	recordMisses(stats, "task", []string{"day"}, 1)

	a := New(s, stats, config.AdvisorConfig{Threshold: 1, MaxSuggestions: 2}, nil)
	suggestions, err := a.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(suggestions))
	}
	if suggestions[0].Fields[0] != "year" || suggestions[1].Fields[0] != "month" {
		t.Errorf("expected most frequent first, got %+v", suggestions)
	}
}

// TestRun_AutoCreate verifies the background loop creates indexes.
func TestRun_AutoCreate(t *testing.T) {
	s, stats := setup(t)
	recordMisses(stats, "task", []string{"year"}, 3)

	a := New(s, stats, config.AdvisorConfig{
		Threshold:  2,
		Interval:   10 * time.Millisecond,
		AutoCreate: true,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		task, err := s.GetSpace(context.Background(), "task")
		if err != nil {
			t.Fatalf("GetSpace failed: %v", err)
		}
		if _, err := task.GetIndex("year"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("index was not created in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
}
