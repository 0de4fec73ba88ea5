package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arkilian/spacemeta/internal/catalog"
	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// onceKeyPrefix is prepended to migration names in the _schema area.
const onceKeyPrefix = "once"

// Migration is a schema change that must run at most once per catalog.
type Migration interface {
	Apply(ctx context.Context, s *Schema) error
}

// MigrationFunc adapts a function to Migration.
type MigrationFunc func(ctx context.Context, s *Schema) error

// Apply calls f.
func (f MigrationFunc) Apply(ctx context.Context, s *Schema) error {
	return f(ctx, s)
}

// OnceRecord is the ledger entry written after a migration succeeds.
type OnceRecord struct {
	AppliedAt time.Time `json:"applied_at"`
	RunID     string    `json:"run_id"`
	Instance  string    `json:"instance"`
}

// Once applies m unless key is already in the ledger, and records key after
// m succeeds. It reports whether m ran. A failed migration is not recorded,
// so the next call retries it.
func (s *Schema) Once(ctx context.Context, key string, m Migration) (bool, error) {
	if key == "" {
		return false, apperrors.NewInvalidArgument("once key must not be empty")
	}
	if m == nil {
		return false, apperrors.NewInvalidArgument("once " + key + ": nil migration")
	}

	ledgerKey := onceKeyPrefix + key
	_, err := s.catalog.GetKey(ctx, ledgerKey)
	if err == nil {
		observability.OnceRuns.WithLabelValues("skipped").Inc()
		s.logger.Debug("once skipped", zap.String("key", key))
		return false, nil
	}
	if !errors.Is(err, catalog.ErrKeyNotFound) {
		return false, fmt.Errorf("once %s: %w", key, err)
	}

	if err := m.Apply(ctx, s); err != nil {
		observability.OnceRuns.WithLabelValues("failed").Inc()
		s.logger.Warn("once migration failed", zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("once %s: %w", key, err)
	}

	record, err := json.Marshal(OnceRecord{
		AppliedAt: time.Now().UTC(),
		RunID:     uuid.NewString(),
		Instance:  s.instance,
	})
	if err != nil {
		return true, fmt.Errorf("once %s: failed to marshal record: %w", key, err)
	}
	if err := s.catalog.PutKey(ctx, ledgerKey, record); err != nil {
		return true, fmt.Errorf("once %s: migration applied but not recorded: %w", key, err)
	}

	observability.OnceRuns.WithLabelValues("applied").Inc()
	s.logger.Info("once applied", zap.String("key", key))
	return true, nil
}

// ForgetOnce removes key from the ledger and reports whether it was there.
func (s *Schema) ForgetOnce(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, apperrors.NewInvalidArgument("once key must not be empty")
	}
	existed, err := s.catalog.DeleteKey(ctx, onceKeyPrefix+key)
	if err != nil {
		return false, fmt.Errorf("forget once %s: %w", key, err)
	}
	if existed {
		s.logger.Info("once forgotten", zap.String("key", key))
	}
	return existed, nil
}

// OnceKeys lists the keys recorded in the ledger.
func (s *Schema) OnceKeys(ctx context.Context) ([]string, error) {
	keys, err := s.catalog.ListKeys(ctx, onceKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list once keys: %w", err)
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.TrimPrefix(k, onceKeyPrefix)
	}
	return out, nil
}

// OnceRecordOf returns the ledger entry for key.
func (s *Schema) OnceRecordOf(ctx context.Context, key string) (*OnceRecord, error) {
	data, err := s.catalog.GetKey(ctx, onceKeyPrefix+key)
	if errors.Is(err, catalog.ErrKeyNotFound) {
		return nil, apperrors.NewNotFound("once key", key)
	}
	if err != nil {
		return nil, fmt.Errorf("once %s: %w", key, err)
	}
	var record OnceRecord
	if len(data) > 0 {
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("once %s: failed to unmarshal record: %w", key, err)
		}
	}
	return &record, nil
}
