package snapshot

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/arkilian/spacemeta/internal/schema"
	"github.com/arkilian/spacemeta/internal/storage"
	"go.uber.org/zap"
)

const keySuffix = ".snap"

// Exporter writes snapshots of a schema to object storage. Keys sort in
// creation order.
type Exporter struct {
	schema *schema.Schema
	store  storage.ObjectStorage
	prefix string
	logger *zap.Logger
}

// NewExporter creates an exporter storing snapshots under prefix.
func NewExporter(s *schema.Schema, store storage.ObjectStorage, prefix string, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		schema: s,
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Export captures the schema and stores it. It returns the object key.
func (e *Exporter) Export(ctx context.Context) (string, *Snapshot, error) {
	snap, err := Capture(ctx, e.schema)
	if err != nil {
		return "", nil, err
	}
	data, err := Encode(snap)
	if err != nil {
		return "", nil, err
	}

	key := e.key(snap)
	if err := e.store.Put(ctx, key, data); err != nil {
		return "", nil, fmt.Errorf("snapshot: failed to store %s: %w", key, err)
	}
	e.logger.Info("snapshot exported",
		zap.String("key", key),
		zap.Int("spaces", len(snap.Spaces)),
		zap.Uint64("catalog_version", snap.CatalogVersion),
		zap.Int("bytes", len(data)))
	return key, snap, nil
}

// List returns the stored snapshot keys, oldest first.
func (e *Exporter) List(ctx context.Context) ([]string, error) {
	prefix := ""
	if e.prefix != "" {
		prefix = e.prefix + "/"
	}
	keys, err := e.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to list: %w", err)
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasSuffix(k, keySuffix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Latest returns the key of the most recent snapshot, or
// storage.ErrObjectNotFound when there is none.
func (e *Exporter) Latest(ctx context.Context) (string, error) {
	keys, err := e.List(ctx)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", storage.ErrObjectNotFound
	}
	return keys[len(keys)-1], nil
}

// Load reads and decodes a stored snapshot.
func (e *Exporter) Load(ctx context.Context, key string) (*Snapshot, error) {
	data, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to load %s: %w", key, err)
	}
	return Decode(data)
}

func (e *Exporter) key(snap *Snapshot) string {
	name := fmt.Sprintf("%020d-%s%s", snap.CreatedAt.UnixNano(), snap.ID, keySuffix)
	if e.prefix == "" {
		return name
	}
	return path.Join(e.prefix, name)
}
