// Package schema implements the space registry: spaces with their ordered
// properties and indexes, the resolver that maps equality filters onto
// indexes, and the once-migration ledger.
package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/arkilian/spacemeta/internal/catalog"
	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/internal/notify"
	"github.com/arkilian/spacemeta/internal/observability"
	"github.com/arkilian/spacemeta/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Names of the system spaces.
const (
	SpaceSpaceName  = "_space"
	IndexSpaceName  = "_index"
	SchemaSpaceName = "_schema"
)

// Schema is the entry point to the spaces of one catalog. Spaces are loaded
// lazily and cached; the cache is only refreshed on request.
type Schema struct {
	catalog  catalog.Catalog
	logger   *zap.Logger
	instance string
	system   map[string]*Space
	cache    *spaceCache
	notifier *notify.Notifier
}

// Option configures a Schema.
type Option func(*Schema)

// WithLogger sets the logger used for schema changes.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Schema) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier publishes every schema change to n.
func WithNotifier(n *notify.Notifier) Option {
	return func(s *Schema) {
		s.notifier = n
	}
}

// New returns a Schema backed by the given catalog.
func New(c catalog.Catalog, opts ...Option) *Schema {
	s := &Schema{
		catalog:  c,
		logger:   zap.NewNop(),
		instance: uuid.NewString(),
		cache:    newSpaceCache(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("schema", s.instance))
	s.system = systemSpaces()
	return s
}

// Instance returns the random id of this Schema, used in ledger records.
func (s *Schema) Instance() string {
	return s.instance
}

// Catalog returns the underlying catalog.
func (s *Schema) Catalog() catalog.Catalog {
	return s.catalog
}

// CreateSpace creates a space with the given properties in order.
func (s *Schema) CreateSpace(ctx context.Context, name string, fields types.Fields) (*Space, error) {
	space, err := s.createSpace(ctx, name, fields)
	observability.SchemaMutations.WithLabelValues("create_space", result(err)).Inc()
	return space, err
}

func (s *Schema) createSpace(ctx context.Context, name string, fields types.Fields) (*Space, error) {
	if name == "" {
		return nil, apperrors.NewInvalidArgument("space name must not be empty")
	}
	if _, ok := s.system[name]; ok {
		return nil, apperrors.NewSpaceExists(name)
	}

	props := NewPropertyRegistry(name)
	for _, f := range fields {
		if err := props.Add(f.Name, f.Type); err != nil {
			return nil, err
		}
	}

	before := s.cache.versionBefore(ctx, s.catalog)
	id, err := s.catalog.CreateSpaceEntry(ctx, name, props.Defs())
	if errors.Is(err, catalog.ErrSpaceExists) {
		return nil, apperrors.NewSpaceExists(name)
	}
	if err != nil {
		return nil, fmt.Errorf("create space %s: %w", name, err)
	}
	s.cache.ownChange(ctx, s.catalog, before)

	space, err := newSpace(types.SpaceDef{ID: id, Name: name, Format: props.Defs()}, nil, s)
	if err != nil {
		return nil, err
	}
	s.cache.put(space)
	s.publish(notify.SpaceCreated, name, id, space.Generation())
	s.logger.Info("space created",
		zap.String("space", name), zap.Uint32("id", id), zap.Strings("properties", fields.Names()))
	return space, nil
}

// DropSpace removes a space and its indexes. Ledger keys are not touched.
func (s *Schema) DropSpace(ctx context.Context, name string) error {
	err := s.dropSpace(ctx, name)
	observability.SchemaMutations.WithLabelValues("drop_space", result(err)).Inc()
	return err
}

func (s *Schema) dropSpace(ctx context.Context, name string) error {
	if _, ok := s.system[name]; ok {
		return apperrors.NewConstraint(fmt.Sprintf("Space %s is read-only", name))
	}
	space, err := s.GetSpace(ctx, name)
	if err != nil {
		return err
	}

	before := s.cache.versionBefore(ctx, s.catalog)
	err = s.catalog.DropSpaceEntry(ctx, space.ID())
	if errors.Is(err, catalog.ErrSpaceNotFound) {
		s.cache.invalidate(name)
		return apperrors.NewNotFound("space", name)
	}
	if err != nil {
		return fmt.Errorf("drop space %s: %w", name, err)
	}
	s.cache.ownChange(ctx, s.catalog, before)
	s.cache.invalidate(name)
	s.publish(notify.SpaceDropped, name, space.ID(), space.Generation())
	s.logger.Info("space dropped", zap.String("space", name))
	return nil
}

// GetSpace returns the named space, loading it from the catalog on first use.
func (s *Schema) GetSpace(ctx context.Context, name string) (*Space, error) {
	if name == "" {
		return nil, apperrors.NewNotFound("space", `""`)
	}
	if space, ok := s.system[name]; ok {
		return space, nil
	}
	if space, ok := s.cache.get(name); ok {
		return space, nil
	}

	v, err, _ := s.cache.group.Do(name, func() (interface{}, error) {
		if space, ok := s.cache.get(name); ok {
			return space, nil
		}
		version := s.cache.versionBefore(ctx, s.catalog)
		space, err := s.loadSpace(ctx, name)
		if err != nil {
			return nil, err
		}
		s.cache.put(space)
		s.cache.observeLoad(version)
		return space, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Space), nil
}

func (s *Schema) loadSpace(ctx context.Context, name string) (*Space, error) {
	def, err := s.catalog.GetSpaceByName(ctx, name)
	if errors.Is(err, catalog.ErrSpaceNotFound) {
		return nil, apperrors.NewNotFound("space", name)
	}
	if err != nil {
		return nil, fmt.Errorf("load space %s: %w", name, err)
	}
	return s.buildSpace(ctx, *def)
}

func (s *Schema) buildSpace(ctx context.Context, def types.SpaceDef) (*Space, error) {
	indexes, err := s.catalog.ListIndexesForSpace(ctx, def.ID)
	if err != nil {
		return nil, fmt.Errorf("load indexes of %s: %w", def.Name, err)
	}
	space, err := newSpace(def, indexes, s)
	if err != nil {
		return nil, err
	}
	observability.SpaceLoads.Inc()
	s.logger.Debug("space loaded",
		zap.String("space", def.Name), zap.Int("properties", len(def.Format)), zap.Int("indexes", len(indexes)))
	return space, nil
}

// HasSpace reports whether the named space exists.
func (s *Schema) HasSpace(ctx context.Context, name string) (bool, error) {
	_, err := s.GetSpace(ctx, name)
	if apperrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Spaces returns every user space ordered by id. Cached spaces are reused.
func (s *Schema) Spaces(ctx context.Context) ([]*Space, error) {
	version := s.cache.versionBefore(ctx, s.catalog)
	defs, err := s.catalog.ListSpaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	out := make([]*Space, 0, len(defs))
	for _, def := range defs {
		if space, ok := s.cache.get(def.Name); ok && space.ID() == def.ID {
			out = append(out, space)
			continue
		}
		space, err := s.buildSpace(ctx, def)
		if err != nil {
			return nil, err
		}
		s.cache.put(space)
		out = append(out, space)
	}
	s.cache.observeLoad(version)
	return out, nil
}

// SystemSpaces returns the read-only system spaces ordered by id.
func (s *Schema) SystemSpaces() []*Space {
	out := make([]*Space, 0, len(s.system))
	for _, space := range s.system {
		out = append(out, space)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Refresh drops every cached space and reloads all of them from the
// catalog. Spaces obtained before the call keep their old state.
func (s *Schema) Refresh(ctx context.Context) error {
	version, err := s.catalog.Version(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	defs, err := s.catalog.ListSpaces(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	spaces := make(map[string]*Space, len(defs))
	for _, def := range defs {
		space, err := s.buildSpace(ctx, def)
		if err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
		spaces[def.Name] = space
	}
	s.cache.replace(spaces, version)
	s.publish(notify.Refreshed, "", 0, 0)
	s.logger.Info("schema refreshed", zap.Int("spaces", len(spaces)), zap.Uint64("version", version))
	return nil
}

func (s *Schema) publish(t notify.ChangeType, space string, id uint32, generation uint64) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(notify.Change{Type: t, Space: space, SpaceID: id, Generation: generation})
}

// Invalidate drops one space from the cache; the next GetSpace reloads it.
func (s *Schema) Invalidate(name string) {
	s.cache.invalidate(name)
}

// Stale reports whether the catalog changed since this Schema last looked,
// other than through this Schema's own mutations.
func (s *Schema) Stale(ctx context.Context) (bool, error) {
	version, err := s.catalog.Version(ctx)
	if err != nil {
		return false, fmt.Errorf("stale check: %w", err)
	}
	seen, known := s.cache.seenVersion()
	if !known {
		return false, nil
	}
	return version != seen, nil
}

// spaceCache maps names to loaded spaces and tracks the catalog version
// those spaces correspond to.
type spaceCache struct {
	mu     sync.RWMutex
	spaces map[string]*Space
	seen   uint64
	known  bool
	group  singleflight.Group
}

func newSpaceCache() *spaceCache {
	return &spaceCache{spaces: make(map[string]*Space)}
}

func (c *spaceCache) get(name string) (*Space, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	space, ok := c.spaces[name]
	return space, ok
}

func (c *spaceCache) put(space *Space) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spaces[space.Name()] = space
}

func (c *spaceCache) invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.spaces, name)
}

func (c *spaceCache) replace(spaces map[string]*Space, version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spaces = spaces
	c.seen = version
	c.known = true
}

// observeLoad pins the seen version on the first load from the catalog.
func (c *spaceCache) observeLoad(version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.known {
		c.seen = version
		c.known = true
	}
}

func (c *spaceCache) seenVersion() (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seen, c.known
}

// versionBefore reads the catalog version ahead of a mutation.
func (c *spaceCache) versionBefore(ctx context.Context, cat catalog.Catalog) uint64 {
	v, err := cat.Version(ctx)
	if err != nil {
		return 0
	}
	return v
}

// ownChange advances the seen version past a mutation made through this
// Schema, unless the catalog had already moved on without us. A Schema that
// has not loaded anything yet adopts the new version.
func (c *spaceCache) ownChange(ctx context.Context, cat catalog.Catalog, before uint64) {
	after, err := cat.Version(ctx)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.known || c.seen == before {
		c.seen = after
		c.known = true
	}
}
