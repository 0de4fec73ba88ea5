package schema

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arkilian/spacemeta/internal/catalog"
	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/internal/notify"
	"github.com/arkilian/spacemeta/internal/observability"
	"github.com/arkilian/spacemeta/pkg/types"
	"go.uber.org/zap"
)

// generations hands out a new value for every space shape change, so that
// anything derived from a shape can be keyed on it.
var generations atomic.Uint64

// Space is a named collection with one property registry and one index
// registry. Mutations are persisted to the catalog before they take effect
// in memory. Reads are safe for concurrent use.
type Space struct {
	mu         sync.RWMutex
	id         uint32
	name       string
	system     bool
	props      *PropertyRegistry
	indexes    *IndexRegistry
	generation uint64

	catalog catalog.Catalog
	owner   *Schema
	logger  *zap.Logger
}

func newSpace(def types.SpaceDef, indexDefs []types.IndexDef, owner *Schema) (*Space, error) {
	props, err := loadPropertyRegistry(def.Name, def.Format)
	if err != nil {
		return nil, err
	}
	indexes, err := loadIndexRegistry(def.Name, indexDefs, props)
	if err != nil {
		return nil, err
	}
	s := &Space{
		id:         def.ID,
		name:       def.Name,
		props:      props,
		indexes:    indexes,
		generation: generations.Add(1),
		owner:      owner,
		logger:     zap.NewNop(),
	}
	if owner != nil {
		s.catalog = owner.catalog
		s.logger = owner.logger
	}
	return s, nil
}

// ID returns the catalog id of the space.
func (s *Space) ID() uint32 {
	return s.id
}

// Name returns the space name as stored.
func (s *Space) Name() string {
	return s.name
}

// IsSystem reports whether this is one of the read-only system spaces.
func (s *Space) IsSystem() bool {
	return s.system
}

// Generation changes whenever the properties or indexes of the space change.
func (s *Space) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// HasProperty reports whether the space has the named property.
func (s *Space) HasProperty(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.props.Has(name)
}

// GetPropertyType returns the type of the named property.
func (s *Space) GetPropertyType(name string) (types.PropertyType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.props.Type(name)
}

// GetProperty returns the definition of the named property.
func (s *Space) GetProperty(name string) (types.PropertyDef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.props.Get(name)
}

// GetProperties returns the property definitions in ordinal order.
func (s *Space) GetProperties() []types.PropertyDef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.props.Defs()
}

// GetFormat returns the store-facing format.
func (s *Space) GetFormat() []types.FormatField {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.props.Format()
}

// GetIndexes returns the indexes in iid order.
func (s *Space) GetIndexes() []*Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexes.All()
}

// GetIndex returns the named index.
func (s *Space) GetIndex(name string) (*Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes.ByName(name)
	if !ok {
		return nil, apperrors.NewNotFound("index", name)
	}
	return idx, nil
}

// Def returns the catalog record of the space.
func (s *Space) Def() types.SpaceDef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.SpaceDef{ID: s.id, Name: s.name, Format: s.props.Defs()}
}

// IndexDefs returns the catalog records of the indexes in iid order.
func (s *Space) IndexDefs() []types.IndexDef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	defs := make([]types.IndexDef, 0, s.indexes.Len())
	for _, idx := range s.indexes.All() {
		defs = append(defs, idx.Def())
	}
	return defs
}

// AddProperty appends a property to the format.
func (s *Space) AddProperty(ctx context.Context, name string, typ types.PropertyType, opts ...PropertyOption) error {
	return s.mutate(ctx, "add_property", func() error {
		next := s.props.clone()
		if err := next.Add(name, typ, opts...); err != nil {
			return err
		}
		if err := s.catalog.SetSpaceFormat(ctx, s.id, next.Defs()); err != nil {
			return s.catalogError(err)
		}
		s.props = next
		s.logger.Info("property added",
			zap.String("space", s.name), zap.String("property", name), zap.String("type", string(typ)))
		return nil
	})
}

// RemoveProperty deletes a property. It is rejected while an index uses the
// property or any property after it, since index parts hold ordinals.
func (s *Space) RemoveProperty(ctx context.Context, name string) error {
	return s.mutate(ctx, "remove_property", func() error {
		ord, ok := s.props.Ordinal(name)
		if !ok {
			return apperrors.NewNotFound("property", name)
		}
		for _, idx := range s.indexes.All() {
			for i, part := range idx.Parts {
				switch {
				case int(part.Field) == ord:
					return apperrors.NewConstraint(
						fmt.Sprintf("Property %s is used by index %s on %s", name, idx.Name, s.name), name)
				case int(part.Field) > ord:
					return apperrors.NewConstraint(
						fmt.Sprintf("Removing %s would shift %s used by index %s on %s", name, idx.Fields[i], idx.Name, s.name),
						name, idx.Fields[i])
				}
			}
		}

		next := s.props.clone()
		if err := next.Remove(name); err != nil {
			return err
		}
		if err := s.catalog.SetSpaceFormat(ctx, s.id, next.Defs()); err != nil {
			return s.catalogError(err)
		}
		s.props = next
		s.logger.Info("property removed", zap.String("space", s.name), zap.String("property", name))
		return nil
	})
}

// SetPropertyNullable changes whether a property accepts nil.
func (s *Space) SetPropertyNullable(ctx context.Context, name string, nullable bool) error {
	return s.mutate(ctx, "set_nullable", func() error {
		next := s.props.clone()
		if err := next.SetNullable(name, nullable); err != nil {
			return err
		}
		if err := s.catalog.SetSpaceFormat(ctx, s.id, next.Defs()); err != nil {
			return s.catalogError(err)
		}
		s.props = next
		s.logger.Info("property nullability changed",
			zap.String("space", s.name), zap.String("property", name), zap.Bool("nullable", nullable))
		return nil
	})
}

// CreateIndex creates an index from spec and returns it with its iid.
func (s *Space) CreateIndex(ctx context.Context, spec IndexSpec) (*Index, error) {
	var created *Index
	err := s.mutate(ctx, "create_index", func() error {
		idx, err := s.indexes.prepare(spec, s.props)
		if err != nil {
			return err
		}
		iid, err := s.catalog.CreateIndexEntry(ctx, s.id, idx.Def())
		if errors.Is(err, catalog.ErrIndexExists) {
			return apperrors.NewDuplicateIndex(s.name, idx.Name, idx.Fields)
		}
		if err != nil {
			return s.catalogError(err)
		}
		idx.IID = iid
		s.indexes.add(idx)
		created = idx
		s.logger.Info("index created",
			zap.String("space", s.name), zap.String("index", idx.Name),
			zap.Uint32("iid", iid), zap.Strings("fields", idx.Fields))
		return nil
	})
	return created, err
}

// AddIndex creates a unique tree index over the given fields.
func (s *Space) AddIndex(ctx context.Context, fields ...string) error {
	_, err := s.CreateIndex(ctx, On(fields...))
	return err
}

// RemoveIndex drops the named index.
func (s *Space) RemoveIndex(ctx context.Context, name string) error {
	return s.mutate(ctx, "remove_index", func() error {
		idx, ok := s.indexes.ByName(name)
		if !ok {
			return apperrors.NewNotFound("index", name)
		}
		err := s.catalog.DropIndexEntry(ctx, s.id, idx.IID)
		if errors.Is(err, catalog.ErrIndexNotFound) {
			return apperrors.NewNotFound("index", name)
		}
		if err != nil {
			return s.catalogError(err)
		}
		s.indexes.remove(name)
		s.logger.Info("index removed", zap.String("space", s.name), zap.String("index", name))
		return nil
	})
}

var changeTypes = map[string]notify.ChangeType{
	"add_property":    notify.SpaceAltered,
	"remove_property": notify.SpaceAltered,
	"set_nullable":    notify.SpaceAltered,
	"create_index":    notify.IndexCreated,
	"remove_index":    notify.IndexRemoved,
}

// mutate runs fn under the write lock and bumps the generation on success.
func (s *Space) mutate(ctx context.Context, op string, fn func() error) error {
	if s.system {
		return apperrors.NewConstraint(fmt.Sprintf("Space %s is read-only", s.name))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var before uint64
	if s.owner != nil {
		before = s.owner.cache.versionBefore(ctx, s.catalog)
	}
	if err := fn(); err != nil {
		observability.SchemaMutations.WithLabelValues(op, result(err)).Inc()
		return err
	}
	s.generation = generations.Add(1)
	if s.owner != nil {
		s.owner.cache.ownChange(ctx, s.catalog, before)
		s.owner.publish(changeTypes[op], s.name, s.id, s.generation)
	}
	observability.SchemaMutations.WithLabelValues(op, result(nil)).Inc()
	return nil
}

// result is the result label of a schema mutation.
func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (s *Space) catalogError(err error) error {
	if errors.Is(err, catalog.ErrSpaceNotFound) {
		return apperrors.NewNotFound("space", s.name)
	}
	return fmt.Errorf("space %s: %w", s.name, err)
}

// Defaults returns the declared default of every property that has one.
func (s *Space) Defaults() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any)
	for _, p := range s.props.props {
		if p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}

// FillDefaults builds a complete tuple in format order from a partial one.
// Given values are cast to the property type. Missing values take the
// declared default, then the type's zero value when the property is
// indexed or not nullable, and nil otherwise.
func (s *Space) FillDefaults(values map[string]any) ([]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for name := range values {
		if !s.props.Has(name) {
			return nil, apperrors.NewUnknownField(s.name, name)
		}
	}

	tuple := make([]any, len(s.props.props))
	for i, p := range s.props.props {
		v, ok := values[p.Name]
		switch {
		case ok && v == nil:
			if !p.Nullable {
				return nil, apperrors.NewCastFailed(p.Name, string(p.Type), nil, types.ErrNilValue)
			}
		case ok:
			cast, err := p.Type.Cast(v)
			if err != nil {
				return nil, apperrors.NewCastFailed(p.Name, string(p.Type), v, err)
			}
			tuple[i] = cast
		case p.Default != nil:
			tuple[i] = p.Default
		case !p.Nullable || s.indexed(p.Name):
			tuple[i] = p.Type.Zero()
		}
	}
	return tuple, nil
}

func (s *Space) indexed(field string) bool {
	for _, idx := range s.indexes.indexes {
		if idx.Covers(field) {
			return true
		}
	}
	return false
}
