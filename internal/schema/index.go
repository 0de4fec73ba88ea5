package schema

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/pkg/types"
)

// Index is a resolved index of a space. Parts and Fields are fixed at
// creation time: Fields[i] names the property behind Parts[i].
type Index struct {
	IID    uint32
	Name   string
	Type   types.IndexType
	Unique bool
	Parts  []types.IndexPart
	Fields []string
}

// Def returns the catalog record of the index.
func (i *Index) Def() types.IndexDef {
	parts := make([]types.IndexPart, len(i.Parts))
	copy(parts, i.Parts)
	return types.IndexDef{
		IID:    i.IID,
		Name:   i.Name,
		Type:   i.Type,
		Unique: i.Unique,
		Parts:  parts,
	}
}

// Covers reports whether the field is one of the index parts.
func (i *Index) Covers(field string) bool {
	for _, f := range i.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// IndexSpec describes an index to create. Zero values take the defaults:
// tree type, unique, name joined from the fields with underscores.
type IndexSpec struct {
	Fields []string
	Type   types.IndexType
	Unique *bool
	Name   string
}

// On returns a spec for an index over the given fields.
func On(fields ...string) IndexSpec {
	return IndexSpec{Fields: fields}
}

// Named overrides the default name.
func (s IndexSpec) Named(name string) IndexSpec {
	s.Name = name
	return s
}

// Hash makes the index a hash index.
func (s IndexSpec) Hash() IndexSpec {
	s.Type = types.IndexHash
	return s
}

// NonUnique drops the uniqueness constraint.
func (s IndexSpec) NonUnique() IndexSpec {
	unique := false
	s.Unique = &unique
	return s
}

// DefaultIndexName joins the field names with underscores.
func DefaultIndexName(fields []string) string {
	return strings.Join(fields, "_")
}

// IndexRegistry holds the indexes of one space in iid order.
type IndexRegistry struct {
	space   string
	indexes []*Index
}

// NewIndexRegistry returns an empty registry for the named space.
func NewIndexRegistry(space string) *IndexRegistry {
	return &IndexRegistry{space: space}
}

func loadIndexRegistry(space string, defs []types.IndexDef, props *PropertyRegistry) (*IndexRegistry, error) {
	r := NewIndexRegistry(space)
	for _, def := range defs {
		fields := make([]string, len(def.Parts))
		for i, part := range def.Parts {
			name, ok := props.NameAt(int(part.Field))
			if !ok {
				return nil, apperrors.NewCatalogError(apperrors.CodeCorruptionDetected,
					fmt.Sprintf("index %s of %s references field %d beyond the format", def.Name, space, part.Field), nil)
			}
			fields[i] = name
		}
		typ := def.Type
		if typ == "" {
			typ = types.IndexTree
		}
		r.add(&Index{
			IID:    def.IID,
			Name:   def.Name,
			Type:   typ,
			Unique: def.Unique,
			Parts:  def.Parts,
			Fields: fields,
		})
	}
	return r, nil
}

// prepare validates a spec against the current properties and indexes and
// returns the index to create. The IID is assigned later by the catalog.
func (r *IndexRegistry) prepare(spec IndexSpec, props *PropertyRegistry) (*Index, error) {
	if len(spec.Fields) == 0 {
		return nil, apperrors.NewInvalidArgument("index on " + r.space + " needs at least one field")
	}

	typ, err := types.ParseIndexType(string(spec.Type))
	if err != nil {
		return nil, apperrors.NewInvalidArgument(err.Error())
	}
	unique := true
	if spec.Unique != nil {
		unique = *spec.Unique
	}
	if typ == types.IndexHash && !unique {
		return nil, apperrors.NewInvalidArgument("hash index on " + r.space + " must be unique")
	}

	seen := make(map[string]struct{}, len(spec.Fields))
	parts := make([]types.IndexPart, len(spec.Fields))
	for i, field := range spec.Fields {
		if _, dup := seen[field]; dup {
			return nil, apperrors.NewInvalidArgument(fmt.Sprintf("field %s repeated in index on %s", field, r.space))
		}
		seen[field] = struct{}{}

		ord, ok := props.Ordinal(field)
		if !ok {
			return nil, apperrors.NewUnknownField(r.space, field)
		}
		def, _ := props.Get(field)
		parts[i] = types.IndexPart{Field: uint32(ord), Type: def.Type}
	}

	name := spec.Name
	if name == "" {
		name = DefaultIndexName(spec.Fields)
	}
	if existing, ok := r.ByName(name); ok {
		return nil, apperrors.NewDuplicateIndex(r.space, existing.Name, spec.Fields)
	}
	if existing, ok := r.byFields(spec.Fields); ok {
		return nil, apperrors.NewDuplicateIndex(r.space, existing.Name, spec.Fields)
	}

	return &Index{
		Name:   name,
		Type:   typ,
		Unique: unique,
		Parts:  parts,
		Fields: append([]string(nil), spec.Fields...),
	}, nil
}

func (r *IndexRegistry) add(idx *Index) {
	pos := sort.Search(len(r.indexes), func(i int) bool { return r.indexes[i].IID >= idx.IID })
	r.indexes = append(r.indexes, nil)
	copy(r.indexes[pos+1:], r.indexes[pos:])
	r.indexes[pos] = idx
}

func (r *IndexRegistry) remove(name string) {
	for i, idx := range r.indexes {
		if idx.Name == name {
			r.indexes = append(r.indexes[:i], r.indexes[i+1:]...)
			return
		}
	}
}

// ByName returns the index with the given name.
func (r *IndexRegistry) ByName(name string) (*Index, bool) {
	for _, idx := range r.indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return nil, false
}

func (r *IndexRegistry) byFields(fields []string) (*Index, bool) {
	for _, idx := range r.indexes {
		if len(idx.Fields) != len(fields) {
			continue
		}
		same := true
		for i := range fields {
			if idx.Fields[i] != fields[i] {
				same = false
				break
			}
		}
		if same {
			return idx, true
		}
	}
	return nil, false
}

// All returns the indexes in iid order.
func (r *IndexRegistry) All() []*Index {
	out := make([]*Index, len(r.indexes))
	copy(out, r.indexes)
	return out
}

// Len returns the number of indexes.
func (r *IndexRegistry) Len() int {
	return len(r.indexes)
}

func (r *IndexRegistry) clone() *IndexRegistry {
	return &IndexRegistry{space: r.space, indexes: r.All()}
}
