package schema

import (
	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/pkg/types"
)

// PropertyOption adjusts a property definition at creation time.
type PropertyOption func(*types.PropertyDef)

// WithDefault sets the value used when a tuple omits the field.
func WithDefault(v any) PropertyOption {
	return func(def *types.PropertyDef) {
		def.Default = v
	}
}

// WithNullable sets whether the field accepts nil.
func WithNullable(nullable bool) PropertyOption {
	return func(def *types.PropertyDef) {
		def.Nullable = nullable
	}
}

// PropertyRegistry is the ordered list of typed fields of one space.
// A property's ordinal is its position in the list.
type PropertyRegistry struct {
	space    string
	props    []types.PropertyDef
	ordinals map[string]int
}

// NewPropertyRegistry returns an empty registry for the named space.
func NewPropertyRegistry(space string) *PropertyRegistry {
	return &PropertyRegistry{
		space:    space,
		ordinals: make(map[string]int),
	}
}

func loadPropertyRegistry(space string, defs []types.PropertyDef) (*PropertyRegistry, error) {
	r := NewPropertyRegistry(space)
	for _, def := range defs {
		if _, ok := r.ordinals[def.Name]; ok {
			return nil, apperrors.NewDuplicateProperty(space, def.Name)
		}
		if def.Default != nil {
			// catalog rows hold numbers as json.Number
			if v, err := def.Type.Cast(def.Default); err == nil {
				def.Default = v
			}
		}
		r.ordinals[def.Name] = len(r.props)
		r.props = append(r.props, def)
	}
	return r, nil
}

// Add appends a property at the next ordinal.
func (r *PropertyRegistry) Add(name string, typ types.PropertyType, opts ...PropertyOption) error {
	if name == "" {
		return apperrors.NewInvalidArgument("property name must not be empty")
	}
	if !typ.Valid() {
		return apperrors.NewInvalidArgument("unknown property type " + string(typ) + " for " + name)
	}
	if _, ok := r.ordinals[name]; ok {
		return apperrors.NewDuplicateProperty(r.space, name)
	}

	def := types.PropertyDef{Name: name, Type: typ, Nullable: true}
	for _, opt := range opts {
		opt(&def)
	}
	if def.Default != nil {
		v, err := typ.Cast(def.Default)
		if err != nil {
			return apperrors.NewCastFailed(name, string(typ), def.Default, err)
		}
		def.Default = v
	}

	r.ordinals[name] = len(r.props)
	r.props = append(r.props, def)
	return nil
}

// Remove deletes a property and compacts the ordinals after it.
func (r *PropertyRegistry) Remove(name string) error {
	ord, ok := r.ordinals[name]
	if !ok {
		return apperrors.NewNotFound("property", name)
	}
	r.props = append(r.props[:ord], r.props[ord+1:]...)
	delete(r.ordinals, name)
	for i := ord; i < len(r.props); i++ {
		r.ordinals[r.props[i].Name] = i
	}
	return nil
}

// Has reports whether the property exists. Names are case-sensitive.
func (r *PropertyRegistry) Has(name string) bool {
	_, ok := r.ordinals[name]
	return ok
}

// Type returns the type of the named property.
func (r *PropertyRegistry) Type(name string) (types.PropertyType, error) {
	ord, ok := r.ordinals[name]
	if !ok {
		return "", apperrors.NewNotFound("property", name)
	}
	return r.props[ord].Type, nil
}

// Get returns the full definition of the named property.
func (r *PropertyRegistry) Get(name string) (types.PropertyDef, bool) {
	ord, ok := r.ordinals[name]
	if !ok {
		return types.PropertyDef{}, false
	}
	return r.props[ord], true
}

// Ordinal returns the position of the named property.
func (r *PropertyRegistry) Ordinal(name string) (int, bool) {
	ord, ok := r.ordinals[name]
	return ord, ok
}

// NameAt returns the property name at the given ordinal.
func (r *PropertyRegistry) NameAt(ordinal int) (string, bool) {
	if ordinal < 0 || ordinal >= len(r.props) {
		return "", false
	}
	return r.props[ordinal].Name, true
}

// SetNullable changes the nullability of the named property.
func (r *PropertyRegistry) SetNullable(name string, nullable bool) error {
	ord, ok := r.ordinals[name]
	if !ok {
		return apperrors.NewNotFound("property", name)
	}
	r.props[ord].Nullable = nullable
	return nil
}

// Len returns the number of properties.
func (r *PropertyRegistry) Len() int {
	return len(r.props)
}

// Defs returns a copy of the property definitions in ordinal order.
func (r *PropertyRegistry) Defs() []types.PropertyDef {
	out := make([]types.PropertyDef, len(r.props))
	copy(out, r.props)
	return out
}

// Format returns the store-facing format in ordinal order.
func (r *PropertyRegistry) Format() []types.FormatField {
	out := make([]types.FormatField, len(r.props))
	for i, p := range r.props {
		out[i] = types.FormatField{Name: p.Name, Type: p.Type, IsNullable: p.Nullable}
	}
	return out
}

func (r *PropertyRegistry) clone() *PropertyRegistry {
	cp := &PropertyRegistry{
		space:    r.space,
		props:    r.Defs(),
		ordinals: make(map[string]int, len(r.ordinals)),
	}
	for k, v := range r.ordinals {
		cp.ordinals[k] = v
	}
	return cp
}
