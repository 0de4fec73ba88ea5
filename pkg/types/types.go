// Package types provides the core data types shared by the spacemeta packages:
// property type tags, ordered field lists, equality filters and the catalog
// records describing spaces and indexes.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// PropertyType is the closed set of value type tags a property can carry.
type PropertyType string

const (
	// TypeUnsigned holds non-negative integers (uint64)
	TypeUnsigned PropertyType = "unsigned"

	// TypeInteger holds signed integers (int64)
	TypeInteger PropertyType = "integer"

	// TypeNumber holds any numeric value (float64)
	TypeNumber PropertyType = "number"

	// TypeString holds text
	TypeString PropertyType = "string"

	// TypeBoolean holds true/false
	TypeBoolean PropertyType = "boolean"

	// TypeArray holds ordered lists
	TypeArray PropertyType = "array"

	// TypeMap holds string-keyed maps
	TypeMap PropertyType = "map"

	// TypeScalar holds any non-container value
	TypeScalar PropertyType = "scalar"

	// TypeAny holds anything
	TypeAny PropertyType = "any"
)

// AllPropertyTypes lists every valid tag in declaration order.
var AllPropertyTypes = []PropertyType{
	TypeUnsigned, TypeInteger, TypeNumber, TypeString, TypeBoolean,
	TypeArray, TypeMap, TypeScalar, TypeAny,
}

// legacy tag names still found in older catalogs
var propertyTypeAliases = map[string]PropertyType{
	"num":    TypeUnsigned,
	"uint":   TypeUnsigned,
	"int":    TypeInteger,
	"str":    TypeString,
	"bool":   TypeBoolean,
	"float":  TypeNumber,
	"double": TypeNumber,
	"*":      TypeAny,
}

// ParsePropertyType converts a tag name into a PropertyType.
// Matching is case-insensitive and accepts the legacy short names.
func ParsePropertyType(s string) (PropertyType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	t := PropertyType(name)
	if t.Valid() {
		return t, nil
	}
	if alias, ok := propertyTypeAliases[name]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Valid reports whether t is one of the known tags.
func (t PropertyType) Valid() bool {
	switch t {
	case TypeUnsigned, TypeInteger, TypeNumber, TypeString, TypeBoolean,
		TypeArray, TypeMap, TypeScalar, TypeAny:
		return true
	}
	return false
}

func (t PropertyType) String() string {
	return string(t)
}

// UnmarshalJSON accepts both canonical and legacy tag names.
func (t *PropertyType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePropertyType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Zero returns the value a missing non-nullable field of this type takes.
func (t PropertyType) Zero() any {
	switch t {
	case TypeUnsigned:
		return uint64(0)
	case TypeInteger:
		return int64(0)
	case TypeNumber:
		return float64(0)
	case TypeString:
		return ""
	case TypeBoolean:
		return false
	case TypeArray:
		return []any{}
	case TypeMap:
		return map[string]any{}
	default:
		return nil
	}
}

// Cast converts v into the canonical Go representation of t:
// uint64, int64, float64, string, bool, []any or map[string]any.
// Scalar and any values are returned unchanged after a shape check, except
// that json.Number values become plain Go numbers.
// A nil value is rejected with ErrNilValue; nullability is the caller's call.
func (t PropertyType) Cast(v any) (any, error) {
	if v == nil {
		if t == TypeAny {
			return nil, nil
		}
		return nil, ErrNilValue
	}
	switch t {
	case TypeAny, TypeScalar, TypeArray, TypeMap:
		v = plainNumbers(v)
	default:
		if n, ok := v.(json.Number); ok {
			v = n.String()
		}
	}

	switch t {
	case TypeUnsigned:
		return castUnsigned(v)
	case TypeInteger:
		return castInteger(v)
	case TypeNumber:
		return castNumber(v)
	case TypeString:
		return castString(v)
	case TypeBoolean:
		return castBoolean(v)
	case TypeArray:
		return castArray(v)
	case TypeMap:
		return castMap(v)
	case TypeScalar:
		switch reflect.ValueOf(v).Kind() {
		case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
			if _, ok := v.([]byte); !ok {
				return nil, incompatible(t, v)
			}
		}
		return v, nil
	case TypeAny:
		return v, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, string(t))
}

// plainNumbers replaces json.Number values, nested ones included, with the
// first of int64, uint64 or float64 that holds them.
func plainNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(x.String(), 10, 64); err == nil {
			return u
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plainNumbers(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plainNumbers(e)
		}
		return out
	}
	return v
}

func incompatible(t PropertyType, v any) error {
	return fmt.Errorf("%w: cannot cast %T(%v) to %s", ErrIncompatibleValue, v, v, t)
}

func castUnsigned(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return nil, fmt.Errorf("%w: %d is negative", ErrOutOfRange, rv.Int())
		}
		return uint64(rv.Int()), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f < 0 || f != math.Trunc(f) || f >= 1<<64 {
			return nil, incompatible(TypeUnsigned, v)
		}
		return uint64(f), nil
	case reflect.String:
		u, err := strconv.ParseUint(strings.TrimSpace(rv.String()), 10, 64)
		if err != nil {
			return nil, incompatible(TypeUnsigned, v)
		}
		return u, nil
	}
	return nil, incompatible(TypeUnsigned, v)
}

func castInteger(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if rv.Uint() > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows integer", ErrOutOfRange, rv.Uint())
		}
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f >= 1<<63 || f < math.MinInt64 {
			return nil, incompatible(TypeInteger, v)
		}
		return int64(f), nil
	case reflect.String:
		i, err := strconv.ParseInt(strings.TrimSpace(rv.String()), 10, 64)
		if err != nil {
			return nil, incompatible(TypeInteger, v)
		}
		return i, nil
	}
	return nil, incompatible(TypeInteger, v)
}

func castNumber(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
		if err != nil {
			return nil, incompatible(TypeNumber, v)
		}
		return f, nil
	}
	return nil, incompatible(TypeNumber, v)
}

func castString(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	}
	return nil, incompatible(TypeString, v)
}

func castBoolean(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch rv.Int() {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch rv.Uint() {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	case reflect.String:
		b, err := strconv.ParseBool(strings.TrimSpace(rv.String()))
		if err == nil {
			return b, nil
		}
	}
	return nil, incompatible(TypeBoolean, v)
}

func castArray(v any) (any, error) {
	if a, ok := v.([]any); ok {
		return a, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if _, ok := v.([]byte); ok {
			return nil, incompatible(TypeArray, v)
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	return nil, incompatible(TypeArray, v)
}

func castMap(v any) (any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, incompatible(TypeMap, v)
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, nil
}
