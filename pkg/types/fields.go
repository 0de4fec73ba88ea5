package types

// Field is a name/type pair used to declare properties in order.
type Field struct {
	Name string
	Type PropertyType
}

// Fields is an explicitly ordered property list.
type Fields []Field

// F builds a Field.
func F(name string, t PropertyType) Field {
	return Field{Name: name, Type: t}
}

// Names returns the field names in order.
func (fs Fields) Names() []string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name
	}
	return names
}

// Term is a single equality condition.
type Term struct {
	Field string
	Value any
}

// Filter is an ordered list of equality terms. Order is only significant
// for error reporting; resolution treats the field set as unordered.
type Filter []Term

// Eq builds a single-term filter.
func Eq(field string, value any) Filter {
	return Filter{{Field: field, Value: value}}
}

// And returns a copy of f with another term appended.
func (f Filter) And(field string, value any) Filter {
	out := make(Filter, len(f), len(f)+1)
	copy(out, f)
	return append(out, Term{Field: field, Value: value})
}

// Fields returns the filter's field names in argument order.
func (f Filter) Fields() []string {
	names := make([]string, len(f))
	for i, term := range f {
		names[i] = term.Field
	}
	return names
}

// Lookup returns the value of the named field.
func (f Filter) Lookup(field string) (any, bool) {
	for _, term := range f {
		if term.Field == field {
			return term.Value, true
		}
	}
	return nil, false
}

// FilterFromMap builds a filter from a map, using order for the keys.
// Keys missing from order are dropped.
func FilterFromMap(m map[string]any, order ...string) Filter {
	f := make(Filter, 0, len(order))
	for _, k := range order {
		if v, ok := m[k]; ok {
			f = append(f, Term{Field: k, Value: v})
		}
	}
	return f
}
