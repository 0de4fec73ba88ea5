package schema

import (
	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/pkg/types"
)

// Lookup is the result of resolving a filter: the chosen index and the
// filter values reordered into index part order and cast to the part types.
type Lookup struct {
	Space  string
	Index  *Index
	Values []any
}

// Full reports whether the values cover every part of the index.
func (l *Lookup) Full() bool {
	return len(l.Values) == len(l.Index.Parts)
}

// Point reports whether the lookup can match at most one tuple.
func (l *Lookup) Point() bool {
	return l.Index.Unique && l.Full()
}

// CastIndex selects the index for an equality filter and casts the values
// into its key order. See MatchIndex for the selection rules.
func (s *Space) CastIndex(filter types.Filter) (*Lookup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.matchIndex(filter)
	if err != nil {
		return nil, err
	}
	return s.bind(idx, filter)
}

// MatchIndex returns the index whose leading parts are exactly the filter's
// field set. A full-key match wins over a prefix match; otherwise the lowest
// iid wins. Hash indexes only match on their full key. An empty filter
// selects the primary index.
func (s *Space) MatchIndex(filter types.Filter) (*Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchIndex(filter)
}

// Bind casts filter values into the key order of idx. The filter must name
// exactly the leading parts of the index.
func (s *Space) Bind(idx *Index, filter types.Filter) (*Lookup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bind(idx, filter)
}

func (s *Space) matchIndex(filter types.Filter) (*Index, error) {
	wanted := make(map[string]struct{}, len(filter))
	for _, term := range filter {
		if _, dup := wanted[term.Field]; dup {
			return nil, apperrors.NewInvalidArgument("field " + term.Field + " repeated in filter on " + s.name)
		}
		wanted[term.Field] = struct{}{}
	}

	k := len(filter)
	var best *Index
	for _, idx := range s.indexes.indexes {
		if k > len(idx.Fields) {
			continue
		}
		full := k == len(idx.Fields)
		if idx.Type == types.IndexHash && !full {
			continue
		}
		if !coversPrefix(idx.Fields[:k], wanted) {
			continue
		}
		if best == nil || (full && len(best.Fields) != k) {
			best = idx
		}
	}
	if best == nil {
		return nil, apperrors.NewNoMatchingIndex(s.name, filter.Fields())
	}
	return best, nil
}

func coversPrefix(prefix []string, wanted map[string]struct{}) bool {
	for _, f := range prefix {
		if _, ok := wanted[f]; !ok {
			return false
		}
	}
	return true
}

func (s *Space) bind(idx *Index, filter types.Filter) (*Lookup, error) {
	k := len(filter)
	if k > len(idx.Fields) {
		return nil, apperrors.NewNoMatchingIndex(s.name, filter.Fields())
	}

	values := make([]any, k)
	for i := 0; i < k; i++ {
		field := idx.Fields[i]
		part := idx.Parts[i]
		v, ok := filter.Lookup(field)
		if !ok {
			return nil, apperrors.NewNoMatchingIndex(s.name, filter.Fields())
		}
		if v == nil {
			if def, _ := s.props.Get(field); def.Nullable {
				continue
			}
			return nil, apperrors.NewCastFailed(field, string(part.Type), nil, types.ErrNilValue)
		}
		cast, err := part.Type.Cast(v)
		if err != nil {
			return nil, apperrors.NewCastFailed(field, string(part.Type), v, err)
		}
		values[i] = cast
	}

	return &Lookup{Space: s.name, Index: idx, Values: values}, nil
}
