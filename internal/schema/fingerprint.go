package schema

import (
	"encoding/json"

	"github.com/arkilian/spacemeta/pkg/types"
	"github.com/spaolacci/murmur3"
)

type shape struct {
	Format  []types.PropertyDef `json:"format"`
	Indexes []types.IndexDef    `json:"indexes"`
}

// Fingerprint hashes the shape of a space: its format and its indexes
// without iids. Two spaces with the same shape have the same fingerprint
// regardless of name or id.
func Fingerprint(format []types.PropertyDef, indexes []types.IndexDef) uint64 {
	sh := shape{Format: format, Indexes: make([]types.IndexDef, len(indexes))}
	for i, def := range indexes {
		def.IID = 0
		sh.Indexes[i] = def
	}
	data, err := json.Marshal(sh)
	if err != nil {
		// an unmarshalable default still hashes deterministically
		data = []byte(err.Error())
	}
	return murmur3.Sum64(data)
}

// Fingerprint returns the shape hash of the space.
func (s *Space) Fingerprint() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	defs := make([]types.IndexDef, 0, s.indexes.Len())
	for _, idx := range s.indexes.indexes {
		defs = append(defs, idx.Def())
	}
	return Fingerprint(s.props.Defs(), defs)
}
