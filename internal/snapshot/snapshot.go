// Package snapshot captures the user spaces of a schema as a portable,
// compressed document and re-creates them in another catalog.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/internal/schema"
	"github.com/arkilian/spacemeta/pkg/types"
	"github.com/golang/snappy"
	"github.com/google/uuid"
)

// formatVersion is the first byte of an encoded snapshot.
const formatVersion byte = 1

// Snapshot is the shape of every user space at one catalog version.
type Snapshot struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	CatalogVersion uint64          `json:"catalog_version"`
	Instance       string          `json:"instance"`
	Spaces         []SpaceSnapshot `json:"spaces"`
}

// SpaceSnapshot is the shape of one space.
type SpaceSnapshot struct {
	Name        string              `json:"name"`
	Format      []types.PropertyDef `json:"format"`
	Indexes     []types.IndexDef    `json:"indexes"`
	Fingerprint uint64              `json:"fingerprint"`
}

// Space returns the snapshot of the named space.
func (s *Snapshot) Space(name string) (*SpaceSnapshot, bool) {
	for i := range s.Spaces {
		if s.Spaces[i].Name == name {
			return &s.Spaces[i], true
		}
	}
	return nil, false
}

// IndexFields returns the property names behind the parts of def.
func (sp *SpaceSnapshot) IndexFields(def types.IndexDef) ([]string, error) {
	fields := make([]string, len(def.Parts))
	for i, part := range def.Parts {
		if int(part.Field) >= len(sp.Format) {
			return nil, apperrors.NewCatalogError(apperrors.CodeCorruptionDetected,
				fmt.Sprintf("index %s of %s references field %d beyond the format", def.Name, sp.Name, part.Field), nil)
		}
		fields[i] = sp.Format[part.Field].Name
	}
	return fields, nil
}

// Capture snapshots every user space of s.
func Capture(ctx context.Context, s *schema.Schema) (*Snapshot, error) {
	version, err := s.Catalog().Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	spaces, err := s.Spaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	snap := &Snapshot{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		CatalogVersion: version,
		Instance:       s.Instance(),
		Spaces:         make([]SpaceSnapshot, 0, len(spaces)),
	}
	for _, sp := range spaces {
		snap.Spaces = append(snap.Spaces, SpaceSnapshot{
			Name:        sp.Name(),
			Format:      sp.GetProperties(),
			Indexes:     sp.IndexDefs(),
			Fingerprint: sp.Fingerprint(),
		})
	}
	return snap, nil
}

// Encode serialises a snapshot as a version byte followed by snappy
// compressed JSON.
func Encode(snap *Snapshot) ([]byte, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal failed: %w", err)
	}
	compressed := snappy.Encode(nil, raw)

	out := make([]byte, 0, 1+len(compressed))
	out = append(out, formatVersion)
	return append(out, compressed...), nil
}

// Decode parses the output of Encode. Property defaults decode as
// json.Number and are cast back to their declared types.
func Decode(data []byte) (*Snapshot, error) {
	if len(data) == 0 {
		return nil, apperrors.NewCatalogError(apperrors.CodeCorruptionDetected, "snapshot: empty data", nil)
	}
	if data[0] != formatVersion {
		return nil, apperrors.NewCatalogError(apperrors.CodeCorruptionDetected,
			fmt.Sprintf("snapshot: unsupported format version %d", data[0]), nil)
	}
	raw, err := snappy.Decode(nil, data[1:])
	if err != nil {
		return nil, apperrors.NewCatalogError(apperrors.CodeCorruptionDetected, "snapshot: snappy decompress failed", err)
	}

	var snap Snapshot
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&snap); err != nil {
		return nil, apperrors.NewCatalogError(apperrors.CodeCorruptionDetected, "snapshot: invalid document", err)
	}
	for i := range snap.Spaces {
		for j, def := range snap.Spaces[i].Format {
			if def.Default == nil {
				continue
			}
			v, err := def.Type.Cast(def.Default)
			if err != nil {
				return nil, apperrors.NewCatalogError(apperrors.CodeCorruptionDetected,
					fmt.Sprintf("snapshot: default of %s.%s", snap.Spaces[i].Name, def.Name), err)
			}
			snap.Spaces[i].Format[j].Default = v
		}
	}
	return &snap, nil
}
