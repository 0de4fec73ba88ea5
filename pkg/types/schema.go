package types

import (
	"encoding/json"
	"fmt"
)

// SpaceDef is the catalog record of a space.
type SpaceDef struct {
	// ID is assigned by the catalog
	ID uint32 `json:"id"`

	// Name is stored verbatim (case and dashes preserved)
	Name string `json:"name"`

	// Format lists the properties in ordinal order
	Format []PropertyDef `json:"format"`
}

// PropertyDef defines a single typed field of a space.
type PropertyDef struct {
	// Name is the property name, case-preserving
	Name string `json:"name"`

	// Type is the property type tag
	Type PropertyType `json:"type"`

	// Nullable indicates whether the field can hold nil
	Nullable bool `json:"is_nullable"`

	// Default is used when a tuple omits the field
	Default any `json:"default,omitempty"`
}

// FormatField is the per-field entry of the format handed to the store.
type FormatField struct {
	Name       string       `json:"name"`
	Type       PropertyType `json:"type"`
	IsNullable bool         `json:"is_nullable"`
}

// IndexType selects the index structure.
type IndexType string

const (
	// IndexTree supports full keys and key prefixes
	IndexTree IndexType = "tree"

	// IndexHash supports full keys only
	IndexHash IndexType = "hash"
)

// ParseIndexType converts a name into an IndexType; empty means tree.
func ParseIndexType(s string) (IndexType, error) {
	switch IndexType(s) {
	case "", IndexTree:
		return IndexTree, nil
	case IndexHash:
		return IndexHash, nil
	}
	return "", fmt.Errorf("unknown index type %q", s)
}

// IndexPart is one key part of an index: a field ordinal and its type.
// It serializes as a two element array, e.g. [1, "unsigned"].
type IndexPart struct {
	Field uint32
	Type  PropertyType
}

func (p IndexPart) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Field, p.Type})
}

func (p *IndexPart) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("index part: expected 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Field); err != nil {
		return fmt.Errorf("index part field: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Type); err != nil {
		return fmt.Errorf("index part type: %w", err)
	}
	return nil
}

// IndexDef is the catalog record of an index.
type IndexDef struct {
	// IID is the per-space index id; 0 is the primary index
	IID uint32 `json:"iid"`

	// Name is unique within the space
	Name string `json:"name"`

	// Type is tree or hash
	Type IndexType `json:"type"`

	// Unique indicates whether the index enforces uniqueness
	Unique bool `json:"unique"`

	// Parts are the key parts in key order
	Parts []IndexPart `json:"parts"`
}
