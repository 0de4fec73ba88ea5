package schema

import (
	"github.com/arkilian/spacemeta/internal/catalog"
	"github.com/arkilian/spacemeta/pkg/types"
)

type systemSpace struct {
	id      uint32
	name    string
	format  []types.PropertyDef
	indexes []types.IndexDef
}

func part(field uint32, t types.PropertyType) types.IndexPart {
	return types.IndexPart{Field: field, Type: t}
}

var systemSpaceDefs = []systemSpace{
	{
		id:   catalog.SchemaSpaceID,
		name: SchemaSpaceName,
		format: []types.PropertyDef{
			{Name: "key", Type: types.TypeString},
			{Name: "value", Type: types.TypeAny, Nullable: true},
		},
		indexes: []types.IndexDef{
			{IID: 0, Name: "primary", Type: types.IndexTree, Unique: true,
				Parts: []types.IndexPart{part(0, types.TypeString)}},
		},
	},
	{
		id:   catalog.SpaceSpaceID,
		name: SpaceSpaceName,
		format: []types.PropertyDef{
			{Name: "id", Type: types.TypeUnsigned},
			{Name: "owner", Type: types.TypeUnsigned},
			{Name: "name", Type: types.TypeString},
			{Name: "engine", Type: types.TypeString},
			{Name: "field_count", Type: types.TypeUnsigned},
			{Name: "flags", Type: types.TypeMap},
			{Name: "format", Type: types.TypeArray},
		},
		indexes: []types.IndexDef{
			{IID: 0, Name: "primary", Type: types.IndexTree, Unique: true,
				Parts: []types.IndexPart{part(0, types.TypeUnsigned)}},
			{IID: 1, Name: "owner", Type: types.IndexTree, Unique: false,
				Parts: []types.IndexPart{part(1, types.TypeUnsigned)}},
			{IID: 2, Name: "name", Type: types.IndexTree, Unique: true,
				Parts: []types.IndexPart{part(2, types.TypeString)}},
		},
	},
	{
		id:   catalog.IndexSpaceID,
		name: IndexSpaceName,
		format: []types.PropertyDef{
			{Name: "id", Type: types.TypeUnsigned},
			{Name: "iid", Type: types.TypeUnsigned},
			{Name: "name", Type: types.TypeString},
			{Name: "type", Type: types.TypeString},
			{Name: "opts", Type: types.TypeMap},
			{Name: "parts", Type: types.TypeArray},
		},
		indexes: []types.IndexDef{
			{IID: 0, Name: "primary", Type: types.IndexTree, Unique: true,
				Parts: []types.IndexPart{part(0, types.TypeUnsigned), part(1, types.TypeUnsigned)}},
			{IID: 2, Name: "name", Type: types.IndexTree, Unique: true,
				Parts: []types.IndexPart{part(0, types.TypeUnsigned), part(2, types.TypeString)}},
		},
	},
}

// systemSpaces builds fresh read-only descriptors of the system spaces.
func systemSpaces() map[string]*Space {
	out := make(map[string]*Space, len(systemSpaceDefs))
	for _, sys := range systemSpaceDefs {
		space, err := newSpace(types.SpaceDef{ID: sys.id, Name: sys.name, Format: sys.format}, sys.indexes, nil)
		if err != nil {
			panic("schema: invalid system space " + sys.name + ": " + err.Error())
		}
		space.system = true
		out[sys.name] = space
	}
	return out
}
