// Package catalog provides the store catalog: the persistent record of
// spaces, their formats and indexes, and the _schema key-value area.
package catalog

// Reserved space ids of the system spaces. User spaces are numbered from
// FirstUserSpaceID upwards.
const (
	SchemaSpaceID    uint32 = 272
	SpaceSpaceID     uint32 = 280
	IndexSpaceID     uint32 = 288
	FirstUserSpaceID uint32 = 512
)

// CreateSpaceTableSQL creates the _space table. Format is a JSON array of
// property definitions in ordinal order.
const CreateSpaceTableSQL = `
CREATE TABLE IF NOT EXISTS _space (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    format TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL
)`

// CreateIndexTableSQL creates the _index table. Parts is a JSON array of
// [field ordinal, type] pairs.
const CreateIndexTableSQL = `
CREATE TABLE IF NOT EXISTS _index (
    space_id INTEGER NOT NULL,
    iid INTEGER NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'tree',
    is_unique INTEGER NOT NULL DEFAULT 1,
    parts TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (space_id, iid),
    UNIQUE (space_id, name)
)`

// CreateSchemaTableSQL creates the _schema key-value area.
const CreateSchemaTableSQL = `
CREATE TABLE IF NOT EXISTS _schema (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateMetaTableSQL creates the counters table holding the catalog version.
const CreateMetaTableSQL = `
CREATE TABLE IF NOT EXISTS _meta (
    name TEXT PRIMARY KEY,
    value INTEGER NOT NULL
)`

// SeedVersionSQL makes sure the version row exists.
const SeedVersionSQL = `INSERT OR IGNORE INTO _meta (name, value) VALUES ('version', 0)`

// AllSchemaSQL returns all SQL statements needed to initialize the catalog.
func AllSchemaSQL() []string {
	return []string{
		CreateSpaceTableSQL,
		CreateIndexTableSQL,
		CreateSchemaTableSQL,
		CreateMetaTableSQL,
		SeedVersionSQL,
	}
}
