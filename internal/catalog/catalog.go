package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arkilian/spacemeta/pkg/types"
	_ "github.com/mattn/go-sqlite3"
)

// Not-found and conflict conditions reported by the catalog. Any other
// error is a store failure and is returned wrapped.
var (
	ErrSpaceNotFound = errors.New("catalog: space not found")
	ErrSpaceExists   = errors.New("catalog: space already exists")
	ErrIndexNotFound = errors.New("catalog: index not found")
	ErrIndexExists   = errors.New("catalog: index already exists")
	ErrKeyNotFound   = errors.New("catalog: key not found")
)

// Catalog is the store-side record of spaces, indexes and the _schema area.
type Catalog interface {
	// ListSpaces returns all user spaces ordered by id.
	ListSpaces(ctx context.Context) ([]types.SpaceDef, error)

	// GetSpaceByName returns ErrSpaceNotFound if the space does not exist.
	GetSpaceByName(ctx context.Context, name string) (*types.SpaceDef, error)

	// CreateSpaceEntry registers a space and returns its id.
	CreateSpaceEntry(ctx context.Context, name string, format []types.PropertyDef) (uint32, error)

	// DropSpaceEntry removes a space together with its indexes.
	DropSpaceEntry(ctx context.Context, id uint32) error

	// SetSpaceFormat replaces the stored format of a space.
	SetSpaceFormat(ctx context.Context, id uint32, format []types.PropertyDef) error

	// ListIndexesForSpace returns the indexes of a space ordered by iid.
	ListIndexesForSpace(ctx context.Context, spaceID uint32) ([]types.IndexDef, error)

	// CreateIndexEntry stores an index and returns the iid assigned to it.
	// The IID field of def is ignored.
	CreateIndexEntry(ctx context.Context, spaceID uint32, def types.IndexDef) (uint32, error)

	// DropIndexEntry removes a single index.
	DropIndexEntry(ctx context.Context, spaceID, iid uint32) error

	// GetKey reads a value from the _schema area.
	GetKey(ctx context.Context, key string) ([]byte, error)

	// PutKey writes a value to the _schema area.
	PutKey(ctx context.Context, key string, value []byte) error

	// DeleteKey removes a key and reports whether it existed.
	DeleteKey(ctx context.Context, key string) (bool, error)

	// ListKeys returns the _schema keys starting with prefix, sorted.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Version returns a counter bumped by every space or index change.
	Version(ctx context.Context) (uint64, error)

	// Close closes the catalog database connection.
	Close() error
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool
	dbPath string
	mu     sync.Mutex // Write-only lock
}

// NewCatalog opens (creating if needed) a SQLite catalog at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	catalog := &SQLiteCatalog{db: db, dbPath: dbPath}
	if err := catalog.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}

	// Readers open after the schema exists so the WAL files are in place.
	readDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	catalog.readDB = readDB

	return catalog, nil
}

// Path returns the database file path.
func (c *SQLiteCatalog) Path() string {
	return c.dbPath
}

func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// ListSpaces returns all user spaces ordered by id.
func (c *SQLiteCatalog) ListSpaces(ctx context.Context) ([]types.SpaceDef, error) {
	rows, err := c.readDB.QueryContext(ctx, "SELECT id, name, format FROM _space ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list spaces: %w", err)
	}
	defer rows.Close()

	var spaces []types.SpaceDef
	for rows.Next() {
		def, err := scanSpace(rows)
		if err != nil {
			return nil, err
		}
		spaces = append(spaces, *def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: failed to iterate spaces: %w", err)
	}
	return spaces, nil
}

// GetSpaceByName retrieves a single space by name.
func (c *SQLiteCatalog) GetSpaceByName(ctx context.Context, name string) (*types.SpaceDef, error) {
	row := c.readDB.QueryRowContext(ctx, "SELECT id, name, format FROM _space WHERE name = ?", name)
	def, err := scanSpace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSpaceNotFound
	}
	return def, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpace(row rowScanner) (*types.SpaceDef, error) {
	var (
		def    types.SpaceDef
		format string
	)
	if err := row.Scan(&def.ID, &def.Name, &format); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("catalog: failed to scan space: %w", err)
	}
	// Numbers stay exact so unsigned defaults above 2^53 survive.
	dec := json.NewDecoder(strings.NewReader(format))
	dec.UseNumber()
	if err := dec.Decode(&def.Format); err != nil {
		return nil, fmt.Errorf("catalog: failed to unmarshal format of space %s: %w", def.Name, err)
	}
	return &def, nil
}

// CreateSpaceEntry registers a new space and returns its id.
func (c *SQLiteCatalog) CreateSpaceEntry(ctx context.Context, name string, format []types.PropertyDef) (uint32, error) {
	formatJSON, err := marshalFormat(format)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing uint32
	err = tx.QueryRowContext(ctx, "SELECT id FROM _space WHERE name = ?", name).Scan(&existing)
	if err == nil {
		return 0, ErrSpaceExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("catalog: failed to check space %s: %w", name, err)
	}

	var id uint32
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(id) + 1, ?) FROM _space", FirstUserSpaceID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("catalog: failed to allocate space id: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO _space (id, name, format, created_at) VALUES (?, ?, ?, ?)",
		id, name, formatJSON, time.Now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("catalog: failed to insert space %s: %w", name, err)
	}
	if err := bumpVersion(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: failed to commit transaction: %w", err)
	}
	return id, nil
}

// DropSpaceEntry removes a space and all of its indexes.
func (c *SQLiteCatalog) DropSpaceEntry(ctx context.Context, id uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM _index WHERE space_id = ?", id); err != nil {
		return fmt.Errorf("catalog: failed to delete indexes of space %d: %w", id, err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM _space WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("catalog: failed to delete space %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrSpaceNotFound
	}
	if err := bumpVersion(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: failed to commit transaction: %w", err)
	}
	return nil
}

// SetSpaceFormat replaces the stored format of a space.
func (c *SQLiteCatalog) SetSpaceFormat(ctx context.Context, id uint32, format []types.PropertyDef) error {
	formatJSON, err := marshalFormat(format)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "UPDATE _space SET format = ? WHERE id = ?", formatJSON, id)
	if err != nil {
		return fmt.Errorf("catalog: failed to update format of space %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrSpaceNotFound
	}
	if err := bumpVersion(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: failed to commit transaction: %w", err)
	}
	return nil
}

func marshalFormat(format []types.PropertyDef) (string, error) {
	if format == nil {
		format = []types.PropertyDef{}
	}
	data, err := json.Marshal(format)
	if err != nil {
		return "", fmt.Errorf("catalog: failed to marshal format: %w", err)
	}
	return string(data), nil
}

// ListIndexesForSpace returns the indexes of a space ordered by iid.
func (c *SQLiteCatalog) ListIndexesForSpace(ctx context.Context, spaceID uint32) ([]types.IndexDef, error) {
	rows, err := c.readDB.QueryContext(ctx,
		"SELECT iid, name, type, is_unique, parts FROM _index WHERE space_id = ? ORDER BY iid",
		spaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list indexes of space %d: %w", spaceID, err)
	}
	defer rows.Close()

	var indexes []types.IndexDef
	for rows.Next() {
		var (
			def   types.IndexDef
			typ   string
			parts string
		)
		if err := rows.Scan(&def.IID, &def.Name, &typ, &def.Unique, &parts); err != nil {
			return nil, fmt.Errorf("catalog: failed to scan index: %w", err)
		}
		def.Type = types.IndexType(typ)
		if err := json.Unmarshal([]byte(parts), &def.Parts); err != nil {
			return nil, fmt.Errorf("catalog: failed to unmarshal parts of index %s: %w", def.Name, err)
		}
		indexes = append(indexes, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: failed to iterate indexes: %w", err)
	}
	return indexes, nil
}

// CreateIndexEntry stores an index and assigns it the next iid of the space.
func (c *SQLiteCatalog) CreateIndexEntry(ctx context.Context, spaceID uint32, def types.IndexDef) (uint32, error) {
	parts, err := json.Marshal(def.Parts)
	if err != nil {
		return 0, fmt.Errorf("catalog: failed to marshal index parts: %w", err)
	}
	if def.Type == "" {
		def.Type = types.IndexTree
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var found int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM _space WHERE id = ?", spaceID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrSpaceNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("catalog: failed to check space %d: %w", spaceID, err)
	}

	err = tx.QueryRowContext(ctx,
		"SELECT 1 FROM _index WHERE space_id = ? AND name = ?", spaceID, def.Name,
	).Scan(&found)
	if err == nil {
		return 0, ErrIndexExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("catalog: failed to check index %s: %w", def.Name, err)
	}

	var iid uint32
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(iid) + 1, 0) FROM _index WHERE space_id = ?", spaceID,
	).Scan(&iid)
	if err != nil {
		return 0, fmt.Errorf("catalog: failed to allocate iid: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO _index (space_id, iid, name, type, is_unique, parts, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		spaceID, iid, def.Name, string(def.Type), def.Unique, string(parts), time.Now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("catalog: failed to insert index %s: %w", def.Name, err)
	}
	if err := bumpVersion(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: failed to commit transaction: %w", err)
	}
	return iid, nil
}

// DropIndexEntry removes a single index.
func (c *SQLiteCatalog) DropIndexEntry(ctx context.Context, spaceID, iid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM _index WHERE space_id = ? AND iid = ?", spaceID, iid)
	if err != nil {
		return fmt.Errorf("catalog: failed to delete index %d of space %d: %w", iid, spaceID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrIndexNotFound
	}
	if err := bumpVersion(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: failed to commit transaction: %w", err)
	}
	return nil
}

// GetKey reads a value from the _schema area.
func (c *SQLiteCatalog) GetKey(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.readDB.QueryRowContext(ctx, "SELECT value FROM _schema WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to read key %s: %w", key, err)
	}
	return value, nil
}

// PutKey writes a value to the _schema area, replacing any previous value.
func (c *SQLiteCatalog) PutKey(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO _schema (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("catalog: failed to write key %s: %w", key, err)
	}
	return nil
}

// DeleteKey removes a key from the _schema area.
func (c *SQLiteCatalog) DeleteKey(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.ExecContext(ctx, "DELETE FROM _schema WHERE key = ?", key)
	if err != nil {
		return false, fmt.Errorf("catalog: failed to delete key %s: %w", key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("catalog: failed to delete key %s: %w", key, err)
	}
	return n > 0, nil
}

// ListKeys returns the keys of the _schema area starting with prefix.
func (c *SQLiteCatalog) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := c.readDB.QueryContext(ctx,
		"SELECT key FROM _schema WHERE substr(key, 1, ?) = ? ORDER BY key",
		len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("catalog: failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: failed to iterate keys: %w", err)
	}
	return keys, nil
}

// Version returns the catalog change counter.
func (c *SQLiteCatalog) Version(ctx context.Context) (uint64, error) {
	var version uint64
	err := c.readDB.QueryRowContext(ctx, "SELECT value FROM _meta WHERE name = 'version'").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("catalog: failed to read version: %w", err)
	}
	return version, nil
}

func bumpVersion(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, "UPDATE _meta SET value = value + 1 WHERE name = 'version'"); err != nil {
		return fmt.Errorf("catalog: failed to bump version: %w", err)
	}
	return nil
}

// Close closes both database handles.
func (c *SQLiteCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			firstErr = err
		}
	}
	if err := c.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("catalog: failed to close: %w", firstErr)
	}
	return nil
}

var _ Catalog = (*SQLiteCatalog)(nil)
