package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/arkilian/spacemeta/pkg/types"
)

func newTestCatalog(t *testing.T) (*SQLiteCatalog, func()) {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "catalog_test_*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	catalog, err := NewCatalog(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to create catalog: %v", err)
	}

	return catalog, func() {
		catalog.Close()
		os.Remove(tmpFile.Name())
		os.Remove(tmpFile.Name() + "-wal")
		os.Remove(tmpFile.Name() + "-shm")
	}
}

func TestCatalog_CreateAndGetSpace(t *testing.T) {
	catalog, cleanup := newTestCatalog(t)
	defer cleanup()
	ctx := context.Background()

	format := []types.PropertyDef{
		{Name: "id", Type: types.TypeUnsigned},
		{Name: "name", Type: types.TypeString, Nullable: true},
	}
	id, err := catalog.CreateSpaceEntry(ctx, "solution-owner", format)
	if err != nil {
		t.Fatalf("failed to create space: %v", err)
	}
	if id != FirstUserSpaceID {
		t.Errorf("expected first user space id %d, got %d", FirstUserSpaceID, id)
	}

	def, err := catalog.GetSpaceByName(ctx, "solution-owner")
	if err != nil {
		t.Fatalf("failed to get space: %v", err)
	}
	if def.ID != id || def.Name != "solution-owner" {
		t.Errorf("unexpected space %+v", def)
	}
	if !reflect.DeepEqual(def.Format, format) {
		t.Errorf("format mismatch: got %+v, want %+v", def.Format, format)
	}

	if _, err := catalog.CreateSpaceEntry(ctx, "solution-owner", nil); !errors.Is(err, ErrSpaceExists) {
		t.Errorf("expected ErrSpaceExists, got %v", err)
	}

	second, err := catalog.CreateSpaceEntry(ctx, "task", nil)
	if err != nil {
		t.Fatalf("failed to create space: %v", err)
	}
	if second != id+1 {
		t.Errorf("expected id %d, got %d", id+1, second)
	}

	spaces, err := catalog.ListSpaces(ctx)
	if err != nil {
		t.Fatalf("failed to list spaces: %v", err)
	}
	if len(spaces) != 2 || spaces[0].Name != "solution-owner" || spaces[1].Name != "task" {
		t.Errorf("unexpected spaces %+v", spaces)
	}
	if len(spaces[1].Format) != 0 {
		t.Errorf("expected empty format, got %+v", spaces[1].Format)
	}

	if _, err := catalog.GetSpaceByName(ctx, "missing"); !errors.Is(err, ErrSpaceNotFound) {
		t.Errorf("expected ErrSpaceNotFound, got %v", err)
	}
}

func TestCatalog_IndexLifecycle(t *testing.T) {
	catalog, cleanup := newTestCatalog(t)
	defer cleanup()
	ctx := context.Background()

	spaceID, err := catalog.CreateSpaceEntry(ctx, "task", nil)
	if err != nil {
		t.Fatalf("failed to create space: %v", err)
	}

	defs := []types.IndexDef{
		{Name: "id", Type: types.IndexHash, Unique: true, Parts: []types.IndexPart{{Field: 0, Type: types.TypeUnsigned}}},
		{Name: "year_month_day", Unique: false, Parts: []types.IndexPart{
			{Field: 1, Type: types.TypeUnsigned},
			{Field: 2, Type: types.TypeUnsigned},
			{Field: 3, Type: types.TypeUnsigned},
		}},
	}
	for i, def := range defs {
		iid, err := catalog.CreateIndexEntry(ctx, spaceID, def)
		if err != nil {
			t.Fatalf("failed to create index %s: %v", def.Name, err)
		}
		if iid != uint32(i) {
			t.Errorf("expected iid %d, got %d", i, iid)
		}
	}

	if _, err := catalog.CreateIndexEntry(ctx, spaceID, defs[0]); !errors.Is(err, ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
	if _, err := catalog.CreateIndexEntry(ctx, 9999, defs[0]); !errors.Is(err, ErrSpaceNotFound) {
		t.Errorf("expected ErrSpaceNotFound, got %v", err)
	}

	indexes, err := catalog.ListIndexesForSpace(ctx, spaceID)
	if err != nil {
		t.Fatalf("failed to list indexes: %v", err)
	}
	if len(indexes) != 2 {
		t.Fatalf("expected 2 indexes, got %d", len(indexes))
	}
	if indexes[1].Type != types.IndexTree {
		t.Errorf("expected default tree type, got %q", indexes[1].Type)
	}
	if indexes[1].Unique {
		t.Error("expected non-unique index")
	}
	if !reflect.DeepEqual(indexes[1].Parts, defs[1].Parts) {
		t.Errorf("parts mismatch: %+v", indexes[1].Parts)
	}

	if err := catalog.DropIndexEntry(ctx, spaceID, 1); err != nil {
		t.Fatalf("failed to drop index: %v", err)
	}
	if err := catalog.DropIndexEntry(ctx, spaceID, 1); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}

	// iids are never reused while a higher one exists
	iid, err := catalog.CreateIndexEntry(ctx, spaceID, defs[1])
	if err != nil {
		t.Fatalf("failed to recreate index: %v", err)
	}
	if iid != 1 {
		t.Errorf("expected iid 1 after dropping the highest index, got %d", iid)
	}

	if err := catalog.DropSpaceEntry(ctx, spaceID); err != nil {
		t.Fatalf("failed to drop space: %v", err)
	}
	indexes, err = catalog.ListIndexesForSpace(ctx, spaceID)
	if err != nil {
		t.Fatalf("failed to list indexes: %v", err)
	}
	if len(indexes) != 0 {
		t.Errorf("expected indexes to be dropped with the space, got %d", len(indexes))
	}
	if err := catalog.DropSpaceEntry(ctx, spaceID); !errors.Is(err, ErrSpaceNotFound) {
		t.Errorf("expected ErrSpaceNotFound, got %v", err)
	}
}

func TestCatalog_SetSpaceFormat(t *testing.T) {
	catalog, cleanup := newTestCatalog(t)
	defer cleanup()
	ctx := context.Background()

	id, err := catalog.CreateSpaceEntry(ctx, "person", nil)
	if err != nil {
		t.Fatalf("failed to create space: %v", err)
	}

	format := []types.PropertyDef{{Name: "gender", Type: types.TypeString, Default: "male"}}
	if err := catalog.SetSpaceFormat(ctx, id, format); err != nil {
		t.Fatalf("failed to set format: %v", err)
	}
	def, err := catalog.GetSpaceByName(ctx, "person")
	if err != nil {
		t.Fatalf("failed to get space: %v", err)
	}
	if len(def.Format) != 1 || def.Format[0].Default != "male" {
		t.Errorf("unexpected format %+v", def.Format)
	}

	if err := catalog.SetSpaceFormat(ctx, 4242, format); !errors.Is(err, ErrSpaceNotFound) {
		t.Errorf("expected ErrSpaceNotFound, got %v", err)
	}
}

func TestCatalog_KeyValue(t *testing.T) {
	catalog, cleanup := newTestCatalog(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := catalog.GetKey(ctx, "onceinsert"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}

	if err := catalog.PutKey(ctx, "onceinsert", []byte("1")); err != nil {
		t.Fatalf("failed to put key: %v", err)
	}
	if err := catalog.PutKey(ctx, "onceinsert", []byte("2")); err != nil {
		t.Fatalf("failed to overwrite key: %v", err)
	}
	if err := catalog.PutKey(ctx, "other", nil); err != nil {
		t.Fatalf("failed to put empty key: %v", err)
	}

	value, err := catalog.GetKey(ctx, "onceinsert")
	if err != nil {
		t.Fatalf("failed to get key: %v", err)
	}
	if string(value) != "2" {
		t.Errorf("expected overwritten value, got %q", value)
	}

	keys, err := catalog.ListKeys(ctx, "once")
	if err != nil {
		t.Fatalf("failed to list keys: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"onceinsert"}) {
		t.Errorf("unexpected keys %v", keys)
	}

	existed, err := catalog.DeleteKey(ctx, "onceinsert")
	if err != nil || !existed {
		t.Errorf("expected key to be deleted, existed=%v err=%v", existed, err)
	}
	existed, err = catalog.DeleteKey(ctx, "onceinsert")
	if err != nil || existed {
		t.Errorf("expected second delete to report absence, existed=%v err=%v", existed, err)
	}
}

func TestCatalog_VersionAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	catalog, err := NewCatalog(path)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	if catalog.Path() != path {
		t.Errorf("expected path %s, got %s", path, catalog.Path())
	}

	v0, err := catalog.Version(ctx)
	if err != nil {
		t.Fatalf("failed to read version: %v", err)
	}
	id, err := catalog.CreateSpaceEntry(ctx, "task", nil)
	if err != nil {
		t.Fatalf("failed to create space: %v", err)
	}
	if _, err := catalog.CreateIndexEntry(ctx, id, types.IndexDef{Name: "id", Unique: true,
		Parts: []types.IndexPart{{Field: 0, Type: types.TypeUnsigned}}}); err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	// the key-value area does not move the version
	if err := catalog.PutKey(ctx, "oncex", []byte{}); err != nil {
		t.Fatalf("failed to put key: %v", err)
	}
	v1, err := catalog.Version(ctx)
	if err != nil {
		t.Fatalf("failed to read version: %v", err)
	}
	if v1 != v0+2 {
		t.Errorf("expected version %d, got %d", v0+2, v1)
	}
	if err := catalog.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	reopened, err := NewCatalog(path)
	if err != nil {
		t.Fatalf("failed to reopen catalog: %v", err)
	}
	defer reopened.Close()

	v2, err := reopened.Version(ctx)
	if err != nil {
		t.Fatalf("failed to read version: %v", err)
	}
	if v2 != v1 {
		t.Errorf("version should survive reopen: got %d, want %d", v2, v1)
	}
	def, err := reopened.GetSpaceByName(ctx, "task")
	if err != nil {
		t.Fatalf("failed to get space after reopen: %v", err)
	}
	if def.ID != id {
		t.Errorf("expected id %d, got %d", id, def.ID)
	}
}
