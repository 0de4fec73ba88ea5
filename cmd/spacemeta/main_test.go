package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, out)
	return out
}

// writeConfig writes a config file for a data directory and a shared
// snapshot directory.
func writeConfig(t *testing.T, dataDir, snapshots string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spacemeta.yaml")
	cfg := fmt.Sprintf("data_dir: %s\nlog:\n  level: error\nsnapshot:\n  storage: local\n  path: %s\nadvisor:\n  threshold: 2\n", dataDir, snapshots)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

func TestCLI_SpaceLifecycleAndResolve(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), t.TempDir())

	mustExecute(t, "--config", cfg, "space", "create", "task",
		"id:unsigned", "year:unsigned", "month:unsigned", "day:unsigned",
		"--index", "id", "--index", "year,month,day")

	out := mustExecute(t, "--config", cfg, "--json", "resolve", "task", "month=1", "year=2017")
	var rv struct {
		Index struct {
			Name string `json:"name"`
		} `json:"index"`
		Values []any `json:"values"`
		Full   bool  `json:"full"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rv))
	assert.Equal(t, "year_month_day", rv.Index.Name)
	assert.Equal(t, []any{float64(2017), float64(1)}, rv.Values)
	assert.False(t, rv.Full)

	_, err := execute(t, "--config", cfg, "resolve", "task", "month=1", "day=2")
	require.Error(t, err)
	assert.Equal(t, "No index on task for [month, day]", apperrors.Message(err))

	mustExecute(t, "--config", cfg, "property", "add", "task", "note", "string", "--default", "none")
	mustExecute(t, "--config", cfg, "index", "create", "task", "month", "--non-unique")

	out = mustExecute(t, "--config", cfg, "space", "show", "task")
	assert.Contains(t, out, "note")
	assert.Contains(t, out, "year, month, day")

	out = mustExecute(t, "--config", cfg, "space", "list")
	assert.Contains(t, out, "task")

	_, err = execute(t, "--config", cfg, "property", "remove", "task", "day")
	assert.Error(t, err, "day is used by year_month_day")

	mustExecute(t, "--config", cfg, "index", "remove", "task", "month")
	mustExecute(t, "--config", cfg, "property", "nullable", "task", "note", "false")
	mustExecute(t, "--config", cfg, "space", "drop", "task")

	_, err = execute(t, "--config", cfg, "space", "show", "task")
	assert.Error(t, err)
}

func TestCLI_SnapshotExportImport(t *testing.T) {
	snapshots := t.TempDir()
	src := writeConfig(t, t.TempDir(), snapshots)
	dst := writeConfig(t, t.TempDir(), snapshots)

	mustExecute(t, "--config", src, "space", "create", "person", "id:unsigned", "name:string", "--index", "id")
	out := mustExecute(t, "--config", src, "snapshot", "export")
	assert.Contains(t, out, "exported 1 spaces")

	out = mustExecute(t, "--config", dst, "snapshot", "list")
	assert.Equal(t, 1, strings.Count(out, ".snap"))

	out = mustExecute(t, "--config", dst, "--json", "snapshot", "import")
	var report struct {
		CreatedSpaces  []string `json:"created_spaces"`
		CreatedIndexes []string `json:"created_indexes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, []string{"person"}, report.CreatedSpaces)
	assert.Equal(t, []string{"person.id"}, report.CreatedIndexes)

	out = mustExecute(t, "--config", dst, "space", "show", "person")
	assert.Contains(t, out, "name")
}

func TestCLI_AdviseFromFilterLog(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), t.TempDir())
	mustExecute(t, "--config", cfg, "space", "create", "task",
		"id:unsigned", "month:unsigned", "day:unsigned", "--index", "id")

	log := filepath.Join(t.TempDir(), "filters.log")
	require.NoError(t, os.WriteFile(log, []byte(`# nightly report
task month=1 day=2
task day=3 month=4

task id=1
task month=
`), 0644))

	out := mustExecute(t, "--config", cfg, "advise", log)
	assert.Contains(t, out, "replayed 3 filters, skipped 1")
	assert.Contains(t, out, "month_day")

	out = mustExecute(t, "--config", cfg, "advise", log, "--apply")
	assert.Contains(t, out, "CREATED")

	out = mustExecute(t, "--config", cfg, "--json", "resolve", "task", "day=1", "month=1")
	assert.Contains(t, out, `"name": "month_day"`)
}

func TestCLI_OnceAndVersion(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), t.TempDir())

	out := mustExecute(t, "--config", cfg, "once", "list")
	assert.Contains(t, out, "KEY")

	out = mustExecute(t, "--config", cfg, "once", "forget", "missing")
	assert.Contains(t, out, "was not recorded")

	out = mustExecute(t, "version")
	assert.Contains(t, out, "spacemeta version dev")
}

func TestParseFields(t *testing.T) {
	fields, err := parseFields([]string{"id:unsigned", "payload", "name:STR"})
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, "any", string(fields[1].Type))
	assert.Equal(t, "string", string(fields[2].Type))

	_, err = parseFields([]string{":unsigned"})
	assert.Error(t, err)
	_, err = parseFields([]string{"id:uuid"})
	assert.Error(t, err)
}
