package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/archivist/internal/archive"
	"github.com/roach88/archivist/internal/datastore"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const yamlConfig = `database: data/docs.db
mode: append
prune:
  workers: 2
  queue_size: 16
  backpressure: block
kinds:
  - name: note
    collection: notes
    retention_count: 3
  - name: page
    collection: pages
    version_field: rev
    archive_collection: page_history
    retention_count: 5
`

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "archivist.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "data/docs.db", cfg.Database)
	assert.Equal(t, "append", cfg.Mode)
	assert.Equal(t, Prune{Workers: 2, QueueSize: 16, Backpressure: "block"}, cfg.Prune)
	require.Len(t, cfg.Kinds, 2)
	assert.Equal(t, Kind{Name: "note", Collection: "notes", RetentionCount: 3}, cfg.Kinds[0])
}

func TestLoad_YAMLRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeFile(t, "archivist.yml", "database: x.db\nretention: 3\n"))
	assert.Error(t, err)
}

const cueConfig = `
database: "data/docs.db"
mode:     "destructive"
prune: {
	workers:      1
	queue_size:   8
	backpressure: "reject"
}
kinds: {
	note: {
		collection:      "notes"
		retention_count: 3
	}
	page: {
		collection:         "pages"
		version_field:      "rev"
		archive_collection: "page_history"
		retention_count:    2 * 2
	}
}
`

func TestLoad_CUE(t *testing.T) {
	cfg, err := Load(writeFile(t, "archivist.cue", cueConfig))
	require.NoError(t, err)

	assert.Equal(t, "data/docs.db", cfg.Database)
	assert.Equal(t, Prune{Workers: 1, QueueSize: 8, Backpressure: "reject"}, cfg.Prune)
	require.Len(t, cfg.Kinds, 2)

	page, ok := cfg.Kind("page")
	require.True(t, ok)
	assert.Equal(t, Kind{
		Name:              "page",
		Collection:        "pages",
		VersionField:      "rev",
		ArchiveCollection: "page_history",
		RetentionCount:    4,
	}, page)
}

func TestLoad_CUEPartialKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "archivist.cue", `database: "other.db"`))
	require.NoError(t, err)

	assert.Equal(t, "other.db", cfg.Database)
	assert.Equal(t, "destructive", cfg.Mode)
	assert.Equal(t, 64, cfg.Prune.QueueSize)
}

func TestLoad_CUEIncomplete(t *testing.T) {
	_, err := Load(writeFile(t, "archivist.cue", `database: string`))
	assert.Error(t, err)
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	_, err := Load(writeFile(t, "archivist.toml", `database = "x"`))
	assert.ErrorContains(t, err, "unsupported config format")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Database, cfg.Database)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := applyEnv(cfg, env.Options{Environment: map[string]string{
		"ARCHIVIST_DB":                 "/tmp/env.db",
		"ARCHIVIST_MODE":               "append",
		"ARCHIVIST_PRUNE_WORKERS":      "4",
		"ARCHIVIST_PRUNE_QUEUE":        "0",
		"ARCHIVIST_PRUNE_BACKPRESSURE": "block",
	}})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env.db", cfg.Database)
	assert.Equal(t, "append", cfg.Mode)
	assert.Equal(t, Prune{Workers: 4, QueueSize: 0, Backpressure: "block"}, cfg.Prune)
}

func TestApplyEnv_UnsetKeepsValues(t *testing.T) {
	cfg := Default()
	cfg.Prune.Workers = 3
	require.NoError(t, applyEnv(cfg, env.Options{Environment: map[string]string{}}))

	assert.Equal(t, "archivist.db", cfg.Database)
	assert.Equal(t, 3, cfg.Prune.Workers)
	assert.Equal(t, 64, cfg.Prune.QueueSize)
}

func TestApplyEnv_InvalidNumber(t *testing.T) {
	err := applyEnv(Default(), env.Options{Environment: map[string]string{"ARCHIVIST_PRUNE_WORKERS": "many"}})
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("ARCHIVIST_DB", "override.db")
	cfg, err := Load(writeFile(t, "archivist.yaml", yamlConfig))
	require.NoError(t, err)
	assert.Equal(t, "override.db", cfg.Database)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database", func(c *Config) { c.Database = "" }},
		{"bad mode", func(c *Config) { c.Mode = "sideways" }},
		{"bad backpressure", func(c *Config) { c.Prune.Backpressure = "drop" }},
		{"negative workers", func(c *Config) { c.Prune.Workers = -1 }},
		{"negative queue", func(c *Config) { c.Prune.QueueSize = -1 }},
		{"unnamed kind", func(c *Config) { c.Kinds = []Kind{{Collection: "x"}} }},
		{"duplicate kind", func(c *Config) {
			c.Kinds = []Kind{{Name: "a", Collection: "a"}, {Name: "a", Collection: "b"}}
		}},
		{"no collection", func(c *Config) { c.Kinds = []Kind{{Name: "a"}} }},
		{"bad version field", func(c *Config) { c.Kinds = []Kind{{Name: "a", Collection: "a", VersionField: "a.b"}} }},
		{"negative retention", func(c *Config) { c.Kinds = []Kind{{Name: "a", Collection: "a", RetentionCount: -2}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestMappingsAndDeclarations(t *testing.T) {
	cfg, err := Load(writeFile(t, "archivist.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, []datastore.Mapping{
		{Kind: "note", Collection: "notes", VersionFields: []string{"version"}},
		{Kind: "page", Collection: "pages", VersionFields: []string{"rev"}},
	}, cfg.Mappings())

	assert.Equal(t, []archive.Declaration{
		{Kind: "note", RetentionCount: 3, VersionField: "version"},
		{Kind: "page", ArchiveCollection: "page_history", RetentionCount: 5, VersionField: "rev"},
	}, cfg.Declarations())
}
