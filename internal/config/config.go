// Package config loads archivist configuration from YAML or CUE files with
// environment overrides.
package config

import (
	"fmt"

	"github.com/roach88/archivist/internal/archive"
	"github.com/roach88/archivist/internal/datastore"
	"github.com/roach88/archivist/internal/document"
)

// DefaultVersionField is used for kinds that do not name one.
const DefaultVersionField = "version"

// Config is the full archivist configuration.
type Config struct {
	// Database is the SQLite file path.
	Database string `json:"database" yaml:"database"`

	// Mode is the restore mode: destructive or append.
	Mode string `json:"mode" yaml:"mode"`

	Prune Prune `json:"prune" yaml:"prune"`

	Kinds []Kind `json:"kinds" yaml:"kinds"`
}

// Prune configures retention passes.
type Prune struct {
	// Workers is the prune pool size. Zero prunes inline.
	Workers int `json:"workers" yaml:"workers"`

	// QueueSize bounds the pool's task queue.
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// Backpressure is reject or block.
	Backpressure string `json:"backpressure" yaml:"backpressure"`
}

// Kind declares one document kind and its archive policy.
type Kind struct {
	Name       string `json:"name" yaml:"name"`
	Collection string `json:"collection" yaml:"collection"`

	// VersionField defaults to "version".
	VersionField string `json:"version_field,omitempty" yaml:"version_field,omitempty"`

	// ArchiveCollection defaults to "<collection>_archive".
	ArchiveCollection string `json:"archive_collection,omitempty" yaml:"archive_collection,omitempty"`

	// RetentionCount is the number of snapshots kept per document. Zero
	// disables archiving for the kind.
	RetentionCount int `json:"retention_count" yaml:"retention_count"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: "archivist.db",
		Mode:     string(archive.ModeDestructive),
		Prune: Prune{
			QueueSize:    64,
			Backpressure: string(archive.Reject),
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("config: database is required")
	}
	if _, err := archive.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := archive.ParseBackpressure(c.Prune.Backpressure); err != nil {
		return fmt.Errorf("config: prune: %w", err)
	}
	if c.Prune.Workers < 0 {
		return fmt.Errorf("config: prune: workers must not be negative")
	}
	if c.Prune.QueueSize < 0 {
		return fmt.Errorf("config: prune: queue_size must not be negative")
	}

	seen := make(map[string]bool, len(c.Kinds))
	for i, k := range c.Kinds {
		if k.Name == "" {
			return fmt.Errorf("config: kinds[%d]: name is required", i)
		}
		if seen[k.Name] {
			return fmt.Errorf("config: kind %q declared more than once", k.Name)
		}
		seen[k.Name] = true
		if k.Collection == "" {
			return fmt.Errorf("config: kind %q: collection is required", k.Name)
		}
		if k.VersionField != "" && !document.ValidFieldName(k.VersionField) {
			return fmt.Errorf("config: kind %q: invalid version_field %q", k.Name, k.VersionField)
		}
		if k.RetentionCount < 0 {
			return fmt.Errorf("config: kind %q: retention_count must not be negative", k.Name)
		}
	}
	return nil
}

// Kind returns the kind named name.
func (c *Config) Kind(name string) (Kind, bool) {
	for _, k := range c.Kinds {
		if k.Name == name {
			return k, true
		}
	}
	return Kind{}, false
}

// Mappings returns a datastore mapping per kind.
func (c *Config) Mappings() []datastore.Mapping {
	out := make([]datastore.Mapping, 0, len(c.Kinds))
	for _, k := range c.Kinds {
		out = append(out, datastore.Mapping{
			Kind:          k.Name,
			Collection:    k.Collection,
			VersionFields: []string{k.versionField()},
		})
	}
	return out
}

// Declarations returns an archive declaration per kind.
func (c *Config) Declarations() []archive.Declaration {
	out := make([]archive.Declaration, 0, len(c.Kinds))
	for _, k := range c.Kinds {
		out = append(out, archive.Declaration{
			Kind:              k.Name,
			ArchiveCollection: k.ArchiveCollection,
			RetentionCount:    k.RetentionCount,
			VersionField:      k.versionField(),
		})
	}
	return out
}

func (k Kind) versionField() string {
	if k.VersionField == "" {
		return DefaultVersionField
	}
	return k.VersionField
}
