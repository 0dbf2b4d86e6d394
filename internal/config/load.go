package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Load reads the configuration file at path, applies environment overrides
// and validates the result. The format is chosen by extension: .yaml, .yml
// or .cue. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		switch ext := filepath.Ext(path); ext {
		case ".yaml", ".yml":
			err = decodeYAML(data, cfg)
		case ".cue":
			err = decodeCUE(path, data, cfg)
		default:
			err = fmt.Errorf("unsupported config format %q", ext)
		}
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// decodeCUE evaluates a CUE file and decodes it over cfg. Fields absent from
// the file keep their defaults.
func decodeCUE(path string, data []byte, cfg *Config) error {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return fmt.Errorf("building CUE value: %w", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validating CUE value: %w", err)
	}

	if v := value.LookupPath(cue.ParsePath("database")); v.Exists() {
		if err := v.Decode(&cfg.Database); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if v := value.LookupPath(cue.ParsePath("mode")); v.Exists() {
		if err := v.Decode(&cfg.Mode); err != nil {
			return fmt.Errorf("mode: %w", err)
		}
	}
	if v := value.LookupPath(cue.ParsePath("prune")); v.Exists() {
		if err := v.Decode(&cfg.Prune); err != nil {
			return fmt.Errorf("prune: %w", err)
		}
	}

	// kinds is a struct keyed by kind name, matching how CUE files usually
	// declare named entries.
	kinds := value.LookupPath(cue.ParsePath("kinds"))
	if !kinds.Exists() {
		return nil
	}
	iter, err := kinds.Fields()
	if err != nil {
		return fmt.Errorf("iterating kinds: %w", err)
	}
	for iter.Next() {
		var k Kind
		if err := iter.Value().Decode(&k); err != nil {
			return fmt.Errorf("kinds.%s: %w", iter.Label(), err)
		}
		if k.Name == "" {
			k.Name = iter.Label()
		}
		cfg.Kinds = append(cfg.Kinds, k)
	}
	return nil
}
