package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/archivist/internal/archive"
	"github.com/roach88/archivist/internal/config"
)

// Scenario is one conformance test.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Mode is the restore mode used by restore steps. Defaults to
	// destructive.
	Mode string `yaml:"mode,omitempty"`

	// Kinds are declared exactly like the kinds of a config file.
	Kinds []config.Kind `yaml:"kinds"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step operations.
const (
	OpSave     = "save"
	OpRollback = "rollback"
	OpRevert   = "revert"
	OpRestore  = "restore"
)

// OutcomeOK is the outcome of a step that succeeded.
const OutcomeOK = "ok"

// OutcomeStale is the outcome of a save rejected by the version check.
const OutcomeStale = "STALE"

// Step is one operation on one document.
type Step struct {
	Op   string `yaml:"op"`
	Kind string `yaml:"kind"`
	ID   string `yaml:"id"`

	// Set holds the fields a save step writes.
	Set map[string]any `yaml:"set,omitempty"`

	// To is the target version of a restore.
	To *int64 `yaml:"to,omitempty"`

	// AsOf overrides the version the step reads from the live document.
	AsOf *int64 `yaml:"as_of,omitempty"`

	// Expect is the expected outcome. Empty means ok.
	Expect string `yaml:"expect,omitempty"`
}

func (s Step) expected() string {
	if s.Expect == "" {
		return OutcomeOK
	}
	return s.Expect
}

// Assertion checks the final state.
type Assertion struct {
	Type string `yaml:"type"`
	Kind string `yaml:"kind"`
	ID   string `yaml:"id"`

	// Version is used by live_version.
	Version int64 `yaml:"version,omitempty"`

	// Field and Value are used by live_field.
	Field string `yaml:"field,omitempty"`
	Value any    `yaml:"value,omitempty"`

	// Versions is used by archived_versions.
	Versions []int64 `yaml:"versions,omitempty"`

	// Count is used by provenance_count.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertLiveVersion      = "live_version"
	AssertLiveField        = "live_field"
	AssertArchivedVersions = "archived_versions"
	AssertProvenanceCount  = "provenance_count"
)

var outcomes = map[string]bool{
	OutcomeOK:                         true,
	OutcomeStale:                      true,
	string(archive.CodeConfiguration): true,
	string(archive.CodeNotFound):      true,
	string(archive.CodeConcurrency):   true,
	string(archive.CodeSchema):        true,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Kinds) == 0 {
		return fmt.Errorf("kinds list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	kinds := make(map[string]bool, len(s.Kinds))
	for _, k := range s.Kinds {
		kinds[k.Name] = true
	}

	for i, step := range s.Steps {
		switch step.Op {
		case OpSave, OpRollback, OpRevert:
		case OpRestore:
			if step.To == nil {
				return fmt.Errorf("steps[%d]: restore requires to", i)
			}
		case "":
			return fmt.Errorf("steps[%d]: op is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if !kinds[step.Kind] {
			return fmt.Errorf("steps[%d]: undeclared kind %q", i, step.Kind)
		}
		if step.ID == "" {
			return fmt.Errorf("steps[%d]: id is required", i)
		}
		if !outcomes[step.expected()] {
			return fmt.Errorf("steps[%d]: unknown outcome %q", i, step.Expect)
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertLiveVersion, AssertArchivedVersions, AssertProvenanceCount:
		case AssertLiveField:
			if a.Field == "" {
				return fmt.Errorf("assertions[%d]: live_field requires field", i)
			}
		default:
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
		if !kinds[a.Kind] || a.ID == "" {
			return fmt.Errorf("assertions[%d]: kind and id must name a declared document", i)
		}
	}
	return nil
}
