package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/archivist/internal/document"
)

// Golden renders the trace and final collections of a run. Documents are
// canonical JSON, one per line.
func (r *Result) Golden(name string) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario %s\n", name)
	for _, event := range r.Trace {
		fmt.Fprintf(&buf, "%s\n", event)
	}
	for _, c := range r.Collections {
		fmt.Fprintf(&buf, "== %s\n", c.Name)
		for _, doc := range c.Docs {
			line, err := document.MarshalCanonical(doc)
			if err != nil {
				return nil, fmt.Errorf("golden %s: %w", c.Name, err)
			}
			buf.Write(line)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its trace and final state
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	out, err := result.Golden(name)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, out)
	return nil
}
