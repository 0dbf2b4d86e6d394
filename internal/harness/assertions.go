package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/archivist/internal/datastore"
	"github.com/roach88/archivist/internal/document"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  %s\n", event)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(ctx context.Context, h *Harness, result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := h.evaluate(ctx, a, result.Trace); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func (h *Harness) evaluate(ctx context.Context, a Assertion, trace []TraceEvent) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: trace}
	}

	live, err := h.ds.FindByID(ctx, a.Kind, a.ID)
	if errors.Is(err, datastore.ErrNotFound) {
		return fail(fmt.Sprintf("live document %s/%s", a.Kind, a.ID), "not found")
	}
	if err != nil {
		return fail(fmt.Sprintf("live document %s/%s", a.Kind, a.ID), err.Error())
	}

	switch a.Type {
	case AssertLiveVersion:
		return h.assertLiveVersion(a, live, fail)
	case AssertLiveField:
		return assertLiveField(a, live, fail)
	case AssertArchivedVersions:
		return h.assertArchivedVersions(ctx, a, live, fail)
	case AssertProvenanceCount:
		records, err := h.archiver.Provenance(ctx, a.Kind, a.ID)
		if err != nil {
			return fail(fmt.Sprintf("%d provenance records", a.Count), err.Error())
		}
		if len(records) != a.Count {
			return fail(fmt.Sprintf("%d provenance records", a.Count), fmt.Sprintf("%d records", len(records)))
		}
		return nil
	default:
		return fail("known assertion type", a.Type)
	}
}

func (h *Harness) assertLiveVersion(a Assertion, live document.Document, fail func(string, string) error) error {
	m, err := h.ds.MappingFor(a.Kind)
	if err != nil {
		return fail(fmt.Sprintf("version %d", a.Version), err.Error())
	}
	field, err := m.VersionField()
	if err != nil {
		return fail(fmt.Sprintf("version %d", a.Version), err.Error())
	}
	v, err := live.Int(field)
	if err != nil {
		return fail(fmt.Sprintf("version %d", a.Version), err.Error())
	}
	if v != a.Version {
		return fail(fmt.Sprintf("version %d", a.Version), fmt.Sprintf("version %d", v))
	}
	return nil
}

// assertLiveField compares canonical encodings so YAML ints match stored
// int64 values.
func assertLiveField(a Assertion, live document.Document, fail func(string, string) error) error {
	want, err := canonicalValue(a.Value)
	if err != nil {
		return fail(fmt.Sprintf("%s = %v", a.Field, a.Value), err.Error())
	}
	got, ok := live[a.Field]
	if !ok {
		return fail(fmt.Sprintf("%s = %s", a.Field, want), "field absent")
	}
	gotJSON, err := document.MarshalCanonical(got)
	if err != nil {
		return fail(fmt.Sprintf("%s = %s", a.Field, want), err.Error())
	}
	if !bytes.Equal(want, gotJSON) {
		return fail(fmt.Sprintf("%s = %s", a.Field, want), fmt.Sprintf("%s = %s", a.Field, gotJSON))
	}
	return nil
}

func canonicalValue(v any) ([]byte, error) {
	doc, err := document.FromValue(map[string]any{"v": v})
	if err != nil {
		return nil, err
	}
	return document.MarshalCanonical(doc["v"])
}

func (h *Harness) assertArchivedVersions(ctx context.Context, a Assertion, live document.Document, fail func(string, string) error) error {
	want := fmt.Sprintf("archived versions %v", a.Versions)
	history, err := h.archiver.History(ctx, a.Kind, live)
	if err != nil {
		return fail(want, err.Error())
	}
	m, err := h.ds.MappingFor(a.Kind)
	if err != nil {
		return fail(want, err.Error())
	}
	field, err := m.VersionField()
	if err != nil {
		return fail(want, err.Error())
	}

	got := make([]int64, 0, len(history))
	for _, snap := range history {
		v, err := snap.Int(field)
		if err != nil {
			return fail(want, err.Error())
		}
		got = append(got, v)
	}
	if !slices.Equal(got, a.Versions) {
		return fail(want, fmt.Sprintf("archived versions %v", got))
	}
	return nil
}
