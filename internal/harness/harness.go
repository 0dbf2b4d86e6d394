package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/archivist/internal/archive"
	"github.com/roach88/archivist/internal/config"
	"github.com/roach88/archivist/internal/datastore"
	"github.com/roach88/archivist/internal/document"
	"github.com/roach88/archivist/internal/store"
	"github.com/roach88/archivist/internal/testutil"
)

// Harness executes one scenario against a fresh database.
type Harness struct {
	store    *store.Store
	ds       *datastore.Datastore
	archiver *archive.Archiver
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with retention passes
// run inline, so the final state is deterministic.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cfg := config.Default()
	cfg.Database = ":memory:"
	cfg.Kinds = scenario.Kinds
	if scenario.Mode != "" {
		cfg.Mode = scenario.Mode
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, cfg)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		event, err := h.execute(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		result.Trace = append(result.Trace, event)
		if event.Outcome != step.expected() {
			result.AddError(fmt.Sprintf("step %d %s %s/%s: expected %s, got %s",
				event.Step, step.Op, step.Kind, step.ID, step.expected(), event.Outcome))
		}
	}

	for _, msg := range EvaluateAssertions(ctx, h, result, scenario.Assertions) {
		result.AddError(msg)
	}

	if result.Collections, err = h.dump(ctx, cfg.Kinds); err != nil {
		return nil, err
	}
	return result, nil
}

func newHarness(st *store.Store, cfg *config.Config) (*Harness, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ds := datastore.New(st, logger)
	for _, m := range cfg.Mappings() {
		if _, err := ds.RegisterMapping(m); err != nil {
			return nil, err
		}
	}
	mode, err := archive.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	a, err := archive.New(ds, archive.Options{
		Declarations: cfg.Declarations(),
		Mode:         mode,
		Logger:       logger,
		Now:          testutil.NewDeterministicClock().Now,
	})
	if err != nil {
		return nil, err
	}
	return &Harness{store: st, ds: ds, archiver: a}, nil
}

// execute runs one step. Outcomes the scenario can expect are reported in
// the event; anything else aborts the run.
func (h *Harness) execute(ctx context.Context, n int, step Step) (TraceEvent, error) {
	event := TraceEvent{Step: n, Op: step.Op, Kind: step.Kind, ID: step.ID}

	m, err := h.ds.MappingFor(step.Kind)
	if err != nil {
		return event, err
	}
	versionField, err := m.VersionField()
	if err != nil {
		return event, err
	}

	live, err := h.ds.FindByID(ctx, step.Kind, step.ID)
	switch {
	case errors.Is(err, datastore.ErrNotFound):
		live = document.Document{document.IDField: step.ID}
	case err != nil:
		return event, err
	}
	if step.AsOf != nil {
		live[versionField] = *step.AsOf
	}

	var out document.Document
	switch step.Op {
	case OpSave:
		if len(step.Set) > 0 {
			set, ferr := document.FromValue(step.Set)
			if ferr != nil {
				return event, fmt.Errorf("set: %w", ferr)
			}
			for k, v := range set {
				live[k] = v
			}
		}
		out, err = h.ds.SaveDocument(ctx, step.Kind, live)
	case OpRollback:
		if step.To != nil {
			out, err = h.archiver.RollbackToVersion(ctx, step.Kind, live, *step.To)
		} else {
			out, err = h.archiver.Rollback(ctx, step.Kind, live)
		}
	case OpRevert:
		if step.To != nil {
			out, err = h.archiver.RevertToVersion(ctx, step.Kind, live, *step.To)
		} else {
			out, err = h.archiver.Revert(ctx, step.Kind, live)
		}
	case OpRestore:
		out, err = h.archiver.Restore(ctx, step.Kind, live, *step.To)
	}

	outcome, ok := classify(err)
	if !ok {
		return event, err
	}
	event.Outcome = outcome
	if err == nil && versionField != "" {
		v, verr := out.Int(versionField)
		if verr != nil {
			return event, verr
		}
		event.Version = &v
	}
	return event, nil
}

// classify maps an operation error to a step outcome. It reports false for
// errors no scenario can expect.
func classify(err error) (string, bool) {
	if err == nil {
		return OutcomeOK, true
	}
	var ae *archive.Error
	if errors.As(err, &ae) {
		return string(ae.Code), true
	}
	if errors.Is(err, datastore.ErrStaleVersion) {
		return OutcomeStale, true
	}
	return "", false
}

// dump reads the live collection and, for archived kinds, the archive
// collection of every kind, followed by any provenance records. Random _id
// values of archive and provenance documents are dropped.
func (h *Harness) dump(ctx context.Context, kinds []config.Kind) ([]CollectionDump, error) {
	var out []CollectionDump
	for _, k := range kinds {
		docs, err := h.store.Find(ctx, k.Collection, store.Where(), store.FindOptions{
			Sort: []store.SortKey{store.Asc(document.IDField)},
		})
		if err != nil {
			return nil, fmt.Errorf("dump %s: %w", k.Collection, err)
		}
		out = append(out, CollectionDump{Name: k.Collection, Docs: docs})

		reg, err := h.archiver.Registry().Resolve(ctx, k.Name)
		if err != nil || !reg.Enabled {
			continue
		}
		snaps, err := h.store.Find(ctx, reg.ArchiveCollection, store.Where(), store.FindOptions{
			Sort: []store.SortKey{store.Asc(archive.IdentityField), store.Asc(reg.VersionField)},
		})
		if err != nil {
			return nil, fmt.Errorf("dump %s: %w", reg.ArchiveCollection, err)
		}
		for _, s := range snaps {
			delete(s, document.IDField)
		}
		out = append(out, CollectionDump{Name: reg.ArchiveCollection, Docs: snaps})
	}

	records, err := h.store.Find(ctx, archive.ProvenanceCollection, store.Where(), store.FindOptions{
		Sort: []store.SortKey{store.Asc("at")},
	})
	if err != nil {
		return nil, fmt.Errorf("dump %s: %w", archive.ProvenanceCollection, err)
	}
	if len(records) > 0 {
		for _, r := range records {
			delete(r, document.IDField)
		}
		out = append(out, CollectionDump{Name: archive.ProvenanceCollection, Docs: records})
	}
	return out, nil
}
