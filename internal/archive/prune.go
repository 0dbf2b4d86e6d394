package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/archivist/internal/store"
)

// Task is one retention pass for one identity.
type Task struct {
	Kind         string
	Collection   string
	VersionField string
	Identity     any
	// JustWritten is the version tag of the snapshot that triggered the pass.
	JustWritten int64
	Count       int
}

// Threshold is the highest version tag the pass removes. Negative means
// there is nothing to remove yet.
func (t Task) Threshold() int64 {
	return t.JustWritten - int64(t.Count)
}

func taskFor(reg *Registration, identity any, justWritten int64) Task {
	return Task{
		Kind:         reg.Kind,
		Collection:   reg.ArchiveCollection,
		VersionField: reg.VersionField,
		Identity:     identity,
		JustWritten:  justWritten,
		Count:        reg.Count,
	}
}

// Pruner runs retention passes. Implementations never report failures to
// the caller: retention is best-effort and under-pruning is safe.
type Pruner interface {
	Prune(ctx context.Context, task Task)
}

// PruneNow deletes the archive entries of task.Identity with a version tag
// at or below the threshold and returns how many were removed. Other
// identities are never touched.
func PruneNow(ctx context.Context, st *store.Store, task Task) (int64, error) {
	threshold := task.Threshold()
	if threshold < 0 {
		return 0, nil
	}
	removed, err := st.Remove(ctx, task.Collection, store.Where(
		store.Eq(IdentityField, task.Identity),
		store.Lte(task.VersionField, threshold),
	))
	if err != nil {
		return 0, fmt.Errorf("prune %s %v below %d: %w", task.Collection, task.Identity, threshold, err)
	}
	return removed, nil
}

// InlinePruner prunes synchronously on the caller's goroutine.
type InlinePruner struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *Metrics
}

// NewInlinePruner creates an InlinePruner.
func NewInlinePruner(st *store.Store, logger *slog.Logger, metrics *Metrics) *InlinePruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlinePruner{store: st, logger: logger, metrics: metrics}
}

// Prune implements Pruner.
func (p *InlinePruner) Prune(ctx context.Context, task Task) {
	runTask(ctx, p.store, p.logger, p.metrics, task)
}

func runTask(ctx context.Context, st *store.Store, logger *slog.Logger, metrics *Metrics, task Task) {
	removed, err := PruneNow(ctx, st, task)
	if err != nil {
		metrics.pruneFailed(task.Collection)
		logger.Warn("prune failed",
			"kind", task.Kind,
			"collection", task.Collection,
			"identity", task.Identity,
			"error", err)
		return
	}
	metrics.pruned(task.Collection, removed)
	if removed > 0 {
		logger.Debug("archive pruned",
			"kind", task.Kind,
			"collection", task.Collection,
			"identity", task.Identity,
			"removed", removed)
	}
}
