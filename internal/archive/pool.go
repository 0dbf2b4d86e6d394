package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/archivist/internal/store"
)

// Backpressure decides what PoolPruner does when its queue is full.
type Backpressure string

const (
	// Reject drops the task and logs a warning. The skipped snapshots stay
	// in the archive until a later pass for the same identity removes them.
	Reject Backpressure = "reject"

	// Block waits for queue space or for the caller's context to end.
	Block Backpressure = "block"
)

// ParseBackpressure parses a policy name. Empty means Reject.
func ParseBackpressure(s string) (Backpressure, error) {
	switch Backpressure(s) {
	case "", Reject:
		return Reject, nil
	case Block:
		return Block, nil
	default:
		return "", fmt.Errorf("unknown backpressure policy %q", s)
	}
}

// PoolOptions configures a PoolPruner.
type PoolOptions struct {
	// Workers defaults to 1.
	Workers int
	// QueueSize defaults to 64.
	QueueSize    int
	Backpressure Backpressure
	Logger       *slog.Logger
	Metrics      *Metrics
}

// PoolPruner runs retention passes on a fixed pool of workers fed by a
// bounded queue. Passes for one identity may run in any order: each is a
// delete below a threshold, so a stale pass only removes less.
//
// Thread-safety: Prune and Close are safe for concurrent use.
type PoolPruner struct {
	store        *store.Store
	logger       *slog.Logger
	metrics      *Metrics
	backpressure Backpressure

	tasks chan Task
	group *errgroup.Group

	mu     sync.RWMutex
	closed bool
}

// NewPoolPruner starts the workers.
func NewPoolPruner(st *store.Store, opts PoolOptions) *PoolPruner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Backpressure == "" {
		opts.Backpressure = Reject
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &PoolPruner{
		store:        st,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		backpressure: opts.Backpressure,
		tasks:        make(chan Task, opts.QueueSize),
		group:        &errgroup.Group{},
	}
	for i := 0; i < opts.Workers; i++ {
		p.group.Go(p.work)
	}
	return p
}

func (p *PoolPruner) work() error {
	for task := range p.tasks {
		// Tasks outlive the write that queued them.
		runTask(context.Background(), p.store, p.logger, p.metrics, task)
	}
	return nil
}

// Prune queues task. Under Reject a full queue drops the task; under Block
// the call waits until the task is queued or ctx is done. Tasks submitted
// after Close are dropped.
func (p *PoolPruner) Prune(ctx context.Context, task Task) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.reject(task, "pruner closed")
		return
	}

	if p.backpressure == Block {
		select {
		case p.tasks <- task:
		case <-ctx.Done():
			p.reject(task, "caller gave up waiting for queue space")
		}
		return
	}

	select {
	case p.tasks <- task:
	default:
		p.reject(task, "prune queue full")
	}
}

func (p *PoolPruner) reject(task Task, reason string) {
	p.metrics.pruneRejected()
	p.logger.Warn("prune task dropped",
		"reason", reason,
		"kind", task.Kind,
		"collection", task.Collection,
		"identity", task.Identity,
		"version", task.JustWritten)
}

// Close stops accepting tasks, drains the queue and waits for the workers.
// Calling Close more than once is safe.
func (p *PoolPruner) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	return p.group.Wait()
}
