package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "archivist"
	metricsSubsystem = "archive"
)

// Metrics holds the archive's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// SnapshotsTotal counts snapshots written.
	// Labels: kind
	SnapshotsTotal *prometheus.CounterVec

	// DuplicatesTotal counts snapshot inserts rejected as duplicates.
	// Labels: kind
	DuplicatesTotal *prometheus.CounterVec

	// PrunedTotal counts archive entries removed by retention.
	// Labels: collection
	PrunedTotal *prometheus.CounterVec

	// PruneFailuresTotal counts prune tasks that failed.
	// Labels: collection
	PruneFailuresTotal *prometheus.CounterVec

	// PruneRejectedTotal counts prune tasks dropped by a saturated pool.
	PruneRejectedTotal prometheus.Counter

	// RestoresTotal counts rollbacks and reverts.
	// Labels: kind, mode (destructive, append)
	RestoresTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SnapshotsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "snapshots_total",
				Help:      "Total number of snapshots written by kind",
			},
			[]string{"kind"},
		),
		DuplicatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "duplicate_snapshots_total",
				Help:      "Total number of snapshot inserts that found the version already archived",
			},
			[]string{"kind"},
		),
		PrunedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "pruned_total",
				Help:      "Total number of archive entries removed by retention",
			},
			[]string{"collection"},
		),
		PruneFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "prune_failures_total",
				Help:      "Total number of prune tasks that failed",
			},
			[]string{"collection"},
		),
		PruneRejectedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "prune_rejected_total",
				Help:      "Total number of prune tasks dropped because the queue was full",
			},
		),
		RestoresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "restores_total",
				Help:      "Total number of rollbacks and reverts by kind and mode",
			},
			[]string{"kind", "mode"},
		),
	}
}

func (m *Metrics) snapshot(kind string) {
	if m != nil {
		m.SnapshotsTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) duplicate(kind string) {
	if m != nil {
		m.DuplicatesTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) pruned(collection string, n int64) {
	if m != nil && n > 0 {
		m.PrunedTotal.WithLabelValues(collection).Add(float64(n))
	}
}

func (m *Metrics) pruneFailed(collection string) {
	if m != nil {
		m.PruneFailuresTotal.WithLabelValues(collection).Inc()
	}
}

func (m *Metrics) pruneRejected() {
	if m != nil {
		m.PruneRejectedTotal.Inc()
	}
}

func (m *Metrics) restored(kind string, mode Mode) {
	if m != nil {
		m.RestoresTotal.WithLabelValues(kind, string(mode)).Inc()
	}
}
