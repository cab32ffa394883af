// Package metrics exposes Prometheus instrumentation for the metadata
// engine. All methods are nil-receiver safe so callers never need to guard
// on metrics being enabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics counts the engine's externally meaningful events.
type EngineMetrics struct {
	filesCreated      prometheus.Counter
	filesFinalized    prometheus.Counter
	blocksAdded       prometheus.Counter
	blocksCollected   prometheus.Counter
	truncations       prometheus.Counter
	diffsRecorded     prometheus.Counter
	quotaComputations prometheus.Counter
}

// NewEngineMetrics registers the engine counters with the given registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	factory := promauto.With(reg)
	return &EngineMetrics{
		filesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dittometa",
			Subsystem: "engine",
			Name:      "files_created_total",
			Help:      "Number of file entries created.",
		}),
		filesFinalized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dittometa",
			Subsystem: "engine",
			Name:      "files_finalized_total",
			Help:      "Number of files moved from under-construction to complete.",
		}),
		blocksAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dittometa",
			Subsystem: "engine",
			Name:      "blocks_added_total",
			Help:      "Number of blocks appended to file block sequences.",
		}),
		blocksCollected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dittometa",
			Subsystem: "engine",
			Name:      "blocks_collected_total",
			Help:      "Number of blocks scheduled for deletion.",
		}),
		truncations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dittometa",
			Subsystem: "engine",
			Name:      "truncations_total",
			Help:      "Number of block-sequence truncations.",
		}),
		diffsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dittometa",
			Subsystem: "engine",
			Name:      "snapshot_diffs_recorded_total",
			Help:      "Number of snapshot diffs recorded on file modification.",
		}),
		quotaComputations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dittometa",
			Subsystem: "engine",
			Name:      "quota_computations_total",
			Help:      "Number of full quota usage computations.",
		}),
	}
}

// IncFilesCreated increments the file-creation counter.
func (m *EngineMetrics) IncFilesCreated() {
	if m != nil {
		m.filesCreated.Inc()
	}
}

// IncFilesFinalized increments the file-finalization counter.
func (m *EngineMetrics) IncFilesFinalized() {
	if m != nil {
		m.filesFinalized.Inc()
	}
}

// IncBlocksAdded increments the block-append counter.
func (m *EngineMetrics) IncBlocksAdded() {
	if m != nil {
		m.blocksAdded.Inc()
	}
}

// AddBlocksCollected adds n to the collected-blocks counter.
func (m *EngineMetrics) AddBlocksCollected(n int) {
	if m != nil {
		m.blocksCollected.Add(float64(n))
	}
}

// IncTruncations increments the truncation counter.
func (m *EngineMetrics) IncTruncations() {
	if m != nil {
		m.truncations.Inc()
	}
}

// IncDiffsRecorded increments the snapshot-diff counter.
func (m *EngineMetrics) IncDiffsRecorded() {
	if m != nil {
		m.diffsRecorded.Inc()
	}
}

// IncQuotaComputations increments the quota-computation counter.
func (m *EngineMetrics) IncQuotaComputations() {
	if m != nil {
		m.quotaComputations.Inc()
	}
}
