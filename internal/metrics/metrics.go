package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsSubmitted tracks total jobs accepted by the registry
	JobsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ocrflow_jobs_submitted_total",
			Help: "Total number of jobs submitted",
		},
	)

	// JobsActive tracks jobs currently held by the registry
	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ocrflow_jobs_active",
			Help: "Number of jobs currently tracked in the registry",
		},
	)

	// ItemsProcessed tracks terminal item outcomes
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrflow_items_processed_total",
			Help: "Total number of work items that reached a terminal outcome",
		},
		[]string{"outcome"},
	)

	// ItemRetries tracks retry attempts beyond the first attempt
	ItemRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ocrflow_item_retries_total",
			Help: "Total number of retry attempts",
		},
	)

	// AutoPauses tracks watchdog-triggered pauses
	AutoPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ocrflow_auto_pauses_total",
			Help: "Total number of automatic pauses triggered by the error guard",
		},
	)

	// ItemDuration tracks per-item processing latency including retries
	ItemDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ocrflow_item_duration_seconds",
			Help:    "Work item processing latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CheckpointExports tracks checkpoint archive handoffs
	CheckpointExports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrflow_checkpoint_exports_total",
			Help: "Total number of checkpoint exports to the archive",
		},
		[]string{"status"},
	)

	// ArchiveDBPoolUsage tracks archive database connection pool usage percentage
	ArchiveDBPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ocrflow_archive_db_pool_usage_percent",
			Help: "Archive database connection pool usage percentage",
		},
	)
)
