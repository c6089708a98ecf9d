package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cmsconsole_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// AuditEntriesRecorded counts ledger appends by outcome (success|failed|error|rejected).
	AuditEntriesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmsconsole_audit_entries_recorded_total",
			Help: "Total number of audit ledger entries appended",
		},
		[]string{"status"},
	)

	// NotificationTransitions counts notification lifecycle changes
	// (created|read|read_all|deleted|deleted_all) by affected row count.
	NotificationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmsconsole_notification_transitions_total",
			Help: "Notifications affected by lifecycle operations",
		},
		[]string{"transition"},
	)

	// UnreadCacheLookups tracks unread-count cache usage (hit|miss|error|disabled).
	UnreadCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmsconsole_unread_cache_lookups_total",
			Help: "Unread notification count lookups by cache outcome",
		},
		[]string{"result"},
	)

	// AuditExports counts ledger exports by format and result.
	AuditExports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmsconsole_audit_exports_total",
			Help: "Audit ledger exports by format and result",
		},
		[]string{"format", "result"},
	)

	// AuditExportRows observes the number of rows written per successful export.
	AuditExportRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cmsconsole_audit_export_rows",
			Help:    "Rows written per audit export",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	// MaintenanceRuns counts scheduled maintenance job executions by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmsconsole_maintenance_runs_total",
			Help: "Maintenance job executions",
		},
		[]string{"job", "result"},
	)
)
