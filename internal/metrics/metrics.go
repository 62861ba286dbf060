// Package metrics holds the Prometheus collectors of the version lifecycle.
package metrics

import (
	"time"

	"github.com/paulexconde/bizassess/pkg/fault"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bizassess"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	VersionConflicts  prometheus.Counter
	StructureRejected *prometheus.CounterVec
	AuditFindings     *prometheus.CounterVec
	SessionsStarted   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "version_operations_total",
				Help:      "Lifecycle operations by name and outcome kind",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "version_operation_duration_seconds",
				Help:      "Duration of lifecycle operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		VersionConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "version_number_conflicts_total",
				Help:      "Version number collisions that triggered a retry",
			},
		),
		StructureRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "structure_rejections_total",
				Help:      "Structures rejected by validation, by stage",
			},
			[]string{"stage"},
		),
		AuditFindings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "integrity_findings_total",
				Help:      "Integrity audit findings by code",
			},
			[]string{"code"},
		),
		SessionsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_started_total",
				Help:      "Sessions pinned to a published version",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.Operations,
			m.OperationDuration,
			m.VersionConflicts,
			m.StructureRejected,
			m.AuditFindings,
			m.SessionsStarted,
		)
	}
	return m
}

// ObserveOperation records outcome and latency of a lifecycle operation.
func (m *Metrics) ObserveOperation(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = fault.KindOf(err).String()
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) VersionConflict() {
	if m == nil {
		return
	}
	m.VersionConflicts.Inc()
}

func (m *Metrics) StructureRejection(stage string) {
	if m == nil {
		return
	}
	m.StructureRejected.WithLabelValues(stage).Inc()
}

func (m *Metrics) AuditFinding(code string) {
	if m == nil {
		return
	}
	m.AuditFindings.WithLabelValues(code).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}
