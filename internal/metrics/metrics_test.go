package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/paulexconde/bizassess/pkg/fault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOperation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOperation("publish", time.Now(), nil)
	m.ObserveOperation("publish", time.Now(), fault.InvalidTransition("1", "not a draft"))
	m.ObserveOperation("publish", time.Now(), errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("publish", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("publish", "InvalidTransition")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("publish", "Unknown")))
}

func TestCounters(t *testing.T) {
	m := New(nil)

	m.VersionConflict()
	m.VersionConflict()
	m.StructureRejection("publish")
	m.AuditFinding("pointer_mismatch")
	m.SessionStarted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.VersionConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StructureRejected.WithLabelValues("publish")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditFindings.WithLabelValues("pointer_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsStarted))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("publish", time.Now(), nil)
		m.VersionConflict()
		m.StructureRejection("draft")
		m.AuditFinding("x")
		m.SessionStarted()
	})
}
