package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveWithoutRegistration(t *testing.T) {
	before := testutil.ToFloat64(AuditWriteFailuresTotal.WithLabelValues(serviceName, "db"))
	ObserveAuditFailure("db")
	after := testutil.ToFloat64(AuditWriteFailuresTotal.WithLabelValues(serviceName, "db"))
	assert.Equal(t, before+1, after)

	ObserveSweep("sessions", 0)
	ObserveSweep("sessions", 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(SweepDeletedTotal.WithLabelValues(serviceName, "sessions")))
}
