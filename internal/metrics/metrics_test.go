package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *SchedulingMetrics
	assert.NotPanics(t, func() {
		m.ObserveSlotOp("reserve", "ok")
		m.ObserveTransition("requested", "confirmed")
		m.ObserveGeneration(3, 1)
		m.ObserveHTTP("GET", "200", 0.01)
	})
}

func TestCounters(t *testing.T) {
	m := NewSchedulingMetrics(prometheus.NewRegistry())

	m.ObserveSlotOp("reserve", "ok")
	m.ObserveSlotOp("reserve", "conflict")
	m.ObserveSlotOp("reserve", "conflict")
	m.ObserveTransition("confirmed", "cancelled")
	m.ObserveGeneration(5, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.slotOps.WithLabelValues("reserve", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.slotOps.WithLabelValues("reserve", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("confirmed", "cancelled")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.generatedSlots.WithLabelValues("created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.generatedSlots.WithLabelValues("failed")))
}

func TestHTTPHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveHTTP("POST", "409", 0.02)

	assert.Equal(t, 1, testutil.CollectAndCount(m.httpLatency))
}
