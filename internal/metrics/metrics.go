package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters for slot and appointment operations.
// All methods are safe on a nil receiver.
type SchedulingMetrics struct {
	slotOps        *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	generatedSlots *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		slotOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "slot_operations_total",
			Help:      "Slot store operations by outcome",
		}, []string{"op", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "appointment_transitions_total",
			Help:      "Appointment status changes",
		}, []string{"from", "to"}),
		generatedSlots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "generated_slots_total",
			Help:      "Slot candidates handled by bulk generation",
		}, []string{"result"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotOps, m.transitions, m.generatedSlots, m.httpLatency)
	return m
}

func (m *SchedulingMetrics) ObserveSlotOp(op, result string) {
	if m == nil {
		return
	}
	m.slotOps.WithLabelValues(op, result).Inc()
}

func (m *SchedulingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *SchedulingMetrics) ObserveGeneration(created, failed int) {
	if m == nil {
		return
	}
	m.generatedSlots.WithLabelValues("created").Add(float64(created))
	m.generatedSlots.WithLabelValues("failed").Add(float64(failed))
}

func (m *SchedulingMetrics) ObserveHTTP(method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, status).Observe(seconds)
}
