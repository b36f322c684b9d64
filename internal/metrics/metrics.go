// Package metrics exposes the runtime's Prometheus instrumentation. It is
// ambient observability carried from the teacher's prometheus/client_golang
// usage (internal/memorystore/stats.go) even though spec.md's Non-goals
// exclude high-availability/failover, not metrics export.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every counter/gauge the runtime updates. A nil *Registry
// is valid everywhere it is threaded through: every method is a no-op on a
// nil receiver so components never need a "metrics enabled" branch.
type Registry struct {
	ScanCycles        prometheus.Counter
	ScanCycleDuration  prometheus.Histogram
	PendingBinaryDepth prometheus.Gauge
	PendingAnalogDepth prometheus.Gauge
	TagWrites          *prometheus.CounterVec
	ProtocolPDUs       *prometheus.CounterVec
	ProtocolErrors     *prometheus.CounterVec
	LogicLineErrors    prometheus.Counter
}

// New registers and returns a fresh Registry against reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		ScanCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bennu", Subsystem: "scan", Name: "cycles_total",
			Help: "Number of completed scan cycles.",
		}),
		ScanCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bennu", Subsystem: "scan", Name: "cycle_duration_seconds",
			Help: "Wall-clock duration of a single scan cycle.",
		}),
		PendingBinaryDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bennu", Subsystem: "tagmanager", Name: "pending_binary_depth",
			Help: "Number of entries in the pending binary update map.",
		}),
		PendingAnalogDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bennu", Subsystem: "tagmanager", Name: "pending_analog_depth",
			Help: "Number of entries in the pending analog update map.",
		}),
		TagWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bennu", Subsystem: "tagmanager", Name: "writes_total",
			Help: "Number of tag writes by class.",
		}, []string{"class"}),
		ProtocolPDUs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bennu", Subsystem: "protocol", Name: "pdus_total",
			Help: "Number of protocol PDUs handled, by protocol and direction.",
		}, []string{"protocol", "direction"}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bennu", Subsystem: "protocol", Name: "errors_total",
			Help: "Number of protocol-level errors, by protocol and kind.",
		}, []string{"protocol", "kind"}),
		LogicLineErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bennu", Subsystem: "logic", Name: "line_errors_total",
			Help: "Number of logic lines skipped due to a parse/eval error.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ScanCycles, m.ScanCycleDuration, m.PendingBinaryDepth,
			m.PendingAnalogDepth, m.TagWrites, m.ProtocolPDUs,
			m.ProtocolErrors, m.LogicLineErrors,
		)
	}
	return m
}

func (m *Registry) incTagWrite(class string) {
	if m == nil {
		return
	}
	m.TagWrites.WithLabelValues(class).Inc()
}

// IncTagWriteBinary records a binary tag write.
func (m *Registry) IncTagWriteBinary() { m.incTagWrite("binary") }

// IncTagWriteAnalog records an analog tag write.
func (m *Registry) IncTagWriteAnalog() { m.incTagWrite("analog") }

// SetPendingDepths updates the pending-queue depth gauges.
func (m *Registry) SetPendingDepths(binary, analog int) {
	if m == nil {
		return
	}
	m.PendingBinaryDepth.Set(float64(binary))
	m.PendingAnalogDepth.Set(float64(analog))
}

// IncProtocolPDU records one handled PDU for protocol/direction (e.g.
// "modbus"/"in", "iec104"/"out").
func (m *Registry) IncProtocolPDU(protocol, direction string) {
	if m == nil {
		return
	}
	m.ProtocolPDUs.WithLabelValues(protocol, direction).Inc()
}

// IncProtocolError records one protocol-level error of the given kind (e.g.
// "unknown-address").
func (m *Registry) IncProtocolError(protocol, kind string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(protocol, kind).Inc()
}

// IncLogicLineError records one skipped logic line.
func (m *Registry) IncLogicLineError() {
	if m == nil {
		return
	}
	m.LogicLineErrors.Inc()
}

// ObserveScanCycle records one completed scan cycle of the given duration
// in seconds.
func (m *Registry) ObserveScanCycle(seconds float64) {
	if m == nil {
		return
	}
	m.ScanCycles.Inc()
	m.ScanCycleDuration.Observe(seconds)
}
