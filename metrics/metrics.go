// Package metrics exposes Prometheus instrumentation for context
// operations.
package metrics

import (
	"time"

	gometrics "github.com/docker/go-metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records operation counts and durations. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ns         *gometrics.Namespace
	operations gometrics.LabeledCounter
	failures   gometrics.LabeledCounter
	durations  gometrics.LabeledTimer
}

// New creates the gpgme metric namespace. Register it with Register or
// pass it to a prometheus.Registerer yourself.
func New() *Metrics {
	ns := gometrics.NewNamespace("gpgme", "context", nil)
	m := &Metrics{
		ns:         ns,
		operations: ns.NewLabeledCounter("operations", "The number of operations run by contexts", "operation"),
		failures:   ns.NewLabeledCounter("operation_failures", "The number of operations that failed", "operation"),
		durations:  ns.NewLabeledTimer("operation_duration", "The number of seconds each operation takes", "operation"),
	}
	return m
}

// Register adds the metrics to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.ns)
}

// Collector returns the underlying collector.
func (m *Metrics) Collector() prometheus.Collector {
	return m.ns
}

// Observe records one finished operation.
func (m *Metrics) Observe(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.operations.WithValues(operation).Inc()
	if err != nil {
		m.failures.WithValues(operation).Inc()
	}
	m.durations.WithValues(operation).Update(d)
}
