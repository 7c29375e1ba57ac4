// Package metrics exposes Prometheus counters for account operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Outcome labels recorded for each operation.
const (
	OutcomeSuccess      = "success"
	OutcomeRejected     = "rejected"
	OutcomeInvalidInput = "invalid_input"
	OutcomeError        = "error"
)

// Metrics groups the counters the credential service updates.
type Metrics struct {
	Operations    *prometheus.CounterVec
	EmailFailures *prometheus.CounterVec
	TokensIssued  *prometheus.CounterVec
	registry      *prometheus.Registry
}

// New creates the counters on a private registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obaatanpa_account_operations_total",
				Help: "Account operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		EmailFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obaatanpa_email_dispatch_failures_total",
				Help: "Emails that could not be handed to the mail relay, by kind",
			},
			[]string{"kind"},
		),
		TokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obaatanpa_tokens_issued_total",
				Help: "One-time tokens issued, by class",
			},
			[]string{"class"},
		),
		registry: reg,
	}

	reg.MustRegister(m.Operations, m.EmailFailures, m.TokensIssued)
	return m
}

// Registry is the gatherer served on /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records one operation outcome. A nil receiver is a no-op.
func (m *Metrics) Observe(operation, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

// EmailFailed records a failed email dispatch.
func (m *Metrics) EmailFailed(kind string) {
	if m == nil {
		return
	}
	m.EmailFailures.WithLabelValues(kind).Inc()
}

// TokenIssued records a one-time token of the given class.
func (m *Metrics) TokenIssued(class string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(class).Inc()
}
