// Package metrics exposes Prometheus counters for the pipeline core. A nil
// *Metrics is a valid no-op sink, so instrumentation is opt-in.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the core's counters, registered on an explicit registry.
type Metrics struct {
	transactions prometheus.Counter
	checkpoints  prometheus.Counter
	auditRuns    prometheus.Counter
	genRetries   prometheus.Counter
	verdicts     *prometheus.CounterVec
}

// New creates the counter set and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conductor_store_transactions_total",
			Help: "Committed store transactions.",
		}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conductor_store_checkpoints_total",
			Help: "Store checkpoints written.",
		}),
		auditRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conductor_audit_runs_total",
			Help: "Full completeness audit runs.",
		}),
		genRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conductor_generation_retries_total",
			Help: "Generation validation-retry cycles beyond the first attempt.",
		}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_review_verdicts_total",
			Help: "Unified review verdicts by outcome.",
		}, []string{"verdict"}),
	}

	reg.MustRegister(m.transactions, m.checkpoints, m.auditRuns, m.genRetries, m.verdicts)
	return m
}

// IncTransactions counts one committed store transaction.
func (m *Metrics) IncTransactions() {
	if m == nil {
		return
	}
	m.transactions.Inc()
}

// IncCheckpoints counts one checkpoint write.
func (m *Metrics) IncCheckpoints() {
	if m == nil {
		return
	}
	m.checkpoints.Inc()
}

// IncAuditRuns counts one full audit run.
func (m *Metrics) IncAuditRuns() {
	if m == nil {
		return
	}
	m.auditRuns.Inc()
}

// IncGenerationRetries counts one generation retry cycle.
func (m *Metrics) IncGenerationRetries() {
	if m == nil {
		return
	}
	m.genRetries.Inc()
}

// ObserveVerdict counts one unified review verdict.
func (m *Metrics) ObserveVerdict(verdict string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(verdict).Inc()
}
