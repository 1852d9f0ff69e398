package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "casediff"
	labelDomain      = "domain"
)

// Metrics holds the reconciliation counters. Every counter is labelled by
// domain.
type Metrics struct {
	caseDiffed       *prometheus.CounterVec
	caseHasDiff      *prometheus.CounterVec
	caseRebuild      *prometheus.CounterVec
	caseRebuildError *prometheus.CounterVec
	caseMissing      *prometheus.CounterVec
	ledgerDiffed     *prometheus.CounterVec
	ledgerRebuild    *prometheus.CounterVec
	ledgerHasDiff    *prometheus.CounterVec
}

func newCounter(subsystem, name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		[]string{labelDomain},
	)
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		caseDiffed:       newCounter("case", "diffed_total", "Cases reconciled"),
		caseHasDiff:      newCounter("case", "has_diff_total", "Cases left with unresolved diffs"),
		caseRebuild:      newCounter("case", "rebuild_total", "Document cases rebuilt from form history"),
		caseRebuildError: newCounter("case", "rebuild_error_total", "Document case rebuilds that failed"),
		caseMissing:      newCounter("case", "missing_total", "Cases present only in the document store"),
		ledgerDiffed:     newCounter("ledger", "diffed_total", "Ledger values reconciled"),
		ledgerRebuild:    newCounter("ledger", "rebuild_total", "Stock states reconstructed from transactions"),
		ledgerHasDiff:    newCounter("ledger", "has_diff_total", "Ledger values left with unresolved diffs"),
	}
	if reg != nil {
		reg.MustRegister(
			m.caseDiffed, m.caseHasDiff, m.caseRebuild, m.caseRebuildError,
			m.caseMissing, m.ledgerDiffed, m.ledgerRebuild, m.ledgerHasDiff,
		)
	}
	return m
}

func count(vec *prometheus.CounterVec, domain string, n int) {
	if n == 0 {
		return
	}
	vec.WithLabelValues(domain).Add(float64(n))
}
