// Package metrics expõe contadores Prometheus das decisões de admissão.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeAllow  = "allow"
	OutcomeReject = "reject"

	SourcePassList   = "passlist"
	SourceBlockList  = "blocklist"
	SourceFilter     = "filter"
	SourceLinkLocal  = "link_local"
	SourceStoreError = "store_error"
	SourceChain      = "chain"
)

type Metrics struct {
	decisions   *prometheus.CounterVec
	storeErrors prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botdetection",
			Name:      "decisions_total",
			Help:      "Admission decisions by outcome and the stage that produced them.",
		}, []string{"outcome", "source"}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botdetection",
			Name:      "store_errors_total",
			Help:      "Shared store failures seen while evaluating filters.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.storeErrors)
	}
	return m
}

// Decisions exposes the decision counter vector for scraping in tests and
// custom collectors.
func (m *Metrics) Decisions() *prometheus.CounterVec {
	return m.decisions
}

// ObserveDecision is safe on a nil receiver.
func (m *Metrics) ObserveDecision(outcome, source string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome, source).Inc()
}

func (m *Metrics) ObserveStoreError() {
	if m == nil {
		return
	}
	m.storeErrors.Inc()
}
