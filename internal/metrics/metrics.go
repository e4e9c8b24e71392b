// Package metrics exposes Prometheus counters for the link flows. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeStarted             = "started"
	OutcomeLinked              = "linked"
	OutcomeStateMismatch       = "state_mismatch"
	OutcomeInvalidGrant        = "invalid_grant"
	OutcomeProviderUnavailable = "provider_unavailable"
	OutcomePersistenceFailed   = "persistence_failed"

	OutcomeFresh     = "fresh"
	OutcomeRefreshed = "refreshed"
	OutcomeCoalesced = "coalesced"
	OutcomeFailed    = "failed"
	OutcomeNotLinked = "not_linked"

	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeRevoked = "revoked"
)

type Metrics struct {
	handshakes    *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	verifications *prometheus.CounterVec
}

// New registers the counters with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "link_handshakes_total",
			Help: "Provider authorization handshakes by outcome.",
		}, []string{"outcome"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "link_refreshes_total",
			Help: "Provider token freshness checks by outcome.",
		}, []string{"outcome"}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "link_session_verifications_total",
			Help: "Session credential verifications by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Handshake(outcome string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Verification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}
