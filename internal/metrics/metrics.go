package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "catalog"

// Outcome label values.
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeRotated    = "rotated"
	OutcomeStale      = "stale"
	OutcomeRecovered  = "recovered"
	OutcomeInvalid    = "invalid"
	OutcomeExpired    = "expired"
	OutcomeStoreError = "store_error"
	OutcomeRevoked    = "revoked"
	OutcomeNoRecord   = "no_record"
	OutcomeFastPath   = "fast_path"
	OutcomeRefreshed  = "refreshed"
	OutcomeRejected   = "rejected"
)

// Session counts session lifecycle events. A nil *Session is valid and
// records nothing.
type Session struct {
	logins     *prometheus.CounterVec
	refreshes  *prometheus.CounterVec
	revokes    *prometheus.CounterVec
	verifier   *prometheus.CounterVec
	recoveries prometheus.Counter
}

func NewSession(reg prometheus.Registerer) *Session {
	factory := promauto.With(reg)

	return &Session{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refreshes_total",
			Help:      "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		revokes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "revokes_total",
			Help:      "Logout revocations by outcome.",
		}, []string{"outcome"}),
		verifier: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "verifier_decisions_total",
			Help:      "Request verification decisions.",
		}, []string{"decision"}),
		recoveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "record_recoveries_total",
			Help:      "Refresh records re-created for valid tokens the store had lost.",
		}),
	}
}

func (s *Session) Login(outcome string) {
	if s == nil {
		return
	}
	s.logins.WithLabelValues(outcome).Inc()
}

func (s *Session) Refresh(outcome string) {
	if s == nil {
		return
	}
	s.refreshes.WithLabelValues(outcome).Inc()
}

func (s *Session) Revoke(outcome string) {
	if s == nil {
		return
	}
	s.revokes.WithLabelValues(outcome).Inc()
}

func (s *Session) Verify(decision string) {
	if s == nil {
		return
	}
	s.verifier.WithLabelValues(decision).Inc()
}

func (s *Session) Recovery() {
	if s == nil {
		return
	}
	s.recoveries.Inc()
}
