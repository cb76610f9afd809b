package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSession_Counters(t *testing.T) {
	m := NewSession(prometheus.NewRegistry())

	m.Login(OutcomeSuccess)
	m.Login(OutcomeFailure)
	m.Login(OutcomeFailure)
	m.Refresh(OutcomeRotated)
	m.Revoke(OutcomeNoRecord)
	m.Verify(OutcomeFastPath)
	m.Recovery()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.logins.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues(OutcomeRotated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.revokes.WithLabelValues(OutcomeNoRecord)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifier.WithLabelValues(OutcomeFastPath)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recoveries))
}

func TestSession_NilIsNoop(t *testing.T) {
	var m *Session

	assert.NotPanics(t, func() {
		m.Login(OutcomeSuccess)
		m.Refresh(OutcomeInvalid)
		m.Revoke(OutcomeRevoked)
		m.Verify(OutcomeRejected)
		m.Recovery()
	})
}
