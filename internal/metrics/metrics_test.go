package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCountsByLabel(t *testing.T) {
	m := New()

	m.Observe("login", OutcomeSuccess)
	m.Observe("login", OutcomeSuccess)
	m.Observe("login", OutcomeRejected)
	m.EmailFailed("verification")
	m.TokenIssued("verification")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("login", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("login", OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailFailures.WithLabelValues("verification")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensIssued.WithLabelValues("verification")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Observe("signup", OutcomeSuccess)
		m.EmailFailed("verification")
		m.TokenIssued("password_reset")
	})
}
