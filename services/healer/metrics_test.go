package healer

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.observeInvocation(200, 150*time.Millisecond)
	m.observeInvocation(404, time.Millisecond)
	m.observeRemediation(HealingResult{Action: ActionClearCache, Success: false})
	m.observePoll("InProgress")
	m.observePoll("InProgress")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.invocations.WithLabelValues("200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.invocations.WithLabelValues("404")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.remediations.WithLabelValues("clear_cache", "failed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.polls.WithLabelValues("InProgress")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeInvocation(500, time.Second)
		m.observeRemediation(HealingResult{})
		m.observePoll("Pending")
	})
}
