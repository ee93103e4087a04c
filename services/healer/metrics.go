package healer

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the pipeline. A nil *Metrics
// records nothing.
type Metrics struct {
	invocations  *prometheus.CounterVec
	remediations *prometheus.CounterVec
	polls        *prometheus.CounterVec
	duration     prometheus.Histogram
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoheal_invocations_total",
			Help: "Alert invocations by response status code.",
		}, []string{"status_code"}),
		remediations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoheal_remediations_total",
			Help: "Remediation attempts by action and outcome.",
		}, []string{"action", "outcome"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoheal_command_polls_total",
			Help: "Remote command status checks by observed status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autoheal_invocation_duration_seconds",
			Help:    "End-to-end alert handling latency.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.invocations, m.remediations, m.polls, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeInvocation(statusCode int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeRemediation(result HealingResult) {
	if m == nil {
		return
	}
	outcome := "failed"
	if result.Success {
		outcome = "success"
	}
	m.remediations.WithLabelValues(string(result.Action), outcome).Inc()
}

func (m *Metrics) observePoll(status string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(status).Inc()
}
