package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cumulo-io/cumulo/pkg/engine"
)

// Metrics implements engine.Instrumentation over Prometheus collectors.
type Metrics struct {
	stackRuns       *prometheus.CounterVec
	resourceActions *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec
}

// NewMetrics creates the engine metric set and registers it with the given
// registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stackRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cumulo",
			Name:      "stack_runs_total",
			Help:      "Stack actions run, by action and final status.",
		}, []string{"action", "status"}),
		resourceActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cumulo",
			Name:      "resource_actions_total",
			Help:      "Resource actions dispatched, by action and final status.",
		}, []string{"action", "status"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cumulo",
			Name:      "resource_action_duration_seconds",
			Help:      "Wall time from dispatch to terminal state per resource action.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"action"}),
	}

	for _, collector := range []prometheus.Collector{m.stackRuns, m.resourceActions, m.actionDuration} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveStackRun records one finished stack action.
func (m *Metrics) ObserveStackRun(action engine.Action, status engine.Status, duration time.Duration) {
	m.stackRuns.WithLabelValues(string(action), string(status)).Inc()
}

// ObserveResourceAction records one terminal resource action.
func (m *Metrics) ObserveResourceAction(action engine.Action, status engine.Status, duration time.Duration) {
	m.resourceActions.WithLabelValues(string(action), string(status)).Inc()
	m.actionDuration.WithLabelValues(string(action)).Observe(duration.Seconds())
}
