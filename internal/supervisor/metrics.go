package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nerrad567/trackguard/internal/event"
	"github.com/nerrad567/trackguard/internal/process"
)

// Metrics records supervision activity as Prometheus series.
// It implements Recorder and event.Observer.
type Metrics struct {
	state       prometheus.Gauge
	relaunches  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	events      *prometheus.CounterVec
}

// NewMetrics registers the supervisor series on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		state: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trackguard_supervisor_state",
			Help: "Current supervisor state (0=stopped, 1=starting, 2=running)",
		}),
		relaunches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trackguard_relaunch_requests_total",
			Help: "Relaunch requests issued, by target, mode and result",
		}, []string{"target", "mode", "result"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trackguard_supervisor_transitions_total",
			Help: "Supervisor state transitions",
		}, []string{"from", "to"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trackguard_events_total",
			Help: "System events accepted by the listener, by kind",
		}, []string{"kind"}),
	}
}

// Transition implements Recorder.
func (m *Metrics) Transition(from, to State, _ string) {
	m.state.Set(to.Gauge())
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// Relaunch implements Recorder.
func (m *Metrics) Relaunch(req process.Request, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.relaunches.WithLabelValues(string(req.Target), string(req.Mode), result).Inc()
}

// ObserveEvent implements event.Observer.
func (m *Metrics) ObserveEvent(kind event.Kind) {
	m.events.WithLabelValues(string(kind)).Inc()
}
