package supervisor

// State is the supervisor's run state. It is never persisted; a fresh
// instance always starts Stopped.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
)

// States lists every state in gauge order.
func States() []State {
	return []State{StateStopped, StateStarting, StateRunning}
}

// Gauge maps the state onto a numeric value for metrics.
func (s State) Gauge() float64 {
	switch s {
	case StateStarting:
		return 1
	case StateRunning:
		return 2
	default:
		return 0
	}
}
