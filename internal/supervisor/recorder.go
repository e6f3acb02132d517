package supervisor

import (
	"github.com/nerrad567/trackguard/internal/process"
)

// Recorder observes every state transition and every launch result.
// Calls happen synchronously on the supervisor's path and must not block.
type Recorder interface {
	Transition(from, to State, reason string)
	Relaunch(req process.Request, err error)
}

type noopRecorder struct{}

func (noopRecorder) Transition(State, State, string) {}
func (noopRecorder) Relaunch(process.Request, error) {}

// MultiRecorder fans out to several recorders.
type MultiRecorder []Recorder

func (m MultiRecorder) Transition(from, to State, reason string) {
	for _, r := range m {
		r.Transition(from, to, reason)
	}
}

func (m MultiRecorder) Relaunch(req process.Request, err error) {
	for _, r := range m {
		r.Relaunch(req, err)
	}
}

// PointWriter accepts diagnostic points for a time-series sink.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any)
}

// PointRecorder writes transitions and relaunches as diagnostic points.
type PointRecorder struct {
	Writer PointWriter
}

// Transition writes a supervisor_transition point.
func (p PointRecorder) Transition(from, to State, reason string) {
	p.Writer.WritePoint("supervisor_transition",
		map[string]string{"from": string(from), "to": string(to)},
		map[string]any{"reason": reason, "state": to.Gauge()},
	)
}

// Relaunch writes a relaunch_request point.
func (p PointRecorder) Relaunch(req process.Request, err error) {
	fields := map[string]any{"reason": req.Reason, "ok": err == nil}
	if err != nil {
		fields["error"] = err.Error()
	}
	p.Writer.WritePoint("relaunch_request",
		map[string]string{"target": string(req.Target), "mode": string(req.Mode)},
		fields,
	)
}
