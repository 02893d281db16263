// Package trace implements ragarena's Execution Trace Recorder: a
// per-technique-run append-only log of TraceEvents with a strictly
// monotonic sequence number starting at 0.
package trace

import (
	"sync"
	"time"

	"ragarena/internal/ragengine/types"
)

// Recorder accumulates TraceEvents for exactly one technique run. It must
// never be shared across concurrent technique executions: each fan-out
// worker constructs its own.
type Recorder struct {
	mu     sync.Mutex
	seq    int
	events []types.TraceEvent
	now    func() time.Time
}

// New builds an empty Recorder.
func New() *Recorder {
	return &Recorder{now: time.Now}
}

// Log appends a TraceEvent with the next sequence number.
func (r *Recorder) Log(step, message string, details map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, types.TraceEvent{
		Sequence:  r.seq,
		Step:      step,
		Message:   message,
		Details:   types.CloneMetadata(details),
		Timestamp: r.now().UTC(),
	})
	r.seq++
}

// Events returns a copy of the recorded trace in sequence order.
func (r *Recorder) Events() []types.TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.TraceEvent, len(r.events))
	copy(out, r.events)
	return out
}
