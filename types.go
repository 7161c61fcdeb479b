package xtrack

import (
	"time"
)

// SuccessCallback receives the number of events delivered from one batch.
type SuccessCallback func(successCount int)

// FailureCallback receives the number of events delivered from one batch and
// the events that were not. The failed payloads may be passed back to Input.
type FailureCallback func(successCount int, failed []*Payload)

// Result is the outcome of one Transport.Send call.
type Result struct {
	Sent   int
	Failed []*Payload
	// Err is the last transport-level error seen for the batch, if any.
	Err error
}

// OK reports whether every event of the batch was delivered.
func (r Result) OK() bool { return len(r.Failed) == 0 }

// EventType enumerates emitter lifecycle events for the Observer pattern.
type EventType string

const (
	EventInput       EventType = "input"
	EventFlush       EventType = "flush"
	EventSendStart   EventType = "send_start"
	EventSendDone    EventType = "send_done"
	EventWorkerPanic EventType = "worker_panic"
	EventError       EventType = "error"
)

// Event carries telemetry for observers.
type Event struct {
	Type      EventType
	Emitter   string // collector URI or transport name
	Method    string
	BatchSize int
	Sent      int
	Failed    int
	Duration  time.Duration
	Err       error

	// Internal: attached for async dispatch
	observers []Observer
}

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped        uint64 // Events dropped due to full buffer
	Processed      uint64 // Events dispatched to observers
	ObserverPanics uint64 // Observer calls that panicked
	ActiveEvents   int    // Current queue depth
	Workers        int    // Number of dispatch goroutines
	BufferSize     int    // Channel capacity
}

// Metrics defines observable telemetry for an emitter.
type Metrics struct {
	Input         uint64
	Flushes       uint64
	Batches       uint64
	EventsSent    uint64
	EventsFailed  uint64
	WorkerPanics  uint64
	Rejected      uint64 // Inputs refused after Close
	InFlight      int
	Buffered      int
	EventsDropped uint64
	AvgSendTimeMs float64
}

// HealthStatus indicates emitter health for probes.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
