package xtrack

import (
	"context"
)

// Transport is the Strategy interface for delivering a batch of events to a
// collector (HTTP, Redis Streams, in-memory, ...).
type Transport interface {
	// Send delivers batch and reports which events were not delivered.
	// Delivery failures are reported in the Result, never panicked or returned.
	Send(ctx context.Context, batch []*Payload) Result
	// Name identifies the transport in logs and telemetry.
	Name() string
	// Close releases resources.
	Close(ctx context.Context) error
}

// BatchSender is the Strategy deciding where a flushed batch is delivered:
// inline on the caller's goroutine or on a worker pool.
type BatchSender interface {
	// Dispatch hands over a batch swapped out of the emitter buffer.
	// It is called with the emitter's buffer lock held and must not send.
	Dispatch(batch []*Payload)
	// Settle runs after the buffer lock is released. With wait set it blocks
	// until every dispatched batch has finished sending.
	Settle(wait bool)
	// InFlight returns the number of dispatched batches not yet sent.
	InFlight() int
	// Close stops accepting batches and waits for outstanding ones.
	Close(ctx context.Context) error
}

// Codec is the Strategy for encoding nested JSON values.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Observer receives emitter lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnEvent(e Event)
}

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// API represents the emitter surface used by the Tracker.
type API interface {
	Input(p *Payload)
	Flush(async bool)
	Close(ctx context.Context) error
	GetMetrics() Metrics
	Health(ctx context.Context) HealthStatus
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}

var _ API = (*Emitter)(nil)
var _ HealthChecker = (*Emitter)(nil)
