package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xtrack"
)

const TransportName = "memory"

// ErrInjectedFailure is reported for batches failed through FailNext.
var ErrInjectedFailure = errors.New("memory transport: injected failure")

// ErrClosed is reported for batches sent after Close.
var ErrClosed = errors.New("memory transport is closed")

func init() {
	if err := xtrack.RegisterTransport(TransportName, func(cfg map[string]any) (xtrack.Transport, error) {
		return NewTransport(ConfigFromMap(cfg)), nil
	}); err != nil {
		panic(fmt.Errorf("xtrack/memory: failed to register transport: %w", err))
	}
}

// Config controls memory transport behavior.
type Config struct {
	// Name is reported by Transport.Name (default: "memory").
	Name string
	// Capacity caps the number of retained events; the oldest are evicted
	// first (default: 0 = unlimited).
	Capacity int
	// Latency delays every Send, honoring ctx.
	Latency time.Duration
	// Hook, when set, runs at the start of every Send. It may panic to
	// simulate a broken transport.
	Hook func(batch []*xtrack.Payload)
}

func ConfigFromMap(cfg map[string]any) Config {
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return d
		}
	}

	getDur := func(k string, d time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v)
		}
		return d
	}

	c := Config{
		Name:     TransportName,
		Capacity: maxInt(0, getInt("capacity", 0)),
		Latency:  getDur("latency", 0),
	}
	if v, ok := cfg["name"].(string); ok && v != "" {
		c.Name = v
	}
	if v, ok := cfg["hook"].(func([]*xtrack.Payload)); ok {
		c.Hook = v
	}
	return c
}

// Transport implements xtrack.Transport by recording every delivered event.
// It is meant for tests and local development.
type Transport struct {
	cfg Config

	mu       sync.Mutex
	changed  *sync.Cond
	events   []*xtrack.Payload
	batches  [][]*xtrack.Payload
	failNext int

	closed  atomic.Bool
	metrics *transportMetrics
}

type transportMetrics struct {
	sends    atomic.Uint64
	sent     atomic.Uint64
	failed   atomic.Uint64
	evicted  atomic.Uint64
	canceled atomic.Uint64
}

// Stats is a snapshot of transport counters.
type Stats struct {
	Sends    uint64
	Sent     uint64
	Failed   uint64
	Evicted  uint64
	Canceled uint64
	Retained int
}

var _ xtrack.Transport = (*Transport)(nil)

// NewTransport creates a new in-memory transport.
func NewTransport(cfg Config) *Transport {
	if cfg.Name == "" {
		cfg.Name = TransportName
	}
	if cfg.Capacity < 0 {
		cfg.Capacity = 0
	}
	t := &Transport{
		cfg:     cfg,
		metrics: &transportMetrics{},
	}
	t.changed = sync.NewCond(&t.mu)
	return t
}

func (t *Transport) Name() string { return t.cfg.Name }

// Send records batch. Events of a batch are retained as clones so later
// mutation by the emitter is not visible.
func (t *Transport) Send(ctx context.Context, batch []*xtrack.Payload) xtrack.Result {
	t.metrics.sends.Add(1)
	if t.cfg.Hook != nil {
		t.cfg.Hook(batch)
	}
	if t.closed.Load() {
		t.metrics.failed.Add(uint64(len(batch)))
		return xtrack.Result{Failed: batch, Err: ErrClosed}
	}
	if t.cfg.Latency > 0 {
		timer := time.NewTimer(t.cfg.Latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.metrics.canceled.Add(1)
			t.metrics.failed.Add(uint64(len(batch)))
			return xtrack.Result{Failed: batch, Err: ctx.Err()}
		case <-timer.C:
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failNext > 0 {
		t.failNext--
		t.metrics.failed.Add(uint64(len(batch)))
		return xtrack.Result{Failed: batch, Err: ErrInjectedFailure}
	}

	recorded := make([]*xtrack.Payload, len(batch))
	for i, p := range batch {
		recorded[i] = p.Clone()
	}
	t.batches = append(t.batches, recorded)
	t.events = append(t.events, recorded...)
	if t.cfg.Capacity > 0 && len(t.events) > t.cfg.Capacity {
		drop := len(t.events) - t.cfg.Capacity
		t.events = append([]*xtrack.Payload(nil), t.events[drop:]...)
		t.metrics.evicted.Add(uint64(drop))
	}
	t.metrics.sent.Add(uint64(len(batch)))
	t.changed.Broadcast()
	return xtrack.Result{Sent: len(batch)}
}

// FailNext makes the next n Send calls fail every event of their batch.
func (t *Transport) FailNext(n int) {
	t.mu.Lock()
	t.failNext = n
	t.mu.Unlock()
}

// Events returns the retained events in delivery order.
func (t *Transport) Events() []*xtrack.Payload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*xtrack.Payload(nil), t.events...)
}

// Batches returns every delivered batch in delivery order.
func (t *Transport) Batches() [][]*xtrack.Payload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]*xtrack.Payload(nil), t.batches...)
}

// Len returns the number of retained events.
func (t *Transport) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// Reset forgets every recorded event and batch.
func (t *Transport) Reset() {
	t.mu.Lock()
	t.events = nil
	t.batches = nil
	t.failNext = 0
	t.mu.Unlock()
}

// WaitFor blocks until at least n events are retained or ctx ends.
func (t *Transport) WaitFor(ctx context.Context, n int) error {
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		t.changed.Broadcast()
		t.mu.Unlock()
	})
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.events) < n {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("memory transport: %d of %d events: %w", len(t.events), n, err)
		}
		t.changed.Wait()
	}
	return nil
}

// Stats returns a snapshot of transport counters.
func (t *Transport) Stats() Stats {
	return Stats{
		Sends:    t.metrics.sends.Load(),
		Sent:     t.metrics.sent.Load(),
		Failed:   t.metrics.failed.Load(),
		Evicted:  t.metrics.evicted.Load(),
		Canceled: t.metrics.canceled.Load(),
		Retained: t.Len(),
	}
}

// Close makes later sends fail. Recorded events stay readable.
func (t *Transport) Close(context.Context) error {
	t.closed.Store(true)
	t.mu.Lock()
	t.changed.Broadcast()
	t.mu.Unlock()
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
