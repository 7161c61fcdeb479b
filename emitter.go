package xtrack

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/trickstertwo/xclock"
)

// Emitter buffers event payloads and delivers them to a collector in
// batches. The buffer is flushed when it reaches BufferSize or on Flush.
//
// Whether a flushed batch is sent on the flushing goroutine or on a worker
// pool is decided by the BatchSender (see NewEmitter and NewAsyncEmitter).
type Emitter struct {
	name       string
	method     string
	bufferSize int
	onSuccess  SuccessCallback
	onFailure  FailureCallback

	transport Transport
	sender    BatchSender
	clock     xclock.Clock
	logger    zerolog.Logger
	baseCtx   context.Context

	mu     sync.Mutex
	buffer []*Payload
	closed bool

	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer

	metrics    *emitterMetrics
	isClosed   atomic.Bool
	closeOnce  sync.Once
	closeError error
}

type emitterMetrics struct {
	input        atomic.Uint64
	flushes      atomic.Uint64
	batches      atomic.Uint64
	eventsSent   atomic.Uint64
	eventsFailed atomic.Uint64
	rejected     atomic.Uint64
	workerPanics atomic.Uint64
	sendNs       atomic.Int64
}

// Name returns the collector URI or transport name.
func (e *Emitter) Name() string { return e.name }

// Method returns get or post.
func (e *Emitter) Method() string { return e.method }

// BufferSize returns the number of events that triggers a flush.
func (e *Emitter) BufferSize() int { return e.bufferSize }

// Transport returns the delivery strategy.
func (e *Emitter) Transport() Transport { return e.transport }

// Input adds a payload to the buffer and flushes when the buffer is full.
// Values are stringified into a copy; p itself is never modified.
//
// Input may be called from an OnFailure callback to retry failed events.
func (e *Emitter) Input(p *Payload) {
	if p == nil {
		return
	}
	ev := p.stringified()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.metrics.rejected.Add(1)
		e.logger.Warn().Err(ErrEmitterClosed).Msg("xtrack: dropping event")
		return
	}
	e.metrics.input.Add(1)
	e.buffer = append(e.buffer, ev)
	full := len(e.buffer) >= e.bufferSize
	if full {
		e.dispatchLocked()
	}
	e.mu.Unlock()

	e.notifyAsync(Event{Type: EventInput, Emitter: e.name, Method: e.method})
	if full {
		e.sender.Settle(false)
	}
}

// Flush sends everything in the buffer. With async unset it returns only
// after every dispatched batch has been sent, repeating while callbacks
// refill the buffer. A synchronous emitter has sent the buffer when Flush
// returns either way; async only skips waiting for batches other goroutines
// are sending.
func (e *Emitter) Flush(async bool) {
	e.metrics.flushes.Add(1)
	e.notifyAsync(Event{Type: EventFlush, Emitter: e.name, Method: e.method})
	e.flush(async)
}

func (e *Emitter) flush(async bool) {
	for {
		e.mu.Lock()
		e.dispatchLocked()
		e.mu.Unlock()

		e.sender.Settle(!async)
		if async {
			return
		}

		e.mu.Lock()
		empty := len(e.buffer) == 0
		e.mu.Unlock()
		if empty {
			return
		}
	}
}

// dispatchLocked swaps the buffer out and hands it to the sender.
func (e *Emitter) dispatchLocked() {
	batch := e.buffer
	e.buffer = make([]*Payload, 0, e.bufferSize)
	if len(batch) == 0 {
		e.logger.Debug().Msg("xtrack: skipping send, buffer is empty")
		return
	}
	e.sender.Dispatch(batch)
}

// deliver stamps stm on every event and sends the batch. Callbacks run
// later in complete, once the batch no longer counts as in flight.
func (e *Emitter) deliver(batch []*Payload) Result {
	if len(batch) == 0 {
		return Result{}
	}
	stm := strconv.FormatInt(e.clock.Now().UnixMilli(), 10)
	for _, p := range batch {
		p.set("stm", stm)
	}

	e.logger.Info().Int("events", len(batch)).Str("emitter", e.name).Msg("xtrack: attempting to send events")
	e.metrics.batches.Add(1)
	e.notifyAsync(Event{Type: EventSendStart, Emitter: e.name, Method: e.method, BatchSize: len(batch)})

	start := e.clock.Now()
	res := e.transport.Send(e.baseCtx, batch)
	duration := e.clock.Since(start)
	e.recordSendTime(duration.Nanoseconds())

	e.metrics.eventsSent.Add(uint64(res.Sent))
	e.metrics.eventsFailed.Add(uint64(len(res.Failed)))
	e.notifyAsync(Event{
		Type:      EventSendDone,
		Emitter:   e.name,
		Method:    e.method,
		BatchSize: len(batch),
		Sent:      res.Sent,
		Failed:    len(res.Failed),
		Duration:  duration,
		Err:       res.Err,
	})

	if !res.OK() {
		e.logger.Warn().Err(res.Err).Int("sent", res.Sent).Int("failed", len(res.Failed)).Msg("xtrack: events not delivered")
		e.notifyAsync(Event{Type: EventError, Emitter: e.name, Method: e.method, Failed: len(res.Failed), Err: res.Err})
	}
	return res
}

// complete invokes OnSuccess or OnFailure for one delivered batch.
func (e *Emitter) complete(res Result) {
	if res.OK() {
		if e.onSuccess != nil && res.Sent > 0 {
			e.onSuccess(res.Sent)
		}
		return
	}
	if e.onFailure != nil {
		e.onFailure(res.Sent, res.Failed)
	}
}

func (e *Emitter) workerPanicked(r any) {
	e.metrics.workerPanics.Add(1)
	e.notifyAsync(Event{Type: EventWorkerPanic, Emitter: e.name, Method: e.method, Err: panicError{r}})
}

// InFlight returns the number of flushed batches not yet sent.
func (e *Emitter) InFlight() int { return e.sender.InFlight() }

// GetMetrics returns current emitter metrics.
func (e *Emitter) GetMetrics() Metrics {
	e.mu.Lock()
	buffered := len(e.buffer)
	e.mu.Unlock()

	var dropped uint64
	if e.observerPool != nil {
		dropped = e.observerPool.Stats().Dropped
	}
	return Metrics{
		Input:         e.metrics.input.Load(),
		Flushes:       e.metrics.flushes.Load(),
		Batches:       e.metrics.batches.Load(),
		EventsSent:    e.metrics.eventsSent.Load(),
		EventsFailed:  e.metrics.eventsFailed.Load(),
		WorkerPanics:  e.metrics.workerPanics.Load(),
		Rejected:      e.metrics.rejected.Load(),
		InFlight:      e.sender.InFlight(),
		Buffered:      buffered,
		EventsDropped: dropped,
		AvgSendTimeMs: float64(e.metrics.sendNs.Load()) / 1e6,
	}
}

// Health reports the emitter as degraded when more than 5% of attempted
// events failed.
func (e *Emitter) Health(ctx context.Context) HealthStatus {
	if e.isClosed.Load() {
		return HealthStatus{
			Status:    "unhealthy",
			Timestamp: e.clock.Now(),
			Message:   "emitter is closed",
		}
	}

	metrics := e.GetMetrics()
	status := "healthy"
	message := ""

	attempted := metrics.EventsSent + metrics.EventsFailed
	if metrics.EventsFailed > 0 && attempted > 0 {
		failureRate := float64(metrics.EventsFailed) / float64(attempted)
		if failureRate > 0.05 {
			status = "degraded"
			message = "collector failure rate above 5%"
		}
	}

	return HealthStatus{
		Status:    status,
		Metrics:   metrics,
		Timestamp: e.clock.Now(),
		Message:   message,
	}
}

// Close sends whatever is buffered, waits for outstanding batches until ctx
// ends, then closes the observer pool and the transport. Events input after
// Close, including those re-input by callbacks, are dropped.
func (e *Emitter) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		var result *multierror.Error

		e.mu.Lock()
		e.closed = true
		e.dispatchLocked()
		e.mu.Unlock()
		e.sender.Settle(false)

		if err := e.sender.Close(ctx); err != nil {
			e.logger.Warn().Err(err).Msg("xtrack: sender shutdown")
			result = multierror.Append(result, err)
		}
		e.isClosed.Store(true)

		if e.observerPool != nil {
			if err := e.observerPool.Close(5 * time.Second); err != nil {
				e.logger.Warn().Err(err).Msg("xtrack: observer pool shutdown timeout")
				result = multierror.Append(result, err)
			}
		}

		if err := e.transport.Close(ctx); err != nil {
			e.logger.Error().Err(err).Msg("xtrack: transport close failed")
			result = multierror.Append(result, err)
		}
		e.closeError = result.ErrorOrNil()
	})
	return e.closeError
}

// AddObserver registers an observer (thread-safe).
func (e *Emitter) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	e.observersMu.Lock()
	e.observers = append(e.observers, obs)
	e.observersMu.Unlock()
}

// RemoveObserver removes an observer. obs must be comparable, so an
// ObserverFunc cannot be removed.
func (e *Emitter) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	e.observersMu.Lock()
	defer e.observersMu.Unlock()

	for i, o := range e.observers {
		if o == obs {
			e.observers = append(e.observers[:i], e.observers[i+1:]...)
			break
		}
	}
}

func (e *Emitter) notifyAsync(ev Event) {
	if e.observerPool == nil || e.isClosed.Load() {
		return
	}

	e.observersMu.RLock()
	if len(e.observers) == 0 {
		e.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	e.observersMu.RUnlock()

	e.observerPool.Notify(ev, observers)
}

// recordSendTime keeps an exponential moving average of send durations.
func (e *Emitter) recordSendTime(ns int64) {
	const alpha = 0.2
	current := e.metrics.sendNs.Load()
	if current == 0 {
		e.metrics.sendNs.Store(ns)
		return
	}
	e.metrics.sendNs.Store(int64(float64(ns)*alpha + float64(current)*(1-alpha)))
}
