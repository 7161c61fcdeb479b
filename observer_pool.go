package xtrack

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultObserverWorkers = 2
	DefaultObserverBuffer  = 1024
)

// ObserverPool hands emitter events to observers on its own goroutines, so
// a slow observer never stalls Input or a send. Events that do not fit the
// buffer are dropped and counted.
type ObserverPool struct {
	events  chan *Event
	workers int
	logger  zerolog.Logger

	stop     context.CancelFunc
	stopping context.Context
	wg       sync.WaitGroup
	closed   atomic.Bool

	dropped   atomic.Uint64
	processed atomic.Uint64
	panics    atomic.Uint64
}

// NewObserverPool starts workers goroutines reading a buffer of bufferSize
// events. Non-positive sizes select the defaults. Observer panics are
// recovered and logged to logger.
func NewObserverPool(ctx context.Context, workers, bufferSize int, logger zerolog.Logger) *ObserverPool {
	if workers < 1 {
		workers = DefaultObserverWorkers
	}
	if bufferSize < 1 {
		bufferSize = DefaultObserverBuffer
	}

	stopping, stop := context.WithCancel(ctx)
	op := &ObserverPool{
		events:   make(chan *Event, bufferSize),
		workers:  workers,
		logger:   logger,
		stop:     stop,
		stopping: stopping,
	}
	op.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go op.loop()
	}
	return op
}

// Notify queues e for observers without blocking.
func (op *ObserverPool) Notify(e Event, observers []Observer) {
	if len(observers) == 0 {
		return
	}
	e.observers = append([]Observer(nil), observers...)

	select {
	case op.events <- &e:
	default:
		op.dropped.Add(1)
	}
}

func (op *ObserverPool) loop() {
	defer op.wg.Done()
	for {
		select {
		case e := <-op.events:
			op.handle(e)
		case <-op.stopping.Done():
			op.drain()
			return
		}
	}
}

// drain handles whatever is still buffered once the pool is stopping.
func (op *ObserverPool) drain() {
	for {
		select {
		case e := <-op.events:
			op.handle(e)
		default:
			return
		}
	}
}

func (op *ObserverPool) handle(e *Event) {
	if e == nil {
		return
	}
	for _, obs := range e.observers {
		if obs != nil {
			op.call(obs, e)
		}
	}
	op.processed.Add(1)
}

func (op *ObserverPool) call(obs Observer, e *Event) {
	defer func() {
		if r := recover(); r != nil {
			op.panics.Add(1)
			op.logger.Error().
				Interface("panic", r).
				Str("event", string(e.Type)).
				Str("emitter", e.Emitter).
				Msg("xtrack: observer panicked")
		}
	}()
	obs.OnEvent(*e)
}

// Close stops the workers once they have handled the buffered events,
// waiting at most timeout. Closing twice is a no-op.
func (op *ObserverPool) Close(timeout time.Duration) error {
	if op.closed.Swap(true) {
		return nil
	}
	op.stop()

	done := make(chan struct{})
	go func() {
		op.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrObserverPoolShutdownTimeout
	}
}

// Stats returns a snapshot of the pool counters.
func (op *ObserverPool) Stats() PoolStats {
	return PoolStats{
		Dropped:        op.dropped.Load(),
		Processed:      op.processed.Load(),
		ObserverPanics: op.panics.Load(),
		ActiveEvents:   len(op.events),
		Workers:        op.workers,
		BufferSize:     cap(op.events),
	}
}
