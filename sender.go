package xtrack

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// DeliverFunc sends one batch and reports the outcome.
type DeliverFunc func(batch []*Payload) Result

// CompleteFunc runs the callbacks for a delivered batch. It is called after
// the batch stopped counting as in flight, so it may input or flush again.
type CompleteFunc func(res Result)

var (
	_ BatchSender = (*SyncSender)(nil)
	_ BatchSender = (*AsyncSender)(nil)
)

// batchQueue is an unbounded FIFO of batches with an in-flight counter.
// inFlight counts batches pushed and not yet marked done.
type batchQueue struct {
	mu       sync.Mutex
	queued   *sync.Cond
	drained  *sync.Cond
	items    [][]*Payload
	inFlight int
	closed   bool
}

func newBatchQueue() *batchQueue {
	q := &batchQueue{}
	q.queued = sync.NewCond(&q.mu)
	q.drained = sync.NewCond(&q.mu)
	return q
}

func (q *batchQueue) push(batch []*Payload) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.inFlight++
	q.items = append(q.items, batch)
	q.queued.Signal()
	return true
}

// pop removes the oldest batch. With block set it waits while the queue is
// empty and open; it reports false once the queue is empty and closed.
func (q *batchQueue) pop(block bool) ([]*Payload, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for block && len(q.items) == 0 && !q.closed {
		q.queued.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	batch := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return batch, true
}

func (q *batchQueue) done() {
	q.mu.Lock()
	q.inFlight--
	q.drained.Broadcast()
	q.mu.Unlock()
}

func (q *batchQueue) wait() {
	q.mu.Lock()
	for q.inFlight > 0 {
		q.drained.Wait()
	}
	q.mu.Unlock()
}

func (q *batchQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

func (q *batchQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.queued.Broadcast()
	q.mu.Unlock()
}

// SyncSender sends dispatched batches on the goroutines that flush them.
// Sends never overlap and leave in dispatch order.
type SyncSender struct {
	q        *batchQueue
	sendMu   sync.Mutex
	deliver  DeliverFunc
	complete CompleteFunc
}

// NewSyncSender returns a sender that delivers inline.
func NewSyncSender(deliver DeliverFunc, complete CompleteFunc) *SyncSender {
	return &SyncSender{q: newBatchQueue(), deliver: deliver, complete: complete}
}

func (s *SyncSender) Dispatch(batch []*Payload) {
	s.q.push(batch)
}

// Settle sends every queued batch. Batches dispatched before the call have
// been sent when it returns. With wait set it also waits until no batch is
// in flight.
func (s *SyncSender) Settle(wait bool) {
	for {
		res, ok := s.sendNext()
		if !ok {
			break
		}
		if s.complete != nil {
			s.complete(res)
		}
	}
	if wait {
		s.q.wait()
	}
}

// sendNext pops and sends the oldest batch while holding sendMu, so a batch
// is popped only by the goroutine that will send it next.
func (s *SyncSender) sendNext() (Result, bool) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	batch, ok := s.q.pop(false)
	if !ok {
		return Result{}, false
	}
	defer s.q.done()
	return s.deliver(batch), true
}

func (s *SyncSender) InFlight() int { return s.q.pending() }

// Close sends what is left. A SyncSender keeps accepting batches afterwards.
func (s *SyncSender) Close(context.Context) error {
	s.Settle(true)
	return nil
}

// AsyncSender delivers batches on a fixed pool of worker goroutines.
// A worker that panics is replaced, so the pool size stays constant.
type AsyncSender struct {
	q        *batchQueue
	deliver  DeliverFunc
	complete CompleteFunc
	onPanic  func(recovered any)
	logger   zerolog.Logger
	threads  int
	wg       sync.WaitGroup
}

// NewAsyncSender starts threads workers. onPanic, when set, is called after a
// worker recovers from a panic raised by deliver or complete.
func NewAsyncSender(threads int, deliver DeliverFunc, complete CompleteFunc, logger zerolog.Logger, onPanic func(recovered any)) *AsyncSender {
	if threads < 1 {
		threads = 1
	}
	s := &AsyncSender{
		q:        newBatchQueue(),
		deliver:  deliver,
		complete: complete,
		onPanic:  onPanic,
		logger:   logger,
		threads:  threads,
	}
	for i := 0; i < threads; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

func (s *AsyncSender) Dispatch(batch []*Payload) {
	if !s.q.push(batch) {
		s.logger.Warn().Int("events", len(batch)).Msg("xtrack: async sender closed, dropping batch")
	}
}

// Settle blocks until the in-flight counter reaches zero when wait is set.
func (s *AsyncSender) Settle(wait bool) {
	if !wait {
		return
	}
	s.logger.Info().Msg("xtrack: starting synchronous flush")
	s.q.wait()
	s.logger.Info().Msg("xtrack: finished synchronous flush")
}

func (s *AsyncSender) InFlight() int { return s.q.pending() }

// Threads returns the pool size.
func (s *AsyncSender) Threads() int { return s.threads }

// Close stops accepting batches, lets the workers drain the queue and waits
// for them to exit or ctx to end.
func (s *AsyncSender) Close(ctx context.Context) error {
	s.q.close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %d batches in flight", ErrShutdownTimeout, s.q.pending())
	}
}

func (s *AsyncSender) worker() {
	defer s.wg.Done()
	for {
		batch, ok := s.q.pop(true)
		if !ok {
			return
		}
		if !s.run(batch) {
			s.wg.Add(1)
			go s.worker()
			return
		}
	}
}

// run delivers one batch and runs its callbacks, reporting false if either
// panicked. The batch is marked done before the callbacks run.
func (s *AsyncSender) run(batch []*Payload) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic", r).
				Int("events", len(batch)).
				Msg("xtrack: worker panicked while sending batch, replacing worker")
			if s.onPanic != nil {
				s.onPanic(r)
			}
			ok = false
		}
	}()
	res := s.send(batch)
	if s.complete != nil {
		s.complete(res)
	}
	return true
}

func (s *AsyncSender) send(batch []*Payload) Result {
	defer s.q.done()
	return s.deliver(batch)
}
