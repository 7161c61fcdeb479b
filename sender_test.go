package xtrack

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestAsyncEmitter_FlushDrains tests that Flush(false) returns only after
// every batch was sent.
func TestAsyncEmitter_FlushDrains(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := &fakeTransport{send: func(batch []*Payload) Result {
		time.Sleep(5 * time.Millisecond)
		return Result{Sent: len(batch)}
	}}
	var delivered atomic.Int64
	cfg := Config{
		Method:      MethodPost,
		BufferSize:  2,
		ThreadCount: 3,
		OnSuccess:   func(n int) { delivered.Add(int64(n)) },
	}
	em, err := NewEmitterBuilder().
		WithConfig(cfg).
		WithAsync(true).
		WithTransportInstance(tr).
		WithLogger(zerolog.Nop()).
		Build()
	require.NoError(t, err)

	for i := 0; i < 21; i++ {
		em.Input(pv("x"))
	}
	em.Flush(false)

	assert.Equal(t, 0, em.InFlight())
	assert.Equal(t, int64(21), delivered.Load())
	assert.Len(t, tr.Events(), 21)
	assert.Len(t, tr.Batches(), 11)

	require.NoError(t, em.Close(context.Background()))
}

// TestAsyncEmitter_FlushAsyncDoesNotWait tests that Flush(true) only enqueues.
func TestAsyncEmitter_FlushAsyncDoesNotWait(t *testing.T) {
	release := make(chan struct{})
	tr := &fakeTransport{send: func(batch []*Payload) Result {
		<-release
		return Result{Sent: len(batch)}
	}}
	em := newTestEmitter(t, tr, Config{Method: MethodPost, BufferSize: 10}, true)

	em.Input(pv("1"))
	em.Flush(true)
	assert.Equal(t, 1, em.InFlight())

	close(release)
	em.Flush(false)
	assert.Equal(t, 0, em.InFlight())
	assert.Len(t, tr.Events(), 1)
}

// TestAsyncEmitter_WorkerPanicReplaced tests that a panicking send is
// accounted for and the pool keeps serving batches.
func TestAsyncEmitter_WorkerPanicReplaced(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls atomic.Int32
	tr := &fakeTransport{send: func(batch []*Payload) Result {
		if calls.Add(1) == 1 {
			panic("transport exploded")
		}
		return Result{Sent: len(batch)}
	}}
	var panics atomic.Int32
	em, err := NewEmitterBuilder().
		WithConfig(Config{ThreadCount: 1}).
		WithAsync(true).
		WithTransportInstance(tr).
		WithLogger(zerolog.Nop()).
		WithObserver(ObserverFunc(func(e Event) {
			if e.Type == EventWorkerPanic {
				panics.Add(1)
			}
		})).
		Build()
	require.NoError(t, err)

	em.Input(pv("boom"))
	em.Flush(false)
	assert.Equal(t, 0, em.InFlight())

	em.Input(pv("ok"))
	em.Flush(false)

	assert.Equal(t, uint64(1), em.GetMetrics().WorkerPanics)
	assert.Equal(t, uint64(1), em.GetMetrics().EventsSent)
	require.NoError(t, em.Close(context.Background()))
	assert.Equal(t, int32(1), panics.Load())
}

// TestAsyncEmitter_CloseTimeout tests that Close gives up at the ctx deadline.
func TestAsyncEmitter_CloseTimeout(t *testing.T) {
	release := make(chan struct{})
	tr := &fakeTransport{send: func(batch []*Payload) Result {
		<-release
		return Result{Sent: len(batch)}
	}}
	em, err := NewEmitterBuilder().
		WithConfig(Config{}).
		WithAsync(true).
		WithTransportInstance(tr).
		WithLogger(zerolog.Nop()).
		Build()
	require.NoError(t, err)

	em.Input(pv("stuck"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = em.Close(ctx)
	assert.ErrorIs(t, err, ErrShutdownTimeout)

	close(release)
}

func TestSyncSender_DeliversInline(t *testing.T) {
	var got [][]*Payload
	var completed []Result
	s := NewSyncSender(
		func(batch []*Payload) Result {
			got = append(got, batch)
			return Result{Sent: len(batch)}
		},
		func(res Result) { completed = append(completed, res) },
	)

	s.Dispatch([]*Payload{pv("1")})
	s.Dispatch([]*Payload{pv("2"), pv("3")})
	assert.Equal(t, 2, s.InFlight())
	assert.Empty(t, got)

	s.Settle(false)
	assert.Len(t, got, 2)
	assert.Equal(t, []Result{{Sent: 1}, {Sent: 2}}, completed)
	assert.Equal(t, 0, s.InFlight())

	require.NoError(t, s.Close(context.Background()))
	s.Dispatch([]*Payload{pv("4")})
	s.Settle(false)
	assert.Len(t, got, 3)
}

// TestSyncSender_ConcurrentSettle tests that Settle returns only once the
// batches dispatched before it were sent, even by another goroutine.
func TestSyncSender_ConcurrentSettle(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s := NewSyncSender(func(batch []*Payload) Result {
		once.Do(func() { close(started) })
		<-release
		return Result{Sent: len(batch)}
	}, nil)

	s.Dispatch([]*Payload{pv("1")})
	go s.Settle(false)
	<-started

	done := make(chan struct{})
	go func() {
		s.Settle(false)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Settle returned while a batch was being sent")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Settle did not return")
	}
}

// TestSyncSender_FIFO tests that batches leave in dispatch order when many
// goroutines settle at once.
func TestSyncSender_FIFO(t *testing.T) {
	var order []string
	s := NewSyncSender(func(batch []*Payload) Result {
		order = append(order, batch[0].GetString("url"))
		return Result{Sent: len(batch)}
	}, nil)

	want := make([]string, 20)
	for i := range want {
		want[i] = stringify(i)
		s.Dispatch([]*Payload{pv(want[i])})
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Settle(false)
		}()
	}
	wg.Wait()
	assert.Equal(t, want, order)
}

// TestEmitter_ConcurrentInputSerializesSends tests that a synchronous
// emitter never runs two sends at once and keeps every goroutine's events in
// order.
func TestEmitter_ConcurrentInputSerializesSends(t *testing.T) {
	var active, peak atomic.Int32
	tr := &fakeTransport{send: func(batch []*Payload) Result {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return Result{Sent: len(batch)}
	}}
	em := newTestEmitter(t, tr, Config{Method: MethodPost, BufferSize: 1}, false)

	const goroutines, perGoroutine = 6, 5
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				em.Input(pv(stringify(g) + "/" + stringify(i)))
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	events := tr.Events()
	require.Len(t, events, goroutines*perGoroutine)

	next := make(map[string]int)
	for _, p := range events {
		var g, i int
		_, err := fmt.Sscanf(p.GetString("url"), "%d/%d", &g, &i)
		require.NoError(t, err)
		key := stringify(g)
		assert.Equal(t, next[key], i, "goroutine %d out of order", g)
		next[key] = i + 1
	}
}

// TestEmitter_FlushFromCallback tests that a callback may flush the emitter
// that invoked it.
func TestEmitter_FlushFromCallback(t *testing.T) {
	for _, async := range []bool{false, true} {
		var em *Emitter
		var calls atomic.Int32
		cfg := Config{
			Method:     MethodPost,
			BufferSize: 1,
			OnSuccess: func(int) {
				calls.Add(1)
				em.Flush(false)
			},
		}
		em = newTestEmitter(t, &fakeTransport{}, cfg, async)

		done := make(chan struct{})
		go func() {
			em.Input(pv("1"))
			em.Flush(false)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("async=%v: flush from callback did not return", async)
		}
		assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
		assert.Equal(t, 0, em.InFlight())
	}
}

func TestAsyncSender_Threads(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewAsyncSender(0, func([]*Payload) Result { return Result{} }, nil, zerolog.Nop(), nil)
	assert.Equal(t, 1, s.Threads())
	require.NoError(t, s.Close(context.Background()))

	s = NewAsyncSender(4, func(b []*Payload) Result { return Result{Sent: len(b)} }, nil, zerolog.Nop(), nil)
	assert.Equal(t, 4, s.Threads())
	for i := 0; i < 10; i++ {
		s.Dispatch([]*Payload{pv("x")})
	}
	s.Settle(true)
	assert.Equal(t, 0, s.InFlight())
	require.NoError(t, s.Close(context.Background()))
}
