package xtrack

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestObserverPool_DropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pool := NewObserverPool(context.Background(), 1, 1, zerolog.Nop())
	started := make(chan struct{})
	release := make(chan struct{})
	var seen atomic.Int32
	blocking := ObserverFunc(func(e Event) {
		if seen.Add(1) == 1 {
			close(started)
			<-release
		}
	})
	observers := []Observer{blocking}

	pool.Notify(Event{Type: EventInput}, observers)
	<-started
	pool.Notify(Event{Type: EventInput}, observers)
	pool.Notify(Event{Type: EventInput}, observers)

	assert.Equal(t, uint64(1), pool.Stats().Dropped)
	close(release)
	require.NoError(t, pool.Close(time.Second))

	stats := pool.Stats()
	assert.Equal(t, uint64(2), stats.Processed)
	assert.Equal(t, int32(2), seen.Load())
	assert.Equal(t, 1, stats.Workers)
	assert.Equal(t, 1, stats.BufferSize)
}

func TestObserverPool_PanicsCounted(t *testing.T) {
	var logs bytes.Buffer
	pool := NewObserverPool(context.Background(), 1, 8, zerolog.New(&logs))
	var after atomic.Int32
	observers := []Observer{
		ObserverFunc(func(Event) { panic("observer bug") }),
		ObserverFunc(func(Event) { after.Add(1) }),
	}

	pool.Notify(Event{Type: EventFlush}, observers)
	require.NoError(t, pool.Close(time.Second))

	assert.Equal(t, uint64(1), pool.Stats().ObserverPanics)
	assert.Equal(t, int32(1), after.Load())
	assert.Contains(t, logs.String(), "xtrack: observer panicked")
	assert.Contains(t, logs.String(), "observer bug")
}

func TestObserverPool_CloseDrains(t *testing.T) {
	pool := NewObserverPool(context.Background(), 2, 64, zerolog.Nop())
	var n atomic.Int32
	observers := []Observer{ObserverFunc(func(Event) { n.Add(1) })}
	for i := 0; i < 50; i++ {
		pool.Notify(Event{Type: EventInput}, observers)
	}
	require.NoError(t, pool.Close(time.Second))
	assert.Equal(t, int32(50), n.Load())

	// A second Close is a no-op.
	require.NoError(t, pool.Close(time.Second))
}

func TestObserverPool_CloseTimeout(t *testing.T) {
	pool := NewObserverPool(context.Background(), 1, 1, zerolog.Nop())
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	pool.Notify(Event{}, []Observer{ObserverFunc(func(Event) {
		close(started)
		<-release
	})})
	<-started
	assert.ErrorIs(t, pool.Close(10*time.Millisecond), ErrObserverPoolShutdownTimeout)
}

func TestObserverPool_Defaults(t *testing.T) {
	pool := NewObserverPool(context.Background(), 0, 0, zerolog.Nop())
	defer pool.Close(time.Second)

	stats := pool.Stats()
	assert.Equal(t, DefaultObserverWorkers, stats.Workers)
	assert.Equal(t, DefaultObserverBuffer, stats.BufferSize)
}
