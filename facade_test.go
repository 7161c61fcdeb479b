package xtrack

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetDefault clears the process-wide tracker for the duration of t.
func resetDefault(t *testing.T) {
	t.Helper()
	defaultTrackerMu.Lock()
	prev := defaultTracker
	defaultTracker = nil
	defaultTrackerMu.Unlock()
	t.Cleanup(func() {
		defaultTrackerMu.Lock()
		defaultTracker = prev
		defaultTrackerMu.Unlock()
	})
}

func TestFacade_NoDefault(t *testing.T) {
	resetDefault(t)

	assert.Nil(t, Default())
	assert.ErrorIs(t, TrackPageView(PageView{URL: "http://a.test/"}), ErrNoDefaultTracker)
	assert.ErrorIs(t, TrackScreenView(ScreenView{Name: "s"}), ErrNoDefaultTracker)
	assert.ErrorIs(t, TrackStructEvent(StructEvent{Category: "c", Action: "a"}), ErrNoDefaultTracker)
	assert.ErrorIs(t, TrackSelfDescribingEvent(SelfDescribing{}), ErrNoDefaultTracker)
	assert.ErrorIs(t, TrackEcommerceTransaction(Transaction{OrderID: "o"}), ErrNoDefaultTracker)

	Flush(false)
	assert.NoError(t, Close(context.Background()))
}

func TestSetDefault_NilPanics(t *testing.T) {
	assert.Panics(t, func() { SetDefault(nil) })
}

func TestFacade_DefaultTracker(t *testing.T) {
	resetDefault(t)

	tr := &fakeTransport{}
	em := newTestEmitter(t, tr, Config{Method: MethodPost, BufferSize: 10}, false)
	nop := zerolog.Nop()
	tracker, err := NewTracker(TrackerConfig{Namespace: "facade", Emitters: []API{em}, Logger: &nop})
	require.NoError(t, err)
	SetDefault(tracker)
	assert.Same(t, tracker, Default())

	require.NoError(t, TrackPageView(PageView{URL: "http://a.test/"}))
	require.NoError(t, TrackStructEvent(StructEvent{Category: "c", Action: "a"}))
	require.NoError(t, TrackScreenView(ScreenView{ID: "s1"}))
	require.NoError(t, TrackEcommerceTransaction(Transaction{OrderID: "o", Items: []TransactionItem{{SKU: "x"}}}))
	assert.Empty(t, tr.Events())

	Flush(false)
	events := tr.Events()
	require.Len(t, events, 5)
	for _, p := range events {
		assert.Equal(t, "facade", p.GetString("tna"))
	}
	require.NoError(t, Close(context.Background()))
}

func TestUse_InvalidConfigPanics(t *testing.T) {
	resetDefault(t)
	assert.Panics(t, func() { Use("", Config{}, TrackerConfig{}) })
	assert.Nil(t, Default())
}

func TestUse_InstallsDefault(t *testing.T) {
	resetDefault(t)

	tracker := Use("collector.test", Config{Method: MethodPost, BufferSize: 100}, TrackerConfig{Namespace: "ns"},
		WithLogger(zerolog.Nop()))
	t.Cleanup(func() { _ = tracker.Close(context.Background()) })

	assert.Same(t, tracker, Default())
	require.Len(t, tracker.Emitters(), 1)
	em, ok := tracker.Emitters()[0].(*Emitter)
	require.True(t, ok)
	assert.Equal(t, "http://collector.test/com.snowplowanalytics.snowplow/tp2", em.Name())
}
