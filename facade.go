package xtrack

import (
	"context"
	"fmt"
	"sync"
)

var (
	defaultTracker   *Tracker
	defaultTrackerMu sync.RWMutex
)

// Default returns the process-wide Tracker, or nil when none is installed.
func Default() *Tracker {
	defaultTrackerMu.RLock()
	defer defaultTrackerMu.RUnlock()
	return defaultTracker
}

// SetDefault replaces the process-wide default Tracker.
func SetDefault(t *Tracker) {
	if t == nil {
		panic("xtrack: SetDefault called with nil Tracker")
	}
	defaultTrackerMu.Lock()
	defaultTracker = t
	defaultTrackerMu.Unlock()
}

// Use builds an emitter for endpoint and a tracker around it, installs the
// tracker as the default and returns it. It panics on invalid configuration.
func Use(endpoint string, cfg Config, tcfg TrackerConfig, opts ...Option) *Tracker {
	e, err := NewEmitter(endpoint, cfg, opts...)
	if err != nil {
		panic(fmt.Errorf("xtrack.Use: %w", err))
	}
	tcfg.Emitters = append(tcfg.Emitters, e)
	t, err := NewTracker(tcfg)
	if err != nil {
		panic(fmt.Errorf("xtrack.Use: %w", err))
	}
	SetDefault(t)
	return t
}

func defaultOrErr() (*Tracker, error) {
	t := Default()
	if t == nil {
		return nil, ErrNoDefaultTracker
	}
	return t, nil
}

// TrackPageView is the Facade using the default tracker.
func TrackPageView(ev PageView, opts ...TrackOption) error {
	t, err := defaultOrErr()
	if err != nil {
		return err
	}
	return t.TrackPageView(ev, opts...)
}

// TrackScreenView is the Facade using the default tracker.
func TrackScreenView(ev ScreenView, opts ...TrackOption) error {
	t, err := defaultOrErr()
	if err != nil {
		return err
	}
	return t.TrackScreenView(ev, opts...)
}

// TrackStructEvent is the Facade using the default tracker.
func TrackStructEvent(ev StructEvent, opts ...TrackOption) error {
	t, err := defaultOrErr()
	if err != nil {
		return err
	}
	return t.TrackStructEvent(ev, opts...)
}

// TrackSelfDescribingEvent is the Facade using the default tracker.
func TrackSelfDescribingEvent(ev SelfDescribing, opts ...TrackOption) error {
	t, err := defaultOrErr()
	if err != nil {
		return err
	}
	return t.TrackSelfDescribingEvent(ev, opts...)
}

// TrackEcommerceTransaction is the Facade using the default tracker.
func TrackEcommerceTransaction(ev Transaction, opts ...TrackOption) error {
	t, err := defaultOrErr()
	if err != nil {
		return err
	}
	return t.TrackEcommerceTransaction(ev, opts...)
}

// Flush flushes the default tracker, if any.
func Flush(async bool) {
	if t := Default(); t != nil {
		t.Flush(async)
	}
}

// Close closes the default tracker, if any.
func Close(ctx context.Context) error {
	if t := Default(); t != nil {
		return t.Close(ctx)
	}
	return nil
}
