package memory

import (
	"fmt"

	"github.com/trickstertwo/xtrack"
)

// Use builds a tracker whose single emitter delivers to an in-memory
// transport, installs it as the default tracker and returns both.
//
// Example:
//
//	tr, mem := memory.Use(memory.Config{},
//	    xtrack.Config{Method: xtrack.MethodPost, BufferSize: 5},
//	    xtrack.TrackerConfig{Namespace: "ns", AppID: "app"},
//	    memory.WithLogger(logger),
//	)
func Use(cfg Config, ecfg xtrack.Config, tcfg xtrack.TrackerConfig, opts ...Option) (*xtrack.Tracker, *Transport) {
	t := NewTransport(cfg)
	bb := xtrack.NewEmitterBuilder().
		WithConfig(ecfg).
		WithTransportInstance(t)

	for _, o := range opts {
		if o != nil {
			o(bb)
		}
	}

	em, err := bb.Build()
	if err != nil {
		panic(fmt.Errorf("memory.Use: %w", err))
	}
	tcfg.Emitters = append(tcfg.Emitters, em)
	tr, err := xtrack.NewTracker(tcfg)
	if err != nil {
		panic(fmt.Errorf("memory.Use: %w", err))
	}

	xtrack.SetDefault(tr)
	return tr, t
}

// Option configures the emitter built by Use.
type Option = xtrack.Option

// WithAsync sends batches on ThreadCount worker goroutines.
func WithAsync() Option {
	return func(b *xtrack.EmitterBuilder) { b.WithAsync(true) }
}

var (
	WithLogger       = xtrack.WithLogger
	WithClock        = xtrack.WithClock
	WithObserver     = xtrack.WithObserver
	WithMiddleware   = xtrack.WithMiddleware
	WithObserverPool = xtrack.WithObserverPool
)
