package redisstream

import (
	"fmt"

	"github.com/trickstertwo/xtrack"
)

const TransportName = "redis-streams"

func init() {
	if err := xtrack.RegisterTransport(TransportName, func(cfg map[string]any) (xtrack.Transport, error) {
		t, err := NewTransport(ConfigFromMap(cfg))
		if err != nil {
			return nil, err
		}
		return t, nil
	}); err != nil {
		panic(fmt.Errorf("xtrack: failed to register transport %q: %w", TransportName, err))
	}
}

// Use builds a tracker whose emitter appends to a Redis Stream, installs it
// as the default tracker and returns it.
func Use(cfg Config, ecfg xtrack.Config, tcfg xtrack.TrackerConfig, opts ...Option) *xtrack.Tracker {
	bb := xtrack.NewEmitterBuilder().
		WithConfig(ecfg).
		WithTransport(TransportName, cfg.toMap())

	for _, o := range opts {
		if o != nil {
			o(bb)
		}
	}
	em, err := bb.Build()
	if err != nil {
		panic(fmt.Errorf("redisstream.Use: %w", err))
	}
	tcfg.Emitters = append(tcfg.Emitters, em)
	tr, err := xtrack.NewTracker(tcfg)
	if err != nil {
		panic(fmt.Errorf("redisstream.Use: %w", err))
	}

	xtrack.SetDefault(tr)
	return tr
}
