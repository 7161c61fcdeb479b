package redisstream

import (
	"github.com/rs/zerolog"
	"github.com/trickstertwo/xclock"

	"github.com/trickstertwo/xtrack"
)

// Option configures the emitter built by Use.
type Option func(*xtrack.EmitterBuilder)

// WithLogger injects a custom zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *xtrack.EmitterBuilder) { b.WithLogger(l) }
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(b *xtrack.EmitterBuilder) { b.WithClock(c) }
}

// WithAsync sends batches on ThreadCount worker goroutines.
func WithAsync() Option {
	return func(b *xtrack.EmitterBuilder) { b.WithAsync(true) }
}

// WithMiddleware wraps the stream transport, e.g. with retries.
func WithMiddleware(mw ...xtrack.Middleware) Option {
	return func(b *xtrack.EmitterBuilder) { b.WithMiddleware(mw...) }
}

// WithObserver attaches observers for lifecycle events.
func WithObserver(obs ...xtrack.Observer) Option {
	return func(b *xtrack.EmitterBuilder) { b.WithObserver(obs...) }
}
