package xtrack

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/trickstertwo/xclock"
)

// ctxKey is the base for all context keys in xtrack (prevents collisions).
type ctxKey string

const (
	loggerCtxKey ctxKey = "xtrack:logger"
	clockCtxKey  ctxKey = "xtrack:clock"
)

// defaultLogger writes info and above to stderr.
func defaultLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Str("component", "xtrack").
		Logger()
}

func injectLogger(ctx context.Context, l *zerolog.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerCtxKey, l)
}

// LoggerFromContext returns the emitter logger attached to a Send context.
func LoggerFromContext(ctx context.Context) (*zerolog.Logger, bool) {
	if v := ctx.Value(loggerCtxKey); v != nil {
		if l, ok := v.(*zerolog.Logger); ok && l != nil {
			return l, true
		}
	}
	return nil, false
}

func injectClock(ctx context.Context, c xclock.Clock) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, clockCtxKey, c)
}

// ClockFromContext returns the emitter clock attached to a Send context.
func ClockFromContext(ctx context.Context) (xclock.Clock, bool) {
	if v := ctx.Value(clockCtxKey); v != nil {
		if c, ok := v.(xclock.Clock); ok && c != nil {
			return c, true
		}
	}
	return nil, false
}

// InjectAll attaches logger and clock for transports and middleware.
func InjectAll(ctx context.Context, logger *zerolog.Logger, clock xclock.Clock) context.Context {
	ctx = injectLogger(ctx, logger)
	ctx = injectClock(ctx, clock)
	return ctx
}
