package xtrack

import (
	"github.com/rs/zerolog"
)

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver is an Adapter that writes emitter events to a zerolog logger.
type LoggingObserver struct {
	Logger *zerolog.Logger
}

func (o LoggingObserver) OnEvent(e Event) {
	if o.Logger == nil {
		return
	}
	ctx := o.Logger.With().
		Str("type", string(e.Type)).
		Str("emitter", e.Emitter)
	if e.Method != "" {
		ctx = ctx.Str("method", e.Method)
	}
	if e.BatchSize > 0 {
		ctx = ctx.Int("batch_size", e.BatchSize)
	}
	lg := ctx.Logger()

	switch e.Type {
	case EventError, EventWorkerPanic:
		lg.Warn().Err(e.Err).Msg("xtrack event")
	case EventSendDone:
		ev := lg.Debug()
		if e.Failed > 0 {
			ev = lg.Warn().Err(e.Err)
		}
		ev.Int("sent", e.Sent).Int("failed", e.Failed).Dur("duration", e.Duration).Msg("xtrack event")
	default:
		lg.Debug().Msg("xtrack event")
	}
}
