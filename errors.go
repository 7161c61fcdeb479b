package xtrack

import (
	"errors"
	"fmt"
)

type ErrUnknownTransport struct{ name string }

func (e ErrUnknownTransport) Error() string { return fmt.Sprintf("unknown transport: %s", e.name) }

var (
	ErrEmptyEndpoint    = errors.New("xtrack: collector endpoint must not be empty")
	ErrNoTransport      = errors.New("xtrack: no transport configured")
	ErrNoEmitters       = errors.New("xtrack: tracker needs at least one emitter")
	ErrEmitterClosed    = errors.New("xtrack: emitter is closed")
	ErrShutdownTimeout  = errors.New("xtrack: shutdown timed out before workers drained")
	ErrInvalidPlatform  = errors.New("xtrack: unsupported platform")
	ErrNoDefaultTracker = errors.New("xtrack: no default tracker installed")

	ErrObserverPoolShutdownTimeout = errors.New("xtrack: observer pool shutdown timed out")
)

// ConfigError reports an option that was rejected while constructing an Emitter.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("xtrack: invalid emitter option %q: %s", e.Key, e.Reason)
}

// ValidationError reports an event that cannot be tracked because a required
// field is missing or malformed.
type ValidationError struct {
	Event string
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("xtrack: %s event requires %s", e.Event, e.Field)
}

type panicError struct{ value any }

func (p panicError) Error() string { return fmt.Sprintf("xtrack: recovered panic: %v", p.value) }
