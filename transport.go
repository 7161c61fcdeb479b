package xtrack

import (
	"context"
	"errors"
	"sync"
)

// SendFunc delivers a batch. It is the unit Middleware wraps.
type SendFunc func(ctx context.Context, batch []*Payload) Result

// Middleware composes delivery concerns around a SendFunc.
type Middleware func(next SendFunc) SendFunc

// TransportFactory constructs transports from a config blob.
type TransportFactory func(cfg map[string]any) (Transport, error)

var (
	transportRegistryMu sync.RWMutex
	transportRegistry   = map[string]TransportFactory{}
)

// RegisterTransport registers a delivery adapter.
func RegisterTransport(name string, factory TransportFactory) error {
	if name == "" {
		return errors.New("transport name must not be empty")
	}
	if factory == nil {
		return errors.New("transport factory must not be nil")
	}
	transportRegistryMu.Lock()
	transportRegistry[name] = factory
	transportRegistryMu.Unlock()
	return nil
}

// NewTransport constructs a transport by name with config.
func NewTransport(name string, cfg map[string]any) (Transport, error) {
	transportRegistryMu.RLock()
	f, ok := transportRegistry[name]
	transportRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownTransport{name: name}
	}
	return f(cfg)
}

// WrapTransport returns a Transport whose Send runs through mws.
func WrapTransport(t Transport, mws ...Middleware) Transport {
	if len(mws) == 0 {
		return t
	}
	return &wrappedTransport{Transport: t, send: Chain(t.Send, mws...)}
}

type wrappedTransport struct {
	Transport
	send SendFunc
}

func (w *wrappedTransport) Send(ctx context.Context, batch []*Payload) Result {
	return w.send(ctx, batch)
}

// Chain composes middlewares around a SendFunc in order.
func Chain(s SendFunc, mws ...Middleware) SendFunc {
	if len(mws) == 0 {
		return s
	}
	wrapped := s
	// Apply in reverse so that first middleware wraps last.
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}
