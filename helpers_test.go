package xtrack

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeTransport records batches. send, when set, decides the Result.
type fakeTransport struct {
	mu      sync.Mutex
	batches [][]*Payload
	send    func(batch []*Payload) Result
	closed  bool
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Send(_ context.Context, batch []*Payload) Result {
	res := Result{Sent: len(batch)}
	if f.send != nil {
		res = f.send(batch)
	}
	f.mu.Lock()
	f.batches = append(f.batches, batch)
	f.mu.Unlock()
	return res
}

func (f *fakeTransport) Close(context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Batches() [][]*Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]*Payload(nil), f.batches...)
}

func (f *fakeTransport) Events() []*Payload {
	var out []*Payload
	for _, b := range f.Batches() {
		out = append(out, b...)
	}
	return out
}

func newTestEmitter(t *testing.T, tr Transport, cfg Config, async bool, opts ...Option) *Emitter {
	t.Helper()
	bb := NewEmitterBuilder().
		WithConfig(cfg).
		WithAsync(async).
		WithTransportInstance(tr).
		WithLogger(zerolog.Nop())
	for _, o := range opts {
		o(bb)
	}
	em, err := bb.Build()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = em.Close(ctx)
	})
	return em
}

func pv(url string) *Payload {
	p := NewPayload()
	p.Add("e", "pv")
	p.Add("url", url)
	return p
}
