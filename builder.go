package xtrack

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/trickstertwo/xclock"
)

// EmitterBuilder constructs Emitter instances (Builder pattern).
type EmitterBuilder struct {
	endpoint string
	cfg      Config
	async    bool

	transportName string
	transportCfg  map[string]any
	transportInst Transport
	httpClient    *http.Client

	middlewares []Middleware
	observers   []Observer
	logger      *zerolog.Logger
	clock       xclock.Clock

	observerWorkers int
	observerBuffer  int
}

// Option configures an EmitterBuilder.
type Option func(*EmitterBuilder)

// NewEmitterBuilder returns a builder with collector defaults.
func NewEmitterBuilder() *EmitterBuilder {
	return &EmitterBuilder{cfg: Defaults()}
}

// WithEndpoint sets the collector host, e.g. "collector.example.com".
func (bb *EmitterBuilder) WithEndpoint(endpoint string) *EmitterBuilder {
	bb.endpoint = endpoint
	return bb
}

func (bb *EmitterBuilder) WithConfig(cfg Config) *EmitterBuilder {
	bb.cfg = cfg
	return bb
}

// WithAsync selects the worker pool sender.
func (bb *EmitterBuilder) WithAsync(async bool) *EmitterBuilder {
	bb.async = async
	return bb
}

// WithTransport selects a registered transport by name instead of the HTTP
// collector.
func (bb *EmitterBuilder) WithTransport(name string, cfg map[string]any) *EmitterBuilder {
	bb.transportName = name
	bb.transportCfg = cfg
	return bb
}

// WithTransportInstance accepts a ready Transport instance.
func (bb *EmitterBuilder) WithTransportInstance(t Transport) *EmitterBuilder {
	bb.transportInst = t
	return bb
}

func (bb *EmitterBuilder) WithHTTPClient(c *http.Client) *EmitterBuilder {
	bb.httpClient = c
	return bb
}

func (bb *EmitterBuilder) WithMiddleware(mw ...Middleware) *EmitterBuilder {
	if len(mw) == 0 {
		return bb
	}
	bb.middlewares = append(bb.middlewares, mw...)
	return bb
}

func (bb *EmitterBuilder) WithObserver(obs ...Observer) *EmitterBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

func (bb *EmitterBuilder) WithLogger(l zerolog.Logger) *EmitterBuilder {
	bb.logger = &l
	return bb
}

func (bb *EmitterBuilder) WithClock(c xclock.Clock) *EmitterBuilder {
	bb.clock = c
	return bb
}

// WithObserverPool sizes the observer dispatch pool.
func (bb *EmitterBuilder) WithObserverPool(workers, bufferSize int) *EmitterBuilder {
	bb.observerWorkers = workers
	bb.observerBuffer = bufferSize
	return bb
}

func (bb *EmitterBuilder) Build() (*Emitter, error) {
	cfg := bb.cfg.Resolved()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lg := defaultLogger()
	if bb.logger != nil {
		lg = *bb.logger
	}
	clk := bb.clock
	if clk == nil {
		clk = xclock.Default()
	}

	var tr Transport
	switch {
	case bb.transportInst != nil:
		tr = bb.transportInst
	case bb.transportName != "":
		var err error
		tr, err = NewTransport(bb.transportName, bb.transportCfg)
		if err != nil {
			return nil, err
		}
	case bb.endpoint != "":
		ct, err := NewCollectorTransport(CollectorConfig{
			URI:    cfg.CollectorURI(bb.endpoint),
			Method: cfg.Method,
			Client: bb.httpClient,
			Logger: lg,
		})
		if err != nil {
			return nil, err
		}
		tr = ct
	default:
		return nil, ErrEmptyEndpoint
	}
	if tr == nil {
		return nil, ErrNoTransport
	}
	tr = WrapTransport(tr, bb.middlewares...)

	e := &Emitter{
		name:         tr.Name(),
		method:       cfg.Method,
		bufferSize:   cfg.BufferSize,
		onSuccess:    cfg.OnSuccess,
		onFailure:    cfg.OnFailure,
		transport:    tr,
		clock:        clk,
		logger:       lg,
		buffer:       make([]*Payload, 0, cfg.BufferSize),
		observerPool: NewObserverPool(context.Background(), bb.observerWorkers, bb.observerBuffer, lg),
		metrics:      &emitterMetrics{},
	}
	e.baseCtx = InjectAll(context.Background(), &e.logger, clk)

	if bb.async {
		e.sender = NewAsyncSender(cfg.ThreadCount, e.deliver, e.complete, lg, e.workerPanicked)
	} else {
		e.sender = NewSyncSender(e.deliver, e.complete)
	}

	hasLoggingObserver := false
	for _, o := range bb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		e.AddObserver(LoggingObserver{Logger: &e.logger})
	}
	for _, o := range bb.observers {
		e.AddObserver(o)
	}

	kind := "Emitter"
	if bb.async {
		kind = "AsyncEmitter"
	}
	lg.Info().Str("emitter", e.name).Str("method", e.method).Int("buffer_size", e.bufferSize).Msgf("xtrack: %s initialized", kind)
	return e, nil
}

// NewEmitter builds a synchronous emitter for the collector at endpoint.
// Flushed batches are sent on the goroutine that triggered the flush.
func NewEmitter(endpoint string, cfg Config, opts ...Option) (*Emitter, error) {
	return newEmitter(endpoint, cfg, false, opts)
}

// NewAsyncEmitter builds an emitter that sends flushed batches on
// cfg.ThreadCount worker goroutines.
func NewAsyncEmitter(endpoint string, cfg Config, opts ...Option) (*Emitter, error) {
	return newEmitter(endpoint, cfg, true, opts)
}

// NewEmitterFromMap is NewEmitter with options given as a map; see ConfigFromMap.
func NewEmitterFromMap(endpoint string, options map[string]any, async bool, opts ...Option) (*Emitter, error) {
	cfg, err := ConfigFromMap(options)
	if err != nil {
		return nil, err
	}
	return newEmitter(endpoint, cfg, async, opts)
}

func newEmitter(endpoint string, cfg Config, async bool, opts []Option) (*Emitter, error) {
	bb := NewEmitterBuilder().
		WithEndpoint(endpoint).
		WithConfig(cfg).
		WithAsync(async)
	for _, o := range opts {
		if o != nil {
			o(bb)
		}
	}
	if bb.transportInst == nil && bb.transportName == "" && endpoint == "" {
		return nil, ErrEmptyEndpoint
	}
	return bb.Build()
}

// WithLogger injects a zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *EmitterBuilder) { b.WithLogger(l) }
}

// WithClock injects a clock used for stm and timings.
func WithClock(c xclock.Clock) Option {
	return func(b *EmitterBuilder) { b.WithClock(c) }
}

// WithHTTPClient replaces the collector HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *EmitterBuilder) { b.WithHTTPClient(c) }
}

// WithTransportInstance delivers through t instead of the HTTP collector.
func WithTransportInstance(t Transport) Option {
	return func(b *EmitterBuilder) { b.WithTransportInstance(t) }
}

// WithTransport delivers through a registered transport.
func WithTransport(name string, cfg map[string]any) Option {
	return func(b *EmitterBuilder) { b.WithTransport(name, cfg) }
}

// WithMiddleware wraps the transport's Send.
func WithMiddleware(mw ...Middleware) Option {
	return func(b *EmitterBuilder) { b.WithMiddleware(mw...) }
}

// WithObserver attaches observers for lifecycle events.
func WithObserver(obs ...Observer) Option {
	return func(b *EmitterBuilder) { b.WithObserver(obs...) }
}

// WithObserverPool sizes the observer dispatch pool.
func WithObserverPool(workers, bufferSize int) Option {
	return func(b *EmitterBuilder) { b.WithObserverPool(workers, bufferSize) }
}
