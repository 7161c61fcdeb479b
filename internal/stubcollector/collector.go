// Package stubcollector is a minimal collector for local development and
// tests. It accepts GET and POST tracker requests, records every event it
// receives and exposes request counters on /metrics. It performs no schema
// validation beyond the POST envelope.
package stubcollector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	DefaultGetPath  = "/i"
	DefaultPostPath = "/com.snowplowanalytics.snowplow/tp2"
	MetricsPath     = "/metrics"

	payloadDataSchemaPrefix = "iglu:com.snowplowanalytics.snowplow/payload_data/"
	maxBodyBytes            = 8 << 20
)

// Request is one event as received by the collector.
type Request struct {
	Method string
	Path   string
	Fields map[string]string
}

type Config struct {
	GetPath  string
	PostPath string
	Logger   zerolog.Logger
	// Registry receives the collector metrics. A private registry is created
	// when nil.
	Registry *prometheus.Registry
}

// Collector records events. Its zero value is not usable; call New.
type Collector struct {
	cfg Config
	mux *http.ServeMux

	mu       sync.Mutex
	changed  *sync.Cond
	events   []Request
	requests int
	failNext int
	failCode int

	requestsTotal *prometheus.CounterVec
	eventsTotal   *prometheus.CounterVec
}

func New(cfg Config) *Collector {
	if cfg.GetPath == "" {
		cfg.GetPath = DefaultGetPath
	}
	if cfg.PostPath == "" {
		cfg.PostPath = DefaultPostPath
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	c := &Collector{
		cfg: cfg,
		mux: http.NewServeMux(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtrack_collector_requests_total",
				Help: "Total number of collector requests by method and status",
			},
			[]string{"method", "status"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtrack_collector_events_total",
				Help: "Total number of events recorded by method",
			},
			[]string{"method"},
		),
	}
	c.changed = sync.NewCond(&c.mu)
	cfg.Registry.MustRegister(c.requestsTotal, c.eventsTotal)

	c.mux.HandleFunc(cfg.GetPath, c.handleGet)
	c.mux.HandleFunc(cfg.PostPath, c.handlePost)
	c.mux.Handle(MetricsPath, promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	return c
}

func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mux.ServeHTTP(w, r)
}

func (c *Collector) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		c.reply(w, r, http.StatusMethodNotAllowed)
		return
	}
	if c.failing(w, r) {
		return
	}

	fields := make(map[string]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			fields[k] = vs[len(vs)-1]
		}
	}
	c.record(Request{Method: http.MethodGet, Path: r.URL.Path, Fields: fields})
	c.reply(w, r, http.StatusOK)
}

type envelope struct {
	Schema string              `json:"schema"`
	Data   []map[string]string `json:"data"`
}

func (c *Collector) handlePost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		c.reply(w, r, http.StatusMethodNotAllowed)
		return
	}
	if c.failing(w, r) {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		c.cfg.Logger.Warn().Err(err).Msg("stubcollector: read body")
		c.reply(w, r, http.StatusBadRequest)
		return
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.cfg.Logger.Warn().Err(err).Msg("stubcollector: decode envelope")
		c.reply(w, r, http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(env.Schema, payloadDataSchemaPrefix) {
		c.cfg.Logger.Warn().Str("schema", env.Schema).Msg("stubcollector: unexpected schema")
		c.reply(w, r, http.StatusBadRequest)
		return
	}

	reqs := make([]Request, 0, len(env.Data))
	for _, fields := range env.Data {
		reqs = append(reqs, Request{Method: http.MethodPost, Path: r.URL.Path, Fields: fields})
	}
	c.record(reqs...)
	c.reply(w, r, http.StatusOK)
}

// failing answers r with the injected status if FailNext is armed.
func (c *Collector) failing(w http.ResponseWriter, r *http.Request) bool {
	c.mu.Lock()
	c.requests++
	if c.failNext == 0 {
		c.mu.Unlock()
		return false
	}
	c.failNext--
	code := c.failCode
	c.mu.Unlock()

	c.reply(w, r, code)
	return true
}

func (c *Collector) record(reqs ...Request) {
	if len(reqs) == 0 {
		return
	}
	c.mu.Lock()
	c.events = append(c.events, reqs...)
	c.changed.Broadcast()
	c.mu.Unlock()

	c.eventsTotal.WithLabelValues(reqs[0].Method).Add(float64(len(reqs)))
	for _, req := range reqs {
		c.cfg.Logger.Debug().Str("method", req.Method).Str("e", req.Fields["e"]).Str("eid", req.Fields["eid"]).Msg("stubcollector: event received")
	}
}

func (c *Collector) reply(w http.ResponseWriter, r *http.Request, code int) {
	c.requestsTotal.WithLabelValues(r.Method, fmt.Sprint(code)).Inc()
	w.WriteHeader(code)
}

// FailNext answers the next n tracker requests with status code.
func (c *Collector) FailNext(n, code int) {
	c.mu.Lock()
	c.failNext = n
	c.failCode = code
	c.mu.Unlock()
}

// Events returns every recorded event in arrival order.
func (c *Collector) Events() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.events...)
}

// Requests returns the number of tracker requests received, failed ones
// included.
func (c *Collector) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

func (c *Collector) Reset() {
	c.mu.Lock()
	c.events = nil
	c.requests = 0
	c.failNext = 0
	c.mu.Unlock()
}

// WaitFor blocks until at least n events are recorded or ctx ends.
func (c *Collector) WaitFor(ctx context.Context, n int) error {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.changed.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.events) < n {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stubcollector: %d of %d events: %w", len(c.events), n, err)
		}
		c.changed.Wait()
	}
	return nil
}
