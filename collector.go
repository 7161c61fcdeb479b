package xtrack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CollectorTransportName is the registry name of the HTTP collector transport.
const CollectorTransportName = "http"

func init() {
	if err := RegisterTransport(CollectorTransportName, func(cfg map[string]any) (Transport, error) {
		return newCollectorFromMap(cfg)
	}); err != nil {
		panic(fmt.Errorf("xtrack: failed to register transport %q: %w", CollectorTransportName, err))
	}
}

// CollectorConfig configures the HTTP collector transport.
type CollectorConfig struct {
	// URI is the full collector URI, see Config.CollectorURI.
	URI    string
	Method string
	// Client defaults to a client with a 10s timeout.
	Client *http.Client
	// Codec encodes the POST envelope. Defaults to JSONCodec.
	Codec  Codec
	Logger zerolog.Logger
}

// CollectorTransport delivers events to a collector over HTTP. GET sends one
// request per event with the fields in the querystring; POST sends the whole
// batch as one payload_data envelope.
type CollectorTransport struct {
	uri    string
	method string
	client *http.Client
	codec  Codec
	logger zerolog.Logger
}

// NewCollectorTransport validates cfg and returns a transport.
func NewCollectorTransport(cfg CollectorConfig) (*CollectorTransport, error) {
	if cfg.URI == "" {
		return nil, ErrEmptyEndpoint
	}
	if _, err := url.Parse(cfg.URI); err != nil {
		return nil, &ConfigError{Key: "endpoint", Reason: err.Error()}
	}
	method := strings.ToLower(cfg.Method)
	if method == "" {
		method = MethodGet
	}
	if method != MethodGet && method != MethodPost {
		return nil, &ConfigError{Key: "method", Reason: fmt.Sprintf("must be get or post, got %q", cfg.Method)}
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	codec := cfg.Codec
	if codec == nil {
		codec = defaultCodec
	}
	return &CollectorTransport{
		uri:    cfg.URI,
		method: method,
		client: client,
		codec:  codec,
		logger: cfg.Logger,
	}, nil
}

func newCollectorFromMap(m map[string]any) (Transport, error) {
	cfg := CollectorConfig{Logger: defaultLogger()}
	if v, ok := m["uri"].(string); ok {
		cfg.URI = v
	}
	if v, ok := m["method"].(string); ok {
		cfg.Method = v
	}
	if v, ok := m["client"].(*http.Client); ok {
		cfg.Client = v
	}
	if v, ok := m["timeout"].(time.Duration); ok && v > 0 {
		cfg.Client = &http.Client{Timeout: v}
	}
	if v, ok := m["codec"].(string); ok && v != "" {
		c, err := NewCodec(v)
		if err != nil {
			return nil, &ConfigError{Key: "codec", Reason: err.Error()}
		}
		cfg.Codec = c
	}
	if v, ok := m["logger"].(zerolog.Logger); ok {
		cfg.Logger = v
	}
	t, err := NewCollectorTransport(cfg)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Name returns the collector URI.
func (t *CollectorTransport) Name() string { return t.uri }

// Method returns get or post.
func (t *CollectorTransport) Method() string { return t.method }

// Send implements Transport.
func (t *CollectorTransport) Send(ctx context.Context, batch []*Payload) Result {
	if len(batch) == 0 {
		return Result{}
	}
	if t.method == MethodPost {
		return t.sendPost(ctx, batch)
	}
	return t.sendGet(ctx, batch)
}

// Close releases idle connections.
func (t *CollectorTransport) Close(context.Context) error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *CollectorTransport) sendGet(ctx context.Context, batch []*Payload) Result {
	var res Result
	for _, p := range batch {
		if err := t.get(ctx, p); err != nil {
			t.logger.Warn().Err(err).Str("uri", t.uri).Msg("xtrack: GET request failed")
			res.Failed = append(res.Failed, p)
			res.Err = err
			continue
		}
		res.Sent++
	}
	return res
}

func (t *CollectorTransport) get(ctx context.Context, p *Payload) error {
	dest := t.uri + "?" + EncodeQuery(p)
	t.logger.Info().Str("uri", t.uri).Msg("xtrack: sending GET request")
	t.logger.Debug().Stringer("payload", p).Msg("xtrack: GET payload")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dest, nil)
	if err != nil {
		return err
	}
	return t.do(req, "GET")
}

func (t *CollectorTransport) sendPost(ctx context.Context, batch []*Payload) Result {
	body, err := t.codec.Marshal(NewSelfDescribingJSON(SchemaPayloadData, batch))
	if err != nil {
		return Result{Failed: batch, Err: err}
	}
	t.logger.Info().Str("uri", t.uri).Int("events", len(batch)).Msg("xtrack: sending POST request")
	t.logger.Debug().Bytes("payload", body).Msg("xtrack: POST payload")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.uri, bytes.NewReader(body))
	if err != nil {
		return Result{Failed: batch, Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if err := t.do(req, "POST"); err != nil {
		t.logger.Warn().Err(err).Str("uri", t.uri).Msg("xtrack: POST request failed")
		return Result{Failed: batch, Err: err}
	}
	return Result{Sent: len(batch)}
}

func (t *CollectorTransport) do(req *http.Request, method string) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if !goodStatus(resp.StatusCode) {
		t.logger.Warn().Int("status", resp.StatusCode).Str("uri", t.uri).Msgf("xtrack: %s request finished", method)
		return &StatusError{Code: resp.StatusCode}
	}
	t.logger.Info().Int("status", resp.StatusCode).Str("uri", t.uri).Msgf("xtrack: %s request finished", method)
	return nil
}

// StatusError reports a collector response outside 200-399.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("xtrack: collector responded with status %d", e.Code)
}

func goodStatus(code int) bool { return code >= 200 && code < 400 }

// EncodeQuery form-encodes the payload fields in insertion order.
func EncodeQuery(p *Payload) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(stringify(p.values[k])))
	}
	return b.String()
}
