package xtrack

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xclock/adapter/frozen"
)

// collectorStub records requests made to it.
type collectorStub struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	status   int
}

func newCollectorStub(t *testing.T) (*collectorStub, string) {
	t.Helper()
	c := &collectorStub{status: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.requests = append(c.requests, r)
		c.bodies = append(c.bodies, string(body))
		status := c.status
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return c, strings.TrimPrefix(srv.URL, "http://")
}

func (c *collectorStub) snapshot() ([]*http.Request, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*http.Request(nil), c.requests...), append([]string(nil), c.bodies...)
}

func (c *collectorStub) setStatus(code int) {
	c.mu.Lock()
	c.status = code
	c.mu.Unlock()
}

// TestEmitter_GetQuerystring tests that a GET event carries its fields and a numeric stm.
func TestEmitter_GetQuerystring(t *testing.T) {
	stub, endpoint := newCollectorStub(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := frozen.New(now)

	em, err := NewEmitter(endpoint, Config{}, WithLogger(zerolog.Nop()), WithClock(clk))
	require.NoError(t, err)
	defer em.Close(context.Background())

	em.Input(pv("http://www.example.com/a b"))

	reqs, _ := stub.snapshot()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, DefaultGetPath, reqs[0].URL.Path)
	assert.True(t, strings.HasPrefix(reqs[0].URL.RawQuery, "e=pv&url="), reqs[0].URL.RawQuery)

	q := reqs[0].URL.Query()
	assert.Equal(t, "pv", q.Get("e"))
	assert.Equal(t, "http://www.example.com/a b", q.Get("url"))
	stm, err := strconv.ParseInt(q.Get("stm"), 10, 64)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), stm)
}

// TestEmitter_PostBatch tests that a full POST buffer becomes one ordered envelope.
func TestEmitter_PostBatch(t *testing.T) {
	stub, endpoint := newCollectorStub(t)
	var successes []int
	cfg := Config{
		Method:     MethodPost,
		BufferSize: 3,
		OnSuccess:  func(n int) { successes = append(successes, n) },
	}
	em, err := NewEmitter(endpoint, cfg, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer em.Close(context.Background())

	em.Input(pv("http://a.test/1"))
	em.Input(pv("http://a.test/2"))
	reqs, _ := stub.snapshot()
	assert.Empty(t, reqs)

	em.Input(pv("http://a.test/3"))
	reqs, bodies := stub.snapshot()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, DefaultPostPath, reqs[0].URL.Path)
	assert.Equal(t, "application/json; charset=utf-8", reqs[0].Header.Get("Content-Type"))

	var env struct {
		Schema string              `json:"schema"`
		Data   []map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(bodies[0]), &env))
	assert.Equal(t, SchemaPayloadData, env.Schema)
	require.Len(t, env.Data, 3)
	for i, ev := range env.Data {
		assert.Equal(t, "http://a.test/"+strconv.Itoa(i+1), ev["url"])
		_, err := strconv.ParseInt(ev["stm"], 10, 64)
		assert.NoError(t, err)
	}
	assert.Equal(t, []int{3}, successes)
}

// TestEmitter_UnreachableCollector tests that a connection failure reports
// every event as failed and never calls OnSuccess.
func TestEmitter_UnreachableCollector(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	endpoint := ln.Addr().String()
	require.NoError(t, ln.Close())

	var (
		successCalled bool
		failedSent    = -1
		failed        []*Payload
	)
	cfg := Config{
		OnSuccess: func(int) { successCalled = true },
		OnFailure: func(sent int, f []*Payload) {
			failedSent = sent
			failed = f
		},
	}
	em, err := NewEmitter(endpoint, cfg,
		WithLogger(zerolog.Nop()),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	defer em.Close(context.Background())

	ev := pv("http://a.test/")
	em.Input(ev)

	assert.False(t, successCalled)
	assert.Equal(t, 0, failedSent)
	require.Len(t, failed, 1)
	assert.Equal(t, "pv", failed[0].GetString("e"))
	assert.Equal(t, "http://a.test/", failed[0].GetString("url"))
	assert.Equal(t, uint64(1), em.GetMetrics().EventsFailed)
}

// TestEmitter_BadStatus tests that a status outside 200-399 fails the batch.
func TestEmitter_BadStatus(t *testing.T) {
	stub, endpoint := newCollectorStub(t)
	stub.setStatus(http.StatusInternalServerError)

	var failed []*Payload
	em, err := NewEmitter(endpoint, Config{
		Method:     MethodPost,
		BufferSize: 2,
		OnFailure:  func(_ int, f []*Payload) { failed = f },
	}, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer em.Close(context.Background())

	em.Input(pv("http://a.test/1"))
	em.Input(pv("http://a.test/2"))
	assert.Len(t, failed, 2)

	stub.setStatus(http.StatusAccepted)
	failed = nil
	em.Input(pv("http://a.test/3"))
	em.Flush(false)
	assert.Empty(t, failed)
}

// TestEmitter_GetPartialFailure tests per-event accounting for GET batches.
func TestEmitter_GetPartialFailure(t *testing.T) {
	var n int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		n++
		fail := n == 2
		mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var (
		calls  int
		sent   int
		failed []*Payload
	)
	em, err := NewEmitter(strings.TrimPrefix(srv.URL, "http://"), Config{
		BufferSize: 3,
		OnFailure: func(s int, f []*Payload) {
			calls++
			sent = s
			failed = f
		},
	}, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer em.Close(context.Background())

	em.Input(pv("http://a.test/1"))
	em.Input(pv("http://a.test/2"))
	em.Input(pv("http://a.test/3"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, sent)
	require.Len(t, failed, 1)
	assert.Equal(t, "http://a.test/2", failed[0].GetString("url"))
}

func TestEncodeQuery(t *testing.T) {
	p := NewPayload()
	p.Add("e", "se")
	p.Add("se_ca", "a&b")
	p.Add("se_va", 1.5)

	q := EncodeQuery(p)
	assert.Equal(t, "e=se&se_ca=a%26b&se_va=1.5", q)

	parsed, err := url.ParseQuery(q)
	require.NoError(t, err)
	if diff := deep.Equal(parsed.Get("se_ca"), "a&b"); diff != nil {
		t.Error(diff)
	}
}

func TestNewCollectorTransport_Validation(t *testing.T) {
	_, err := NewCollectorTransport(CollectorConfig{})
	assert.ErrorIs(t, err, ErrEmptyEndpoint)

	_, err = NewCollectorTransport(CollectorConfig{URI: "http://c.test/i", Method: "put"})
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)

	tr, err := NewTransport(CollectorTransportName, map[string]any{"uri": "http://c.test/i", "method": "post", "codec": "json"})
	require.NoError(t, err)
	assert.Equal(t, "http://c.test/i", tr.Name())

	_, err = NewTransport(CollectorTransportName, map[string]any{"uri": "http://c.test/i", "codec": "xml"})
	assert.ErrorAs(t, err, &ce)
}
