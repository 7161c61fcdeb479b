package redisstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xtrack"
)

// Transport appends tracked events to a Redis Stream.
type Transport struct {
	cfg    Config
	client *redis.Client
	codec  xtrack.Codec

	closeOnce sync.Once
	closed    atomic.Bool

	metrics *transportMetrics
}

type transportMetrics struct {
	published     atomic.Uint64
	publishErrors atomic.Uint64
	pipelines     atomic.Uint64
}

// Stats is a snapshot of transport counters.
type Stats struct {
	Published     uint64
	PublishErrors uint64
	Pipelines     uint64
}

var _ xtrack.Transport = (*Transport)(nil)

// NewTransport connects to Redis and verifies the connection with PING.
func NewTransport(cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}

	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}

	client := redis.NewClient(opts)
	if err := ping(client); err != nil {
		_ = client.Close()
		return nil, err
	}

	return newTransport(cfg, client), nil
}

func newTransport(cfg Config, client *redis.Client) *Transport {
	return &Transport{
		cfg:     cfg,
		client:  client,
		codec:   xtrack.JSONCodec{},
		metrics: &transportMetrics{},
	}
}

// Name returns redis-streams:<stream>.
func (t *Transport) Name() string { return TransportName + ":" + t.cfg.Stream }

// Send appends every event of batch with one pipelined XADD each. Events
// whose XADD failed are reported in Result.Failed.
func (t *Transport) Send(ctx context.Context, batch []*xtrack.Payload) xtrack.Result {
	if len(batch) == 0 {
		return xtrack.Result{}
	}
	if t.closed.Load() {
		return xtrack.Result{Failed: batch, Err: errors.New("redis stream transport is closed")}
	}

	pipe := t.client.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(batch))
	var res xtrack.Result
	queued := make([]*xtrack.Payload, 0, len(batch))

	for _, p := range batch {
		vals, err := t.entry(p)
		if err != nil {
			res.Failed = append(res.Failed, p)
			res.Err = err
			continue
		}
		args := &redis.XAddArgs{
			Stream: t.cfg.Stream,
			ID:     "*",
			Values: vals,
		}
		if t.cfg.MaxLenApprox > 0 {
			args.MaxLen = t.cfg.MaxLenApprox
			args.Approx = true
		}
		cmds = append(cmds, pipe.XAdd(ctx, args))
		queued = append(queued, p)
	}

	t.metrics.pipelines.Add(1)
	if _, err := pipe.Exec(ctx); err != nil {
		res.Err = err
	}
	for i, cmd := range cmds {
		if err := cmd.Err(); err != nil {
			res.Failed = append(res.Failed, queued[i])
			res.Err = err
			continue
		}
		res.Sent++
	}

	t.metrics.published.Add(uint64(res.Sent))
	t.metrics.publishErrors.Add(uint64(len(res.Failed)))
	if len(res.Failed) == 0 {
		res.Err = nil
	}
	return res
}

// entry flattens p into XADD values.
func (t *Transport) entry(p *xtrack.Payload) (map[string]any, error) {
	body, err := t.codec.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("redis stream: encode event: %w", err)
	}
	vals := make(map[string]any, 4)
	vals[fieldEventType] = p.GetString("e")
	vals[fieldEventID] = p.GetString("eid")
	vals[fieldSentAt] = p.GetString("stm")
	vals[fieldPayload] = body
	return vals, nil
}

// Stats returns a snapshot of transport counters.
func (t *Transport) Stats() Stats {
	return Stats{
		Published:     t.metrics.published.Load(),
		PublishErrors: t.metrics.publishErrors.Load(),
		Pipelines:     t.metrics.pipelines.Load(),
	}
}

// Close closes the Redis client.
func (t *Transport) Close(ctx context.Context) error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		err = t.client.Close()
	})
	return err
}

func ping(c *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := c.Ping(ctx).Result()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("redis ping timeout: %w", err)
		}
		return err
	}

	if strings.ToUpper(res) != "PONG" {
		return fmt.Errorf("unexpected redis ping result: %s", res)
	}
	return nil
}
