package xtrack

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig controls re-sending of the failed part of a batch.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first send.
	MaxAttempts int
	// Backoff computes the base wait before the next attempt.
	Backoff func(attempt int) time.Duration
	// RetryIf, when provided, returns true if the result should be retried.
	// If nil, every failed result is retried (bounded by MaxAttempts).
	RetryIf func(r Result) bool
	// Jitter adds up to [0, Jitter] random delay to the base backoff.
	Jitter time.Duration
}

// ExponentialBackoff doubles base on every attempt up to limit.
func ExponentialBackoff(base, limit time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		d := base << (attempt - 1)
		if d <= 0 || d > limit {
			return limit
		}
		return d
	}
}

// RetryMiddleware re-sends only the events a previous attempt failed to
// deliver. Sent counts accumulate across attempts.
func RetryMiddleware(cfg RetryConfig) Middleware {
	return func(next SendFunc) SendFunc {
		return func(ctx context.Context, batch []*Payload) Result {
			attempts := cfg.MaxAttempts
			if attempts < 1 {
				attempts = 1
			}
			shouldRetry := cfg.RetryIf
			if shouldRetry == nil {
				shouldRetry = func(Result) bool { return true }
			}

			sent := 0
			pending := batch
			var last Result
			for i := 1; i <= attempts; i++ {
				last = next(ctx, pending)
				sent += last.Sent
				if last.OK() {
					return Result{Sent: sent}
				}
				pending = last.Failed
				if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
					break
				}
				if i == attempts || !shouldRetry(last) {
					break
				}
				if cfg.Backoff != nil {
					wait := cfg.Backoff(i)
					if cfg.Jitter > 0 {
						wait += time.Duration(rand.Int63n(int64(cfg.Jitter)))
					}
					if lg, ok := LoggerFromContext(ctx); ok {
						lg.Debug().Err(last.Err).Int("attempt", i).Int("pending", len(pending)).Dur("wait", wait).Msg("xtrack: retrying failed events")
					}
					after := time.After
					if clk, ok := ClockFromContext(ctx); ok {
						after = clk.After
					}
					select {
					case <-ctx.Done():
						return Result{Sent: sent, Failed: pending, Err: last.Err}
					case <-after(wait):
					}
				}
			}
			return Result{Sent: sent, Failed: pending, Err: last.Err}
		}
	}
}

// TimeoutMiddleware bounds one Send call through its ctx. The transport's
// own Result is returned, so events delivered before the deadline are still
// counted as sent. Transports must stop at ctx cancellation for the bound to
// hold.
func TimeoutMiddleware(d time.Duration) Middleware {
	if d <= 0 {
		return func(next SendFunc) SendFunc { return next }
	}
	return func(next SendFunc) SendFunc {
		return func(ctx context.Context, batch []*Payload) Result {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(tctx, batch)
		}
	}
}

// RecoveryMiddleware converts a transport panic into a failed Result.
func RecoveryMiddleware() Middleware {
	return func(next SendFunc) SendFunc {
		return func(ctx context.Context, batch []*Payload) (res Result) {
			defer func() {
				if r := recover(); r != nil {
					res = Result{Failed: batch, Err: fmt.Errorf("panic recovered: %v", r)}
				}
			}()
			return next(ctx, batch)
		}
	}
}
