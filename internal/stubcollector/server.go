package stubcollector

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Serve runs c on ln until ctx ends, then shuts the server down gracefully.
func Serve(ctx context.Context, ln net.Listener, c *Collector) error {
	srv := &http.Server{
		Handler:           c,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	c.cfg.Logger.Info().Str("addr", ln.Addr().String()).Str("get", c.cfg.GetPath).Str("post", c.cfg.PostPath).Msg("stubcollector: listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	c.cfg.Logger.Info().Int("events", len(c.Events())).Msg("stubcollector: stopped")
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func ListenAndServe(ctx context.Context, addr string, c *Collector) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, c)
}
