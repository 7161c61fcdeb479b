package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/trickstertwo/xtrack"
	"github.com/trickstertwo/xtrack/internal/log"
)

func newTrackCmd() *cobra.Command {
	trackCmd := &cobra.Command{
		Use:   "track",
		Short: "Track one event and flush it to the collector",
	}

	f := trackCmd.PersistentFlags()
	f.String("endpoint", "", "Collector host, e.g. collector.example.com")
	f.String("config", "", "YAML file with endpoint, emitter and tracker sections")
	f.String("method", xtrack.MethodGet, "Request method (get or post)")
	f.String("protocol", xtrack.ProtocolHTTP, "Collector protocol (http or https)")
	f.Int("port", 0, "Collector port")
	f.Int("buffer-size", 0, "Events per request batch (default 1 for get, 10 for post)")
	f.Bool("async", false, "Send on a worker pool")
	f.Int("threads", 1, "Worker count for --async")
	f.Int("retries", 0, "Extra attempts for events the collector rejected")
	f.Duration("timeout", 10*time.Second, "Time allowed for delivery before giving up")
	f.String("namespace", "cli", "Tracker namespace (tna)")
	f.String("app-id", "", "Application id (aid)")
	f.String("platform", xtrack.DefaultPlatform, "Platform (p)")
	f.String("user-id", "", "User id (uid)")
	f.Bool("base64", true, "Base64 encode JSON fields")
	f.StringArray("context", nil, `Custom context as self-describing JSON, e.g. '{"schema":"iglu:...","data":{}}'`)
	f.Int64("true-timestamp", 0, "Send ttm (ms since epoch) instead of the device timestamp")

	trackCmd.AddCommand(newPageViewCmd())
	trackCmd.AddCommand(newStructCmd())
	trackCmd.AddCommand(newSelfDescribingCmd())
	trackCmd.AddCommand(newScreenViewCmd())
	trackCmd.AddCommand(newTransactionCmd())
	return trackCmd
}

func newPageViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "page-view",
		Short: "Track a page view",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			title, _ := cmd.Flags().GetString("title")
			referrer, _ := cmd.Flags().GetString("referrer")
			return runTrack(cmd, func(t *xtrack.Tracker, opts []xtrack.TrackOption) error {
				return t.TrackPageView(xtrack.PageView{URL: url, Title: title, Referrer: referrer}, opts...)
			})
		},
	}
	cmd.Flags().String("url", "", "Page URL (required)")
	cmd.Flags().String("title", "", "Page title")
	cmd.Flags().String("referrer", "", "Referrer URL")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newStructCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "struct",
		Short: "Track a structured event",
		RunE: func(cmd *cobra.Command, args []string) error {
			ev := xtrack.StructEvent{}
			ev.Category, _ = cmd.Flags().GetString("category")
			ev.Action, _ = cmd.Flags().GetString("action")
			ev.Label, _ = cmd.Flags().GetString("label")
			ev.Property, _ = cmd.Flags().GetString("property")
			if cmd.Flags().Changed("value") {
				v, _ := cmd.Flags().GetFloat64("value")
				ev.Value = &v
			}
			return runTrack(cmd, func(t *xtrack.Tracker, opts []xtrack.TrackOption) error {
				return t.TrackStructEvent(ev, opts...)
			})
		},
	}
	cmd.Flags().String("category", "", "Event category (required)")
	cmd.Flags().String("action", "", "Event action (required)")
	cmd.Flags().String("label", "", "Event label")
	cmd.Flags().String("property", "", "Event property")
	cmd.Flags().Float64("value", 0, "Event value")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func newSelfDescribingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "self-describing",
		Short: "Track a self-describing event",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			raw, _ := cmd.Flags().GetString("data")

			var data any
			if err := (xtrack.JSONCodec{}).Unmarshal([]byte(raw), &data); err != nil {
				return fmt.Errorf("invalid --data: %w", err)
			}
			ev := xtrack.SelfDescribing{Event: xtrack.NewSelfDescribingJSON(schema, data)}
			return runTrack(cmd, func(t *xtrack.Tracker, opts []xtrack.TrackOption) error {
				return t.TrackSelfDescribingEvent(ev, opts...)
			})
		},
	}
	cmd.Flags().String("schema", "", "Iglu schema URI (required)")
	cmd.Flags().String("data", "{}", "Event data as JSON")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func newScreenViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screen-view",
		Short: "Track a screen view",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			id, _ := cmd.Flags().GetString("id")
			return runTrack(cmd, func(t *xtrack.Tracker, opts []xtrack.TrackOption) error {
				return t.TrackScreenView(xtrack.ScreenView{Name: name, ID: id}, opts...)
			})
		},
	}
	cmd.Flags().String("name", "", "Screen name")
	cmd.Flags().String("id", "", "Screen id")
	return cmd
}

func newTransactionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transaction",
		Short: "Track an ecommerce transaction and its items from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			tx, err := loadTransaction(path)
			if err != nil {
				return err
			}
			return runTrack(cmd, func(t *xtrack.Tracker, opts []xtrack.TrackOption) error {
				return t.TrackEcommerceTransaction(tx, opts...)
			})
		},
	}
	cmd.Flags().StringP("file", "f", "", "Transaction YAML file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// delivery counts callback results across batches.
type delivery struct {
	sent   atomic.Int64
	failed atomic.Int64
}

// runTrack builds a tracker from the flags, runs track and closes the
// tracker, which flushes every buffered event.
func runTrack(cmd *cobra.Command, track func(*xtrack.Tracker, []xtrack.TrackOption) error) error {
	d := &delivery{}
	tracker, err := newTracker(cmd, d)
	if err != nil {
		return err
	}
	opts, err := trackOptions(cmd)
	if err != nil {
		_ = tracker.Close(context.Background())
		return err
	}

	trackErr := track(tracker, opts)

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	closeErr := tracker.Close(ctx)

	if trackErr != nil {
		return trackErr
	}
	if closeErr != nil {
		return closeErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sent %d, failed %d\n", d.sent.Load(), d.failed.Load())
	if d.failed.Load() > 0 {
		return errors.New("some events were not delivered")
	}
	return nil
}

func newTracker(cmd *cobra.Command, d *delivery) (*xtrack.Tracker, error) {
	flags := cmd.Flags()
	fc := &fileConfig{}
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		fc = loaded
	}

	cfg, err := fc.emitterConfig()
	if err != nil {
		return nil, err
	}
	if fc.Emitter == nil || flags.Changed("method") {
		cfg.Method, _ = flags.GetString("method")
	}
	if fc.Emitter == nil || flags.Changed("protocol") {
		cfg.Protocol, _ = flags.GetString("protocol")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("buffer-size") {
		cfg.BufferSize, _ = flags.GetInt("buffer-size")
	}
	if flags.Changed("threads") {
		cfg.ThreadCount, _ = flags.GetInt("threads")
	}
	cfg.OnSuccess = func(n int) { d.sent.Add(int64(n)) }
	cfg.OnFailure = func(n int, failed []*xtrack.Payload) {
		d.sent.Add(int64(n))
		d.failed.Add(int64(len(failed)))
	}

	endpoint := fc.Endpoint
	if flags.Changed("endpoint") || endpoint == "" {
		endpoint, _ = flags.GetString("endpoint")
	}
	if endpoint == "" {
		return nil, errors.New("an endpoint is required (--endpoint or config file)")
	}

	opts := []xtrack.Option{xtrack.WithLogger(log.WithComponent("emitter"))}
	if retries, _ := flags.GetInt("retries"); retries > 0 {
		opts = append(opts, xtrack.WithMiddleware(xtrack.RetryMiddleware(xtrack.RetryConfig{
			MaxAttempts: retries + 1,
			Backoff:     xtrack.ExponentialBackoff(100*time.Millisecond, 2*time.Second),
			Jitter:      50 * time.Millisecond,
		})))
	}

	async := fc.Async
	if flags.Changed("async") {
		async, _ = flags.GetBool("async")
	}
	var em *xtrack.Emitter
	if async {
		em, err = xtrack.NewAsyncEmitter(endpoint, cfg, opts...)
	} else {
		em, err = xtrack.NewEmitter(endpoint, cfg, opts...)
	}
	if err != nil {
		return nil, err
	}

	subject := xtrack.NewSubject()
	platform := fc.Tracker.Platform
	if flags.Changed("platform") || platform == "" {
		platform, _ = flags.GetString("platform")
	}
	if err := subject.SetPlatform(platform); err != nil {
		_ = em.Close(context.Background())
		return nil, err
	}
	userID := fc.Tracker.UserID
	if flags.Changed("user-id") {
		userID, _ = flags.GetString("user-id")
	}
	subject.SetUserID(userID)

	tcfg := xtrack.TrackerConfig{
		Namespace:    fc.Tracker.Namespace,
		AppID:        fc.Tracker.AppID,
		EncodeBase64: fc.Tracker.EncodeBase64,
		Subject:      subject,
		Emitters:     []xtrack.API{em},
	}
	if flags.Changed("namespace") || tcfg.Namespace == "" {
		tcfg.Namespace, _ = flags.GetString("namespace")
	}
	if flags.Changed("app-id") {
		tcfg.AppID, _ = flags.GetString("app-id")
	}
	if flags.Changed("base64") || tcfg.EncodeBase64 == nil {
		b, _ := flags.GetBool("base64")
		tcfg.EncodeBase64 = &b
	}
	lg := log.WithComponent("tracker")
	tcfg.Logger = &lg

	tracker, err := xtrack.NewTracker(tcfg)
	if err != nil {
		_ = em.Close(context.Background())
		return nil, err
	}
	return tracker, nil
}

func trackOptions(cmd *cobra.Command) ([]xtrack.TrackOption, error) {
	var opts []xtrack.TrackOption

	raw, _ := cmd.Flags().GetStringArray("context")
	if len(raw) > 0 {
		contexts := make([]xtrack.SelfDescribingJSON, 0, len(raw))
		for _, r := range raw {
			var sdj xtrack.SelfDescribingJSON
			if err := (xtrack.JSONCodec{}).Unmarshal([]byte(r), &sdj); err != nil {
				return nil, fmt.Errorf("invalid --context: %w", err)
			}
			if sdj.Schema == "" {
				return nil, fmt.Errorf("invalid --context: schema is required")
			}
			contexts = append(contexts, sdj)
		}
		opts = append(opts, xtrack.WithContext(contexts...))
	}

	if ttm, _ := cmd.Flags().GetInt64("true-timestamp"); ttm > 0 {
		opts = append(opts, xtrack.WithTimestamp(xtrack.TrueTimestamp(ttm)))
	}
	return opts, nil
}
