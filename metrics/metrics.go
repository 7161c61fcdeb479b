package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trickstertwo/xtrack"
)

// Observer exports emitter lifecycle events as Prometheus metrics. Attach it
// with xtrack.WithObserver.
type Observer struct {
	EventsInput   *prometheus.CounterVec
	Flushes       *prometheus.CounterVec
	Batches       *prometheus.CounterVec
	EventsSent    *prometheus.CounterVec
	EventsFailed  *prometheus.CounterVec
	SendErrors    *prometheus.CounterVec
	WorkerPanics  *prometheus.CounterVec
	SendDuration  *prometheus.HistogramVec
	BatchSize     *prometheus.HistogramVec
	InFlightSends *prometheus.GaugeVec
}

var _ xtrack.Observer = (*Observer)(nil)

// NewObserver creates the collectors without registering them.
func NewObserver() *Observer {
	return &Observer{
		EventsInput: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtrack_events_input_total",
				Help: "Total number of events added to an emitter buffer",
			},
			[]string{"emitter", "method"},
		),
		Flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtrack_flushes_total",
				Help: "Total number of explicit flushes",
			},
			[]string{"emitter", "method"},
		),
		Batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtrack_batches_total",
				Help: "Total number of batches handed to the transport",
			},
			[]string{"emitter", "method"},
		),
		EventsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtrack_events_sent_total",
				Help: "Total number of events delivered to the collector",
			},
			[]string{"emitter", "method"},
		),
		EventsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtrack_events_failed_total",
				Help: "Total number of events the collector did not accept",
			},
			[]string{"emitter", "method"},
		),
		SendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtrack_send_errors_total",
				Help: "Total number of batches with at least one failed event",
			},
			[]string{"emitter", "method"},
		),
		WorkerPanics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtrack_worker_panics_total",
				Help: "Total number of recovered worker panics",
			},
			[]string{"emitter"},
		),
		SendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xtrack_send_duration_seconds",
				Help:    "Time taken to send one batch in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"emitter", "method"},
		),
		BatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xtrack_batch_size",
				Help:    "Number of events per sent batch",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"emitter", "method"},
		),
		InFlightSends: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "xtrack_sends_in_progress",
				Help: "Number of batches currently being sent",
			},
			[]string{"emitter", "method"},
		),
	}
}

// Collectors returns every collector of o.
func (o *Observer) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		o.EventsInput,
		o.Flushes,
		o.Batches,
		o.EventsSent,
		o.EventsFailed,
		o.SendErrors,
		o.WorkerPanics,
		o.SendDuration,
		o.BatchSize,
		o.InFlightSends,
	}
}

// Register registers every collector with reg.
func (o *Observer) Register(reg prometheus.Registerer) error {
	for _, c := range o.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister is Register that panics on error.
func (o *Observer) MustRegister(reg prometheus.Registerer) *Observer {
	reg.MustRegister(o.Collectors()...)
	return o
}

// OnEvent implements xtrack.Observer.
func (o *Observer) OnEvent(e xtrack.Event) {
	switch e.Type {
	case xtrack.EventInput:
		o.EventsInput.WithLabelValues(e.Emitter, e.Method).Inc()
	case xtrack.EventFlush:
		o.Flushes.WithLabelValues(e.Emitter, e.Method).Inc()
	case xtrack.EventSendStart:
		o.Batches.WithLabelValues(e.Emitter, e.Method).Inc()
		o.InFlightSends.WithLabelValues(e.Emitter, e.Method).Inc()
	case xtrack.EventSendDone:
		o.InFlightSends.WithLabelValues(e.Emitter, e.Method).Dec()
		o.EventsSent.WithLabelValues(e.Emitter, e.Method).Add(float64(e.Sent))
		o.EventsFailed.WithLabelValues(e.Emitter, e.Method).Add(float64(e.Failed))
		o.SendDuration.WithLabelValues(e.Emitter, e.Method).Observe(e.Duration.Seconds())
		o.BatchSize.WithLabelValues(e.Emitter, e.Method).Observe(float64(e.BatchSize))
	case xtrack.EventError:
		o.SendErrors.WithLabelValues(e.Emitter, e.Method).Inc()
	case xtrack.EventWorkerPanic:
		o.WorkerPanics.WithLabelValues(e.Emitter).Inc()
	}
}

// Handler returns an HTTP handler exposing the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
