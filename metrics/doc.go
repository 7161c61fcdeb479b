// Package metrics exports xtrack emitter telemetry to Prometheus.
//
//	obs := metrics.NewObserver().MustRegister(prometheus.DefaultRegisterer)
//	em, err := xtrack.NewAsyncEmitter("collector.example.com", cfg, xtrack.WithObserver(obs))
//
// Every series is labelled with the emitter name (collector URI or
// transport name) and the request method.
package metrics
