package monitor

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gpib-control/gpib-control-server/internal/gpib"
)

// Metrics holds the Prometheus collectors of the server. It observes
// instrument sessions and instruments HTTP handlers.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	ConnectedInstruments prometheus.Gauge
	ConnectAttempts      *prometheus.CounterVec
	Measurements         *prometheus.CounterVec
	Errors               *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ConnectedInstruments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpib_connected_instruments",
			Help: "Number of instruments with a live session",
		}),

		ConnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpib_connect_attempts_total",
				Help: "Connection attempts by model and result",
			},
			[]string{"model", "result"},
		),

		Measurements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpib_measurements_total",
				Help: "Readings taken by model and measurement type",
			},
			[]string{"model", "measurement_type"},
		),

		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpib_errors_total",
				Help: "Failed instrument operations",
			},
			[]string{"operation"},
		),

		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gpib_operation_duration_seconds",
				Help:    "Duration of instrument operations including simulated bus latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 2, 5},
			},
			[]string{"operation"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpib_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gpib_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.ConnectedInstruments,
		m.ConnectAttempts,
		m.Measurements,
		m.Errors,
		m.OperationDuration,
		m.HTTPRequests,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the exposition handler for the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe implements gpib.Observer
func (m *Metrics) Observe(e gpib.Event) {
	switch e.Type {
	case gpib.EventConnected:
		m.ConnectedInstruments.Inc()
		m.ConnectAttempts.WithLabelValues(e.Model, "success").Inc()
		m.OperationDuration.WithLabelValues("connect").Observe(e.Duration.Seconds())

	case gpib.EventConnectFailed:
		m.ConnectAttempts.WithLabelValues(e.Model, "failure").Inc()
		m.OperationDuration.WithLabelValues("connect").Observe(e.Duration.Seconds())
		if e.Err != nil {
			m.Errors.WithLabelValues("connect").Inc()
		}

	case gpib.EventDisconnected:
		m.ConnectedInstruments.Dec()
		m.OperationDuration.WithLabelValues("disconnect").Observe(e.Duration.Seconds())

	case gpib.EventMeasurement:
		measurementType := ""
		if e.Measurement != nil {
			measurementType = string(e.Measurement.MeasurementType)
		}
		m.Measurements.WithLabelValues(e.Model, measurementType).Inc()
		m.OperationDuration.WithLabelValues("measure").Observe(e.Duration.Seconds())

	case gpib.EventMeasurementFailed:
		m.Errors.WithLabelValues("measure").Inc()
		m.OperationDuration.WithLabelValues("measure").Observe(e.Duration.Seconds())
	}
}

// HTTPMiddleware records request counts and latency. Routes are labelled by
// their chi pattern so instrument ids do not explode label cardinality.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(recorder.status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder captures the response status code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
