package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics exposes monitor counters in Prometheus format
// A nil *Metrics is valid and records nothing
type Metrics struct {
	registry *prometheus.Registry

	linesRead     prometheus.Counter
	alertsMatched prometheus.Counter
	dispatches    *prometheus.CounterVec
	backoffs      *prometheus.CounterVec
	offsetBytes   prometheus.Gauge
	pollDuration  prometheus.Histogram

	server *http.Server
}

// NewMetrics creates monitor metrics on a dedicated registry
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "logmon"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		linesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_read_total",
			Help:      "Total number of complete lines read from the monitored file",
		}),
		alertsMatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_matched_total",
			Help:      "Total number of lines matching the alert marker",
		}),
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_dispatched_total",
			Help:      "Notification attempts by result",
		}, []string{"result"}),
		backoffs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backoffs_total",
			Help:      "Transitions into error backoff by failing stage",
		}, []string{"stage"}),
		offsetBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offset_bytes",
			Help:      "Persisted offset of the monitored file",
		}),
		pollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of read, evaluate and dispatch phase",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) LinesRead(n int) {
	if m == nil {
		return
	}
	m.linesRead.Add(float64(n))
}

func (m *Metrics) AlertMatched() {
	if m == nil {
		return
	}
	m.alertsMatched.Inc()
}

func (m *Metrics) Dispatched(success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.dispatches.WithLabelValues(result).Inc()
}

func (m *Metrics) Backoff(stage string) {
	if m == nil {
		return
	}
	m.backoffs.WithLabelValues(stage).Inc()
}

func (m *Metrics) SetOffset(offset int64) {
	if m == nil {
		return
	}
	m.offsetBytes.Set(float64(offset))
}

func (m *Metrics) ObservePoll(d time.Duration) {
	if m == nil {
		return
	}
	m.pollDuration.Observe(d.Seconds())
}

// Serve starts the metrics HTTP endpoint in the background
func (m *Metrics) Serve(addr, path string) {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Str("path", path).Msg("Metrics server listening")
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Shutdown stops the metrics HTTP endpoint
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
