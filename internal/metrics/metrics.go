// Package metrics exposes load, render and GPU resource counters in the
// prometheus text format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"photocrispy/internal/debug"
)

const namespace = "photocrispy"

// Operation names understood by TimingObserver.
const (
	OpLoad              = "async_load"
	OpFrameRender       = "frame_render"
	OpHistogramDispatch = "histogram_dispatch"
)

type Metrics struct {
	registry *prometheus.Registry

	loads             *prometheus.CounterVec
	loadDuration      prometheus.Histogram
	frameRender       prometheus.Histogram
	histogramDispatch prometheus.Histogram
	gpuResources      *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Image loads by outcome.",
		}, []string{"result"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Time spent decoding an image in the background.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		frameRender: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_render_seconds",
			Help:      "Time spent applying the tone program to the render target.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		histogramDispatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "histogram_dispatch_seconds",
			Help:      "Time spent in the GPU histogram pass including readback.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		gpuResources: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gpu_resources",
			Help:      "Live GPU objects by kind.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.loads,
		m.loadDuration,
		m.frameRender,
		m.histogramDispatch,
		m.gpuResources,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) LoadFinished(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.loads.WithLabelValues(result).Inc()
}

func (m *Metrics) LoadIgnored() {
	m.loads.WithLabelValues("ignored").Inc()
}

func (m *Metrics) SetGPUResources(kind string, n int) {
	m.gpuResources.WithLabelValues(kind).Set(float64(n))
}

// TimingObserver routes timing tracker spans into the matching histogram.
func (m *Metrics) TimingObserver() func(operation string, d time.Duration) {
	return func(operation string, d time.Duration) {
		switch operation {
		case OpLoad:
			m.loadDuration.Observe(d.Seconds())
		case OpFrameRender:
			m.frameRender.Observe(d.Seconds())
		case OpHistogramDispatch:
			m.histogramDispatch.Observe(d.Seconds())
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server serves /metrics until Shutdown.
type Server struct {
	srv    *http.Server
	logger debug.Logger
}

func (m *Metrics) Serve(addr string, logger debug.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	s := &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}

	go func() {
		logger.Info("Metrics", "serving metrics", map[string]interface{}{"addr": addr})
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics", err, map[string]interface{}{"addr": addr})
		}
	}()
	return s
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warning("Metrics", "metrics server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}
