// Package metrics provides Prometheus collectors for HTTP traffic and assistant activity.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lewisedginton/organizer/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "organizer"

// Turn outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeSignIn    = "sign_in"
	OutcomeFatal     = "fatal"
	OutcomeError     = "error"
	OutcomeAlert     = "alert"
	OutcomeNoAlert   = "no_alert"
	OutcomeDuplicate = "duplicate"
)

// Metrics owns a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	TotalHTTPRequestsCounter prometheus.Counter
	HTTPDurationHistogram    prometheus.Histogram

	httpMu               sync.Mutex
	HTTPResponseCounters map[int]prometheus.Counter

	Turns            *prometheus.CounterVec
	ToolInvocations  *prometheus.CounterVec
	ModelPassSeconds *prometheus.HistogramVec
	MemorySnippets   prometheus.Histogram
	ProactivePolls   *prometheus.CounterVec

	log logger.Logger
}

// NewMetrics creates the assistant collectors, plus the HTTP ones when httpCounters is set.
func NewMetrics(httpCounters bool, l logger.Logger) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		log: l,
	}
	if httpCounters {
		m.TotalHTTPRequestsCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		})
		m.HTTPDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.3, 0.5, 1.0, 3.0, 5.0, 10.0, 30.0},
		})
		m.HTTPResponseCounters = make(map[int]prometheus.Counter)
		m.reg.MustRegister(m.TotalHTTPRequestsCounter, m.HTTPDurationHistogram)
	}

	m.Turns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Conversation turns handled, by outcome",
	}, []string{"outcome"})
	m.ToolInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_invocations_total",
		Help:      "Tool invocations, by tool and outcome",
	}, []string{"tool", "outcome"})
	m.ModelPassSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "model_pass_seconds",
		Help:      "Language model call latency, by pass",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 30},
	}, []string{"pass"})
	m.MemorySnippets = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "memory_snippets",
		Help:      "Memory snippets injected per turn",
		Buckets:   []float64{0, 1, 2, 3, 4, 5, 10},
	})
	m.ProactivePolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proactive_polls_total",
		Help:      "Proactive status checks, by outcome",
	}, []string{"outcome"})
	m.reg.MustRegister(m.Turns, m.ToolInvocations, m.ModelPassSeconds, m.MemorySnippets, m.ProactivePolls)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Listen serves /metrics on port until ctx is cancelled.
func (m *Metrics) Listen(ctx context.Context, port int) error {
	m.log.Info("Starting metrics listener", logger.IntField("port", port))
	mux := http.NewServeMux()
	mux.Handle("/", http.NotFoundHandler())
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		m.log.Info("Stopping metrics listener")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// AddCustomMetric registers an additional collector.
func (m *Metrics) AddCustomMetric(c prometheus.Collector) {
	m.reg.MustRegister(c)
}

// RecordTurn counts a finished conversation turn.
func (m *Metrics) RecordTurn(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

// RecordTool counts one tool invocation.
func (m *Metrics) RecordTool(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolInvocations.WithLabelValues(tool, outcome).Inc()
}

// ObserveModelPass records the latency of a model call.
func (m *Metrics) ObserveModelPass(pass string, d time.Duration) {
	if m == nil {
		return
	}
	m.ModelPassSeconds.WithLabelValues(pass).Observe(d.Seconds())
}

// ObserveMemorySnippets records how many memories were injected into a prompt.
func (m *Metrics) ObserveMemorySnippets(n int) {
	if m == nil {
		return
	}
	m.MemorySnippets.Observe(float64(n))
}

// RecordProactivePoll counts one proactive check.
func (m *Metrics) RecordProactivePoll(outcome string) {
	if m == nil {
		return
	}
	m.ProactivePolls.WithLabelValues(outcome).Inc()
}

// IncrementHTTPResponseCounter increments the counter for the given HTTP status code.
func (m *Metrics) IncrementHTTPResponseCounter(code int) {
	if m == nil || m.HTTPResponseCounters == nil {
		return
	}
	m.httpMu.Lock()
	c, ok := m.HTTPResponseCounters[code]
	if !ok {
		c = newHTTPResponseCounter(code)
		m.reg.MustRegister(c)
		m.HTTPResponseCounters[code] = c
	}
	m.httpMu.Unlock()
	c.Inc()
}

func newHTTPResponseCounter(code int) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      fmt.Sprintf("http_responses_%d_total", code),
		Help:      fmt.Sprintf("Total %s HTTP responses returned", http.StatusText(code)),
	})
}

// HTTPMiddleware returns a chi-compatible middleware that tracks HTTP metrics.
// The wrapped writer keeps http.Hijacker so websocket upgrades pass through.
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil || m.TotalHTTPRequestsCounter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.TotalHTTPRequestsCounter.Inc()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			m.HTTPDurationHistogram.Observe(time.Since(start).Seconds())
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.IncrementHTTPResponseCounter(status)
		})
	}
}
