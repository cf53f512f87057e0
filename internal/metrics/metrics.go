// Package metrics exposes pipeline measurements to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/thermoextract/internal/core"
	"github.com/JonMunkholm/thermoextract/internal/logging"
)

const namespace = "thermoextract"

// Metrics implements core.Recorder and records HTTP traffic.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration      *prometheus.HistogramVec
	stageTotal         *prometheus.CounterVec
	transitionRejected *prometheus.CounterVec
	validationIssues   *prometheus.CounterVec
	fairScore          prometheus.Histogram
	fairGrades         *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stage executions.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage", "outcome"}),
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stages_total",
			Help:      "Pipeline stage executions by outcome.",
		}, []string{"stage", "outcome"}),
		transitionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_rejected_total",
			Help:      "Stage requests refused before running.",
		}, []string{"stage", "reason"}),
		validationIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_issues_total",
			Help:      "CSV validation issues by table mapping and severity.",
		}, []string{"mapping", "severity"}),
		fairScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fair_score",
			Help:      "FAIR total scores of loaded datasets.",
			Buckets:   []float64{50, 60, 70, 80, 90, 100},
		}),
		fairGrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fair_grades_total",
			Help:      "Loaded datasets by FAIR grade.",
		}, []string{"grade"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stageDuration,
		m.stageTotal,
		m.transitionRejected,
		m.validationIssues,
		m.fairScore,
		m.fairGrades,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) StageFinished(stage core.Stage, outcome string, d time.Duration) {
	m.stageDuration.WithLabelValues(string(stage), outcome).Observe(d.Seconds())
	m.stageTotal.WithLabelValues(string(stage), outcome).Inc()
}

func (m *Metrics) TransitionRejected(stage core.Stage, reason string) {
	m.transitionRejected.WithLabelValues(string(stage), reason).Inc()
}

func (m *Metrics) ValidationIssues(mapping string, errors, warnings int) {
	if errors > 0 {
		m.validationIssues.WithLabelValues(mapping, "error").Add(float64(errors))
	}
	if warnings > 0 {
		m.validationIssues.WithLabelValues(mapping, "warning").Add(float64(warnings))
	}
}

func (m *Metrics) FairScored(total int, grade string) {
	m.fairScore.Observe(float64(total))
	m.fairGrades.WithLabelValues(grade).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request count and latency labelled by chi route
// pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// SessionCounter reports how many sessions are in each state.
type SessionCounter interface {
	CountByState(ctx context.Context) (map[core.State]int, error)
}

// RegisterSessionGauge exports session counts per state, read from src at
// scrape time.
func (m *Metrics) RegisterSessionGauge(src SessionCounter, timeout time.Duration) {
	m.registry.MustRegister(&sessionCollector{
		src:     src,
		timeout: timeout,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions"),
			"Extraction sessions by state.",
			[]string{"state"}, nil,
		),
	})
}

type sessionCollector struct {
	src     SessionCounter
	timeout time.Duration
	desc    *prometheus.Desc
}

func (c *sessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *sessionCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	counts, err := c.src.CountByState(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("session gauge: count failed", "error", err)
		return
	}
	for _, state := range core.AllStates {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[state]), string(state))
	}
}

var _ core.Recorder = (*Metrics)(nil)
