// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page outcomes recorded by the extraction engine.
const (
	PageExtracted     = "extracted"
	PageNavError      = "nav_error"
	PageHTTPError     = "http_error"
	PageSoftNotFound  = "soft_404"
	PageNoSections    = "no_sections"
	PageDuplicate     = "duplicate"
	PageRootFailed    = "root_failed"
	SummaryOK         = "ok"
	SummaryFallback   = "fallback"
	RendererHeadless  = "headless"
	RendererStatic    = "static"
	RendererPromotion = "promoted"
)

var (
	crawlRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_crawl_runs_total",
			Help: "Total number of crawl runs, labeled by terminal status.",
		},
		[]string{"status"},
	)

	crawlDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_crawl_duration_seconds",
			Help:    "Histogram of crawl run durations, labeled by terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_pages_total",
			Help: "Total number of pages visited, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	sectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_sections_total",
			Help: "Total number of sections extracted, labeled by extraction tier.",
		},
		[]string{"tier"},
	)

	summariesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_summaries_total",
			Help: "Total number of section summaries, labeled by result.",
		},
		[]string{"result"},
	)

	rendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_renders_total",
			Help: "Total number of page renders, labeled by renderer.",
		},
		[]string{"renderer"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawlRun records a finished crawl run.
func ObserveCrawlRun(status string, duration time.Duration) {
	crawlRunsTotal.WithLabelValues(status).Inc()
	crawlDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// ObservePage records the outcome of visiting one page of a site.
func ObservePage(site, outcome string) {
	pagesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveSections records sections produced by an extraction tier.
func ObserveSections(tier string, n int) {
	if n > 0 {
		sectionsTotal.WithLabelValues(tier).Add(float64(n))
	}
}

// ObserveSummary records a summarizer result (SummaryOK or SummaryFallback).
func ObserveSummary(result string) {
	summariesTotal.WithLabelValues(result).Inc()
}

// ObserveRender records which renderer served a page.
func ObserveRender(renderer string) {
	rendersTotal.WithLabelValues(renderer).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, routePattern, rec.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
