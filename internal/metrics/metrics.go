// Package metrics provides Prometheus metrics for the fruitbasket server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fruitsalade/fruitbasket/internal/fserr"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fruitbasket_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fruitbasket_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// File operation metrics
	fileOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fruitbasket_file_operations_total",
			Help: "Total file operations by outcome",
		},
		[]string{"op", "status"},
	)

	pathRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fruitbasket_path_rejections_total",
			Help: "Total requests rejected by path validation",
		},
		[]string{"reason"},
	)

	viewBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fruitbasket_view_bytes_total",
			Help: "Total bytes served by the view endpoint",
		},
	)

	// Archive metrics
	zipBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fruitbasket_zip_build_duration_seconds",
			Help:    "Time to build a zip archive in memory",
			Buckets: prometheus.DefBuckets,
		},
	)

	zipBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fruitbasket_zip_bytes_total",
			Help: "Total bytes of zip archives produced",
		},
	)

	zipEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fruitbasket_zip_entries_total",
			Help: "Total files written into zip archives",
		},
	)

	// Thumbnail metrics
	thumbnailDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fruitbasket_thumbnail_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fruitbasket_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fruitbasket_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)

	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fruitbasket_rate_limit_hits_total",
			Help: "Total rate limit rejections (429s)",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// UnmatchedRoute labels requests no registered pattern matched.
const UnmatchedRoute = "unmatched"

// RecordHTTPRequest records an HTTP request metric. route should be a mux
// pattern, never a raw request path.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordFileOperation records the outcome of a file operation. Path
// validation failures are also counted as rejections.
func RecordFileOperation(op string, err error) {
	reason := fserr.Reason(err)
	fileOperationsTotal.WithLabelValues(op, reason).Inc()
	if reason == "traversal" || reason == "unknown_folder_type" {
		pathRejectionsTotal.WithLabelValues(reason).Inc()
	}
}

// RecordView records bytes served by the view endpoint.
func RecordView(bytes int64) {
	viewBytesTotal.Add(float64(bytes))
}

// RecordZipBuild records a completed archive build.
func RecordZipBuild(duration time.Duration, bytes int64, entries int) {
	zipBuildDuration.Observe(duration.Seconds())
	zipBytesTotal.Add(float64(bytes))
	zipEntriesTotal.Add(float64(entries))
}

// RecordThumbnail records a thumbnail generation.
func RecordThumbnail(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	thumbnailDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records an SSE event publication.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request metrics labelled by the ServeMux pattern that
// served the request. next must be the mux itself (or hand it the same
// *http.Request) so r.Pattern is filled in after ServeHTTP returns.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = UnmatchedRoute
		}
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
