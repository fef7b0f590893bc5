package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	compileDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Compiler metrics
	CompilesTotal        *prometheus.CounterVec
	CompileDuration      prometheus.Histogram
	CompiledBytes        prometheus.Histogram
	CompileWidgetsEmitted prometheus.Histogram

	// Deploy metrics
	DeploysTotal        *prometheus.CounterVec
	DeployPreviewsTotal *prometheus.CounterVec
	MergeConflictsTotal *prometheus.CounterVec

	// Schema metrics
	SchemaReloadTotal *prometheus.CounterVec
	SchemasLoaded     prometheus.Gauge

	// Recipe metrics
	RecipeImportsTotal *prometheus.CounterVec
	RecipeClonesTotal  prometheus.Counter

	// Self-check metrics
	SelfCheckRunsTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelsmith_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "panelsmith_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "panelsmith_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "panelsmith_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Compiler
		CompilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelsmith_compiles_total",
			Help: "Total number of compile runs.",
		}, []string{"status"}),
		CompileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "panelsmith_compile_duration_seconds",
			Help:    "Compile run duration in seconds.",
			Buckets: compileDurationBuckets,
		}),
		CompiledBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "panelsmith_compiled_bytes",
			Help:    "Size of compiled YAML documents in bytes.",
			Buckets: bodySizeBuckets,
		}),
		CompileWidgetsEmitted: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "panelsmith_compile_widgets_emitted",
			Help:    "Number of widgets emitted per compile run.",
			Buckets: []float64{1, 5, 10, 25, 50, 100},
		}),

		// Deploy
		DeploysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelsmith_deploys_total",
			Help: "Total number of deploy exports.",
		}, []string{"mode", "status"}),
		DeployPreviewsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelsmith_deploy_previews_total",
			Help: "Total number of deploy previews.",
		}, []string{"mode"}),
		MergeConflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelsmith_merge_conflicts_total",
			Help: "Total number of safe-merge failures by error code.",
		}, []string{"code"}),

		// Schemas
		SchemaReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelsmith_schema_reload_total",
			Help: "Total widget schema reloads.",
		}, []string{"status"}),
		SchemasLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "panelsmith_schemas_loaded",
			Help: "Number of loaded widget schemas.",
		}),

		// Recipes
		RecipeImportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelsmith_recipe_imports_total",
			Help: "Total recipe imports.",
		}, []string{"status"}),
		RecipeClonesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "panelsmith_recipe_clones_total",
			Help: "Total recipe clones.",
		}),

		// Self-checks
		SelfCheckRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelsmith_selfcheck_runs_total",
			Help: "Total self-check runs.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Compiler
		m.CompilesTotal,
		m.CompileDuration,
		m.CompiledBytes,
		m.CompileWidgetsEmitted,
		// Deploy
		m.DeploysTotal,
		m.DeployPreviewsTotal,
		m.MergeConflictsTotal,
		// Schemas
		m.SchemaReloadTotal,
		m.SchemasLoaded,
		// Recipes
		m.RecipeImportsTotal,
		m.RecipeClonesTotal,
		// Self-checks
		m.SelfCheckRunsTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordCompile records a compile run.
func (m *Metrics) RecordCompile(status string, duration time.Duration, documentBytes, widgets int) {
	m.CompilesTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		m.CompileDuration.Observe(duration.Seconds())
		m.CompiledBytes.Observe(float64(documentBytes))
		m.CompileWidgetsEmitted.Observe(float64(widgets))
	}
}

// RecordDeploy records a deploy export.
func (m *Metrics) RecordDeploy(mode, status string) {
	m.DeploysTotal.WithLabelValues(mode, status).Inc()
}

// RecordDeployPreview records a deploy preview.
func (m *Metrics) RecordDeployPreview(mode string) {
	m.DeployPreviewsTotal.WithLabelValues(mode).Inc()
}

// RecordMergeConflict records a safe-merge failure by error code.
func (m *Metrics) RecordMergeConflict(code string) {
	m.MergeConflictsTotal.WithLabelValues(code).Inc()
}

// RecordSchemaReload records a widget schema reload.
func (m *Metrics) RecordSchemaReload(status string) {
	m.SchemaReloadTotal.WithLabelValues(status).Inc()
}

// SetSchemasLoaded sets the number of loaded widget schemas.
func (m *Metrics) SetSchemasLoaded(count float64) {
	m.SchemasLoaded.Set(count)
}

// RecordRecipeImport records a recipe import.
func (m *Metrics) RecordRecipeImport(status string) {
	m.RecipeImportsTotal.WithLabelValues(status).Inc()
}

// RecordRecipeClone records a recipe clone.
func (m *Metrics) RecordRecipeClone() {
	m.RecipeClonesTotal.Inc()
}

// RecordSelfCheck records a self-check run.
func (m *Metrics) RecordSelfCheck(status string) {
	m.SelfCheckRunsTotal.WithLabelValues(status).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
