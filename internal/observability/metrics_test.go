package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	return m, reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}

	expected := []string{
		"panelsmith_http_requests_total",
		"panelsmith_http_request_duration_seconds",
		"panelsmith_http_request_size_bytes",
		"panelsmith_http_response_size_bytes",
		"panelsmith_compiles_total",
		"panelsmith_compile_duration_seconds",
		"panelsmith_compiled_bytes",
		"panelsmith_compile_widgets_emitted",
		"panelsmith_deploys_total",
		"panelsmith_deploy_previews_total",
		"panelsmith_merge_conflicts_total",
		"panelsmith_schema_reload_total",
		"panelsmith_schemas_loaded",
		"panelsmith_recipe_imports_total",
		"panelsmith_recipe_clones_total",
		"panelsmith_selfcheck_runs_total",
	}

	// Record a value for each metric so they appear in Gather.
	m.RecordHTTPRequest("GET", "/test", 200, time.Millisecond, 0, 100)
	m.RecordCompile("ok", time.Millisecond, 2048, 4)
	m.RecordDeploy("merged", "ok")
	m.RecordDeployPreview("new")
	m.RecordMergeConflict("MARKER_COUNT_MISMATCH")
	m.RecordSchemaReload("success")
	m.SetSchemasLoaded(13)
	m.RecordRecipeImport("success")
	m.RecordRecipeClone()
	m.RecordSelfCheck("pass")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHTTPRequest("GET", "/api/v1/devices/{deviceID}", 200, 50*time.Millisecond, 0, 1024)
	m.RecordHTTPRequest("GET", "/api/v1/devices/{deviceID}", 200, 100*time.Millisecond, 0, 2048)
	m.RecordHTTPRequest("POST", "/api/v1/devices/{deviceID}/compile", 500, 200*time.Millisecond, 512, 256)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/devices/{deviceID}", "200"))
	if val != 2 {
		t.Errorf("GET requests = %v, want 2", val)
	}
	val = testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/devices/{deviceID}/compile", "500"))
	if val != 1 {
		t.Errorf("POST requests = %v, want 1", val)
	}
}

func TestRecordCompile(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordCompile("ok", 5*time.Millisecond, 4096, 7)
	m.RecordCompile("error", 2*time.Millisecond, 0, 0)

	ok := testutil.ToFloat64(m.CompilesTotal.WithLabelValues("ok"))
	if ok != 1 {
		t.Errorf("ok count = %v, want 1", ok)
	}
	failed := testutil.ToFloat64(m.CompilesTotal.WithLabelValues("error"))
	if failed != 1 {
		t.Errorf("error count = %v, want 1", failed)
	}

	// Only successful compiles contribute document observations.
	count := testutil.CollectAndCount(m.CompiledBytes)
	if count == 0 {
		t.Error("expected compiled bytes histogram to have observations")
	}
}

func TestRecordDeployLifecycle(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordDeployPreview("merged")
	m.RecordDeploy("merged", "ok")
	m.RecordDeploy("new", "conflict")
	m.RecordMergeConflict("EXTERNALLY_MODIFIED")

	previews := testutil.ToFloat64(m.DeployPreviewsTotal.WithLabelValues("merged"))
	if previews != 1 {
		t.Errorf("previews = %v, want 1", previews)
	}
	deploys := testutil.ToFloat64(m.DeploysTotal.WithLabelValues("merged", "ok"))
	if deploys != 1 {
		t.Errorf("deploys = %v, want 1", deploys)
	}
	conflicts := testutil.ToFloat64(m.MergeConflictsTotal.WithLabelValues("EXTERNALLY_MODIFIED"))
	if conflicts != 1 {
		t.Errorf("merge conflicts = %v, want 1", conflicts)
	}
}

func TestRecordSchemaReload(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordSchemaReload("success")
	m.RecordSchemaReload("failure")

	success := testutil.ToFloat64(m.SchemaReloadTotal.WithLabelValues("success"))
	if success != 1 {
		t.Errorf("reload success = %v, want 1", success)
	}
	failure := testutil.ToFloat64(m.SchemaReloadTotal.WithLabelValues("failure"))
	if failure != 1 {
		t.Errorf("reload failure = %v, want 1", failure)
	}
}

func TestSetSchemasLoaded(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetSchemasLoaded(13)
	val := testutil.ToFloat64(m.SchemasLoaded)
	if val != 13 {
		t.Errorf("schemas loaded = %v, want 13", val)
	}

	m.SetSchemasLoaded(14)
	val = testutil.ToFloat64(m.SchemasLoaded)
	if val != 14 {
		t.Errorf("schemas loaded = %v, want 14", val)
	}
}

func TestRecordRecipeMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordRecipeImport("success")
	m.RecordRecipeImport("failure")
	m.RecordRecipeClone()
	m.RecordRecipeClone()

	success := testutil.ToFloat64(m.RecipeImportsTotal.WithLabelValues("success"))
	if success != 1 {
		t.Errorf("import success = %v, want 1", success)
	}
	clones := testutil.ToFloat64(m.RecipeClonesTotal)
	if clones != 2 {
		t.Errorf("clones = %v, want 2", clones)
	}
}

func TestRecordSelfCheck(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordSelfCheck("pass")
	m.RecordSelfCheck("fail")

	pass := testutil.ToFloat64(m.SelfCheckRunsTotal.WithLabelValues("pass"))
	if pass != 1 {
		t.Errorf("pass count = %v, want 1", pass)
	}
	fail := testutil.ToFloat64(m.SelfCheckRunsTotal.WithLabelValues("fail"))
	if fail != 1 {
		t.Errorf("fail count = %v, want 1", fail)
	}
}

func TestMetricsMiddleware_recordsRequestMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Build a chi router so route patterns are captured.
	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/api/v1/devices/{deviceID}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/living-room", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// Verify metrics were recorded with the route pattern, not the actual path.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/devices/{deviceID}", "200"))
	if val != 1 {
		t.Errorf("requests total = %v, want 1", val)
	}
}

func TestMetricsMiddleware_capturesResponseSize(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("healthy"))
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	count := testutil.CollectAndCount(m.HTTPResponseSizeBytes)
	if count == 0 {
		t.Error("expected response size histogram to have observations")
	}
}

func TestMetricsMiddleware_capturesStatusCode(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Post("/api/v1/devices/{deviceID}/deploy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/kitchen/deploy", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/devices/{deviceID}/deploy", "409"))
	if val != 1 {
		t.Errorf("409 requests = %v, want 1", val)
	}
}

func TestMetricsMiddleware_fallsBackToPath(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Use middleware directly without chi router.
	handler := m.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/raw/path", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Without chi, should fall back to raw path.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/raw/path", "200"))
	if val != 1 {
		t.Errorf("raw path requests = %v, want 1", val)
	}
}

func TestHandler_servesMetrics(t *testing.T) {
	handler := Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	// Prometheus handler should return at least go runtime metrics.
	if !strings.Contains(body, "go_") {
		t.Error("metrics response should contain go runtime metrics")
	}
}

func TestHistogramBuckets(t *testing.T) {
	if len(httpDurationBuckets) != 11 {
		t.Errorf("httpDurationBuckets length = %d, want 11", len(httpDurationBuckets))
	}
	if len(compileDurationBuckets) != 10 {
		t.Errorf("compileDurationBuckets length = %d, want 10", len(compileDurationBuckets))
	}
	if len(bodySizeBuckets) != 5 {
		t.Errorf("bodySizeBuckets length = %d, want 5", len(bodySizeBuckets))
	}

	// Verify buckets are sorted ascending.
	for i := 1; i < len(httpDurationBuckets); i++ {
		if httpDurationBuckets[i] <= httpDurationBuckets[i-1] {
			t.Errorf("httpDurationBuckets not sorted at index %d", i)
		}
	}
}
