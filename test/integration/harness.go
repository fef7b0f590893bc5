// Package integration exercises the assembled panelsmith server over real
// HTTP: router, middleware, auth, stores, compiler and deploy writer wired
// together the same way cmd/paneld wires them. Unit tests live next to the
// packages they cover; everything here is end to end.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/panelsmith/panelsmith/internal/assets"
	"github.com/panelsmith/panelsmith/internal/compiler"
	"github.com/panelsmith/panelsmith/internal/config"
	"github.com/panelsmith/panelsmith/internal/deploy"
	"github.com/panelsmith/panelsmith/internal/recipe"
	"github.com/panelsmith/panelsmith/internal/schema"
	"github.com/panelsmith/panelsmith/internal/selfcheck"
	"github.com/panelsmith/panelsmith/internal/store"
	"github.com/panelsmith/panelsmith/internal/transport"
	"github.com/panelsmith/panelsmith/internal/validate"
)

const (
	// harnessTokenSecret signs bearer tokens for harnesses with auth enabled.
	harnessTokenSecret = "integration-test-secret-0123456789abcdef"

	// allowedOrigin is whitelisted for CORS on every harness.
	allowedOrigin = "http://panels.local"
)

// TestHarness runs a complete panelsmith server against temporary
// directories and drives it through its public HTTP surface.
type TestHarness struct {
	t      *testing.T
	cfg    *config.Config
	server *httptest.Server
	client *http.Client

	// Devices is the bbolt-backed store behind the server, exposed so tests
	// can close it and reopen the same data directory to simulate a restart.
	Devices *store.BoltDeviceStore
	Recipes *recipe.Store
	Schemas *schema.Registry

	closeOnce sync.Once
}

type harnessOptions struct {
	disableAuth    bool
	dataDir        string
	outputDir      string
	handlerTimeout time.Duration
}

// HarnessOption customizes harness construction.
type HarnessOption func(*harnessOptions)

// WithoutAuth leaves the token secret unset so the API runs open.
func WithoutAuth() HarnessOption {
	return func(o *harnessOptions) { o.disableAuth = true }
}

// WithDataDir stores device state under dir instead of a fresh temp
// directory. Two harnesses given the same dir (sequentially, not at once;
// bbolt holds an exclusive lock) see the same devices.
func WithDataDir(dir string) HarnessOption {
	return func(o *harnessOptions) { o.dataDir = dir }
}

// WithOutputDir writes deployed YAML under dir instead of a temp directory.
func WithOutputDir(dir string) HarnessOption {
	return func(o *harnessOptions) { o.outputDir = dir }
}

// WithHandlerTimeout overrides the per-request deadline.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(o *harnessOptions) { o.handlerTimeout = d }
}

// NewTestHarness builds and starts a server. Auth is enabled by default;
// use WithoutAuth to exercise the open mode. The harness closes itself when
// the test ends, and Close is safe to call early for restart scenarios.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	options := &harnessOptions{handlerTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(options)
	}

	// Step 1: Config rooted in temporary directories.
	cfg := config.Defaults()
	cfg.Storage.DataDir = options.dataDir
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = t.TempDir()
	}
	cfg.Recipes.Dir = t.TempDir()
	cfg.Assets.Dir = t.TempDir()
	cfg.Deploy.OutputDir = options.outputDir
	if cfg.Deploy.OutputDir == "" {
		cfg.Deploy.OutputDir = filepath.Join(t.TempDir(), "esphome")
	}
	cfg.Server.HandlerTimeout = options.handlerTimeout
	cfg.Server.CORS.AllowedOrigins = []string{allowedOrigin}
	cfg.Schemas.HotReload = false
	cfg.Observability.Metrics.Enabled = false
	if !options.disableAuth {
		cfg.Auth.TokenSecret = harnessTokenSecret
	}

	// Step 2: Widget schema registry, builtin schemas only.
	registry, err := schema.NewRegistry(schema.NewLoader("", nil), nil)
	if err != nil {
		t.Fatalf("building schema registry: %v", err)
	}

	// Step 3: Device store on bbolt so persistence is exercised for real.
	devices, err := store.Open(cfg.Storage.DatabasePath())
	if err != nil {
		t.Fatalf("opening device store: %v", err)
	}

	// Step 4: Remaining stores and services, wired like cmd/paneld.
	recipes := recipe.NewStore(cfg.Recipes.Dir, nil)
	comp := compiler.New(registry, nil, compiler.WithVersion("integration"))
	deps := transport.Dependencies{
		Config:    cfg,
		Devices:   devices,
		Recipes:   recipes,
		Schemas:   registry,
		Assets:    assets.NewStore(cfg.Assets.Dir, cfg.Assets.MaxUploadSize, nil),
		Deploy:    deploy.NewWriter(cfg.Deploy.OutputDir, nil),
		Compiler:  comp,
		Validator: validate.New(validate.Options{}, nil),
		SelfCheck: selfcheck.NewRunner(comp, recipes, "integration", nil),
	}
	if cfg.Auth.Enabled() {
		deps.Authenticate = transport.BearerAuth(cfg.Auth)
	}

	// Step 5: Real HTTP server over the full router.
	h := &TestHarness{
		t:      t,
		cfg:    cfg,
		server: httptest.NewServer(transport.NewRouter(deps)),
		client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Devices: devices,
		Recipes: recipes,
		Schemas: registry,
	}
	t.Cleanup(h.Close)
	return h
}

// Close shuts the server down and releases the bbolt file lock. Idempotent.
func (h *TestHarness) Close() {
	h.closeOnce.Do(func() {
		h.server.Close()
		if err := h.Devices.Close(); err != nil {
			h.t.Errorf("closing device store: %v", err)
		}
	})
}

// BaseURL returns the server's root URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// Token mints a valid bearer token for subject using the server's secret.
func (h *TestHarness) Token(subject string) string {
	h.t.Helper()
	token, err := transport.IssueToken(h.cfg.Auth, subject, time.Now())
	if err != nil {
		h.t.Fatalf("issuing token: %v", err)
	}
	return token
}

// ExpiredToken mints a token whose expiry is already in the past.
func (h *TestHarness) ExpiredToken(subject string) string {
	h.t.Helper()
	now := time.Now()
	return signHS256(h.t, h.cfg.Auth.TokenSecret,
		bearerClaims(h.cfg.Auth, subject, now.Add(-2*time.Hour), now.Add(-1*time.Hour)))
}

// ForeignToken mints a structurally valid token signed with the wrong secret.
func (h *TestHarness) ForeignToken(subject string) string {
	h.t.Helper()
	now := time.Now()
	return signHS256(h.t, "some-other-secret-entirely-9876543210",
		bearerClaims(h.cfg.Auth, subject, now, now.Add(time.Hour)))
}

// ==========================================================================
// HTTP client helpers
// ==========================================================================

// GET issues a GET request. An empty token sends no Authorization header.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token, nil)
}

// GETWithHeaders issues a GET request with extra headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token, headers)
}

// POST issues a POST request with a JSON body. A nil body sends no payload.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, h.encode(body), token, nil)
}

// PUT issues a PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPut, path, h.encode(body), token, nil)
}

// DELETE issues a DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodDelete, path, nil, token, nil)
}

// OPTIONS issues a preflight request with the given Origin header.
func (h *TestHarness) OPTIONS(path, origin string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodOptions, path, nil, "", map[string]string{
		"Origin":                        origin,
		"Access-Control-Request-Method": http.MethodGet,
	})
}

func (h *TestHarness) encode(body any) io.Reader {
	h.t.Helper()
	if body == nil {
		return nil
	}
	if s, ok := body.(string); ok {
		return strings.NewReader(s)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		h.t.Fatalf("marshaling request body: %v", err)
	}
	return bytes.NewReader(raw)
}

func (h *TestHarness) doRequest(method, path string, body io.Reader, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	req, err := http.NewRequest(method, h.server.URL+path, body)
	if err != nil {
		h.t.Fatalf("building %s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// ParseJSON decodes the response body into target and closes the body.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		h.t.Fatalf("decoding response body: %v", err)
	}
}

// ReadBody drains the response body to a string and closes it.
func (h *TestHarness) ReadBody(resp *http.Response) string {
	h.t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("reading response body: %v", err)
	}
	return string(raw)
}

// AssertStatus fails the test if the response status differs from want.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body := h.ReadBody(resp)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

// ErrorCode decodes the error envelope and returns its code, closing the
// body. Fails the test if the body is not an error envelope.
func (h *TestHarness) ErrorCode(resp *http.Response) string {
	h.t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	h.ParseJSON(resp, &envelope)
	if envelope.Error.Code == "" {
		h.t.Fatalf("response carries no error code")
	}
	return envelope.Error.Code
}
