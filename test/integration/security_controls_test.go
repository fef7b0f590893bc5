package integration

import (
	"encoding/base64"
	"net/http"
	"strings"
	"testing"
)

// ==========================================================================
// Authentication Tests
// ==========================================================================

func TestSecurity_NoAuthHeader_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	endpoints := []string{
		"/api/v1/context",
		"/api/v1/diagnostics",
		"/api/v1/devices",
		"/api/v1/recipes",
		"/api/v1/schemas/widgets",
		"/api/v1/assets",
	}

	for _, ep := range endpoints {
		t.Run(ep, func(t *testing.T) {
			resp := h.GET(ep, "")
			h.AssertStatus(t, resp, http.StatusUnauthorized)
			assertEqual(t, h.ErrorCode(resp), "UNAUTHORIZED", "error code")
		})
	}
}

func TestSecurity_MalformedAuthHeader_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	headers := map[string]string{
		"basic scheme":     "Basic b3A6c2VjcmV0",
		"no scheme":        h.Token("operator"),
		"empty bearer":     "Bearer ",
		"garbage token":    "Bearer " + garbageToken(),
		"missing segments": "Bearer onlyonesegment",
	}

	for name, value := range headers {
		t.Run(name, func(t *testing.T) {
			resp := h.GETWithHeaders("/api/v1/devices", "", map[string]string{
				"Authorization": value,
			})
			h.AssertStatus(t, resp, http.StatusUnauthorized)
			resp.Body.Close()
		})
	}
}

func TestSecurity_ExpiredToken_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/api/v1/devices", h.ExpiredToken("operator"))
	h.AssertStatus(t, resp, http.StatusUnauthorized)

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	h.ParseJSON(resp, &envelope)
	assertEqual(t, envelope.Error.Message, "Token expired", "error message")
}

func TestSecurity_WrongSecret_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/api/v1/devices", h.ForeignToken("operator"))
	h.AssertStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestSecurity_NoneAlgorithm_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	// A verifier that trusts the header's alg would accept this token.
	resp := h.GET("/api/v1/devices", unsignedToken(t, h.cfg.Auth, "operator"))
	h.AssertStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestSecurity_TruncatedSignature_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/api/v1/devices", truncateSignature(h.Token("operator")))
	h.AssertStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestSecurity_ValidToken_Returns200(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/api/v1/devices", h.Token("operator"))
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestSecurity_OpenMode_NeedsNoToken(t *testing.T) {
	h := NewTestHarness(t, WithoutAuth())

	resp := h.GET("/api/v1/devices", "")
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	t.Run("context reports auth disabled", func(t *testing.T) {
		resp := h.GET("/api/v1/context", "")
		h.AssertStatus(t, resp, http.StatusOK)

		var body map[string]any
		h.ParseJSON(resp, &body)
		assertEqual(t, body["auth_enabled"], false, "auth_enabled")
	})
}

func TestSecurity_HealthEndpointsBypassAuth(t *testing.T) {
	h := NewTestHarness(t)

	for _, ep := range []string{"/healthz", "/readyz"} {
		t.Run(ep, func(t *testing.T) {
			resp := h.GET(ep, "")
			h.AssertStatus(t, resp, http.StatusOK)
			resp.Body.Close()
		})
	}
}

// ==========================================================================
// Response Hygiene Tests
// ==========================================================================

func TestSecurity_ErrorBodyLeaksNoInternals(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/api/v1/devices", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	body := h.ReadBody(resp)

	for _, marker := range []string{"goroutine", ".go:", "runtime.", "panic", "internal/", "127.0.0.1"} {
		if strings.Contains(body, marker) {
			t.Errorf("error body leaks %q: %s", marker, body)
		}
	}
}

func TestSecurity_HeadersOnAuthenticatedResponse(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/api/v1/devices", h.Token("operator"))
	h.AssertStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()

	assertSecurityHeaders(t, resp)
}

func TestSecurity_HeadersOnErrorResponse(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/api/v1/devices", "")
	defer resp.Body.Close()

	assertSecurityHeaders(t, resp)
}

func TestSecurity_HeadersOnPublicEndpoint(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/healthz", "")
	defer resp.Body.Close()

	assertSecurityHeaders(t, resp)
}

func TestSecurity_CorrelationIDGenerated(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/healthz", "")
	defer resp.Body.Close()

	id := resp.Header.Get("X-Correlation-Id")
	if id == "" {
		t.Fatal("expected a generated X-Correlation-Id")
	}
	if len(id) != 32 {
		t.Errorf("correlation id length = %d, want 32 hex chars", len(id))
	}
}

func TestSecurity_CorrelationIDEchoed(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GETWithHeaders("/healthz", "", map[string]string{
		"X-Correlation-Id": "custom-trace-123",
	})
	defer resp.Body.Close()

	assertEqual(t, resp.Header.Get("X-Correlation-Id"), "custom-trace-123", "echoed correlation id")
}

// ==========================================================================
// CORS Tests
// ==========================================================================

func TestSecurity_CORSAllowedOrigin(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GETWithHeaders("/healthz", "", map[string]string{"Origin": allowedOrigin})
	defer resp.Body.Close()

	assertEqual(t, resp.Header.Get("Access-Control-Allow-Origin"), allowedOrigin, "allow-origin")
	assertEqual(t, resp.Header.Get("Access-Control-Expose-Headers"), "X-Correlation-Id", "expose-headers")
	assertEqual(t, resp.Header.Get("Vary"), "Origin", "vary")
}

func TestSecurity_CORSDisallowedOrigin(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GETWithHeaders("/healthz", "", map[string]string{"Origin": "http://evil.example.com"})
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Access-Control-Allow-Origin %q", got)
	}
}

func TestSecurity_CORSPreflight(t *testing.T) {
	h := NewTestHarness(t)

	t.Run("allowed origin", func(t *testing.T) {
		resp := h.OPTIONS("/api/v1/devices", allowedOrigin)
		h.AssertStatus(t, resp, http.StatusNoContent)
		defer resp.Body.Close()

		assertEqual(t, resp.Header.Get("Access-Control-Allow-Origin"), allowedOrigin, "allow-origin")
		if methods := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(methods, "PUT") {
			t.Errorf("allow-methods %q missing PUT", methods)
		}
	})

	t.Run("disallowed origin still gets 204, no allow headers", func(t *testing.T) {
		resp := h.OPTIONS("/api/v1/devices", "http://evil.example.com")
		h.AssertStatus(t, resp, http.StatusNoContent)
		defer resp.Body.Close()

		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("disallowed origin got Access-Control-Allow-Origin %q", got)
		}
	})
}

// ==========================================================================
// Input Hardening Tests
// ==========================================================================

func TestSecurity_AssetNameTraversalRejected(t *testing.T) {
	h := NewTestHarness(t)
	token := h.Token("operator")

	payload := base64.StdEncoding.EncodeToString([]byte("font bytes"))
	for _, name := range []string{"../evil.ttf", "fonts/../../evil.ttf", "/etc/passwd", ".hidden.ttf"} {
		t.Run(name, func(t *testing.T) {
			resp := h.POST("/api/v1/assets", map[string]any{
				"name":        name,
				"data_base64": payload,
			}, token)
			h.AssertStatus(t, resp, http.StatusBadRequest)
			resp.Body.Close()
		})
	}
}

// assertSecurityHeaders checks the hardening headers stamped on every
// response, including errors and public endpoints.
func assertSecurityHeaders(t *testing.T, resp *http.Response) {
	t.Helper()

	expected := map[string]string{
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-XSS-Protection":          "0",
		"Cache-Control":             "no-store",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
	}
	for header, want := range expected {
		if got := resp.Header.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}
