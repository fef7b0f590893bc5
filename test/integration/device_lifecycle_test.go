package integration

import (
	"net/http"
	"testing"
)

// builtinRecipe is the bundled hardware recipe the scenarios pin so they do
// not depend on user recipe files.
const builtinRecipe = "sunton_2432s028r_320x240"

// ==========================================================================
// Device CRUD Tests
// ==========================================================================

func TestDeviceLifecycle_CRUDOverHTTP(t *testing.T) {
	h := NewTestHarness(t)
	token := h.Token("operator")

	var apiKey string

	t.Run("create provisions identity and defaults", func(t *testing.T) {
		resp := h.POST("/api/v1/devices", map[string]any{
			"device_id": "living_room",
			"name":      "Living Room",
		}, token)
		h.AssertStatus(t, resp, http.StatusCreated)

		var device map[string]any
		h.ParseJSON(resp, &device)
		assertEqual(t, device["device_id"], "living_room", "device_id")
		assertEqual(t, device["name"], "Living Room", "name")

		apiKey, _ = device["api_key"].(string)
		if apiKey == "" {
			t.Fatal("expected a generated api_key")
		}
		project, _ := device["project"].(map[string]any)
		if pages, _ := project["pages"].([]any); len(pages) == 0 {
			t.Error("expected the default project to carry a main page")
		}
	})

	t.Run("recreating the same id updates in place", func(t *testing.T) {
		resp := h.POST("/api/v1/devices", map[string]any{
			"device_id": "living_room",
			"name":      "Living Room v2",
		}, token)
		h.AssertStatus(t, resp, http.StatusOK)

		var device map[string]any
		h.ParseJSON(resp, &device)
		assertEqual(t, device["name"], "Living Room v2", "name")
		assertEqual(t, device["api_key"], apiKey, "api_key survives re-create")
	})

	t.Run("list includes the device", func(t *testing.T) {
		resp := h.GET("/api/v1/devices", token)
		h.AssertStatus(t, resp, http.StatusOK)

		var body map[string]any
		h.ParseJSON(resp, &body)
		devices, _ := body["devices"].([]any)
		if len(devices) != 1 {
			t.Fatalf("device count = %d, want 1", len(devices))
		}
		first := devices[0].(map[string]any)
		assertEqual(t, first["device_id"], "living_room", "listed device_id")
	})

	t.Run("rename persists", func(t *testing.T) {
		resp := h.PUT("/api/v1/devices/living_room", map[string]any{
			"name": "Front Room",
		}, token)
		h.AssertStatus(t, resp, http.StatusOK)

		resp = h.GET("/api/v1/devices/living_room", token)
		h.AssertStatus(t, resp, http.StatusOK)
		var device map[string]any
		h.ParseJSON(resp, &device)
		assertEqual(t, device["name"], "Front Room", "renamed device")
	})

	t.Run("unknown device is 404", func(t *testing.T) {
		resp := h.GET("/api/v1/devices/basement", token)
		h.AssertStatus(t, resp, http.StatusNotFound)
		assertEqual(t, h.ErrorCode(resp), "NOT_FOUND", "error code")
	})

	t.Run("delete removes the device", func(t *testing.T) {
		resp := h.DELETE("/api/v1/devices/living_room", token)
		h.AssertStatus(t, resp, http.StatusNoContent)
		resp.Body.Close()

		resp = h.GET("/api/v1/devices/living_room", token)
		h.AssertStatus(t, resp, http.StatusNotFound)
		resp.Body.Close()
	})
}

// ==========================================================================
// Project Document Tests
// ==========================================================================

func TestDeviceLifecycle_ProjectRoundTrip(t *testing.T) {
	h := NewTestHarness(t)
	token := h.Token("operator")

	resp := h.POST("/api/v1/devices", map[string]any{
		"device_id":          "kitchen",
		"hardware_recipe_id": builtinRecipe,
	}, token)
	h.AssertStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	project := map[string]any{
		"model_version": 1,
		"pages": []any{
			map[string]any{
				"page_id": "main",
				"name":    "Main",
				"widgets": []any{
					map[string]any{"id": "w1", "type": "button", "label": "Lights"},
				},
			},
		},
		"custom_field": "kept verbatim",
	}

	t.Run("put stores the document", func(t *testing.T) {
		resp := h.PUT("/api/v1/devices/kitchen/project", map[string]any{"project": project}, token)
		h.AssertStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	})

	t.Run("get returns it enriched with screen geometry", func(t *testing.T) {
		resp := h.GET("/api/v1/devices/kitchen/project", token)
		h.AssertStatus(t, resp, http.StatusOK)

		var body struct {
			Project map[string]any `json:"project"`
		}
		h.ParseJSON(resp, &body)

		assertEqual(t, body.Project["custom_field"], "kept verbatim", "unknown field survives")

		device, _ := body.Project["device"].(map[string]any)
		if device == nil {
			t.Fatal("expected project.device screen info from the recipe")
		}
		screen, _ := device["screen"].(map[string]any)
		assertFloatEqual(t, screen["width"], 320, "screen width")
		assertFloatEqual(t, screen["height"], 240, "screen height")
	})

	t.Run("put without a project object is rejected", func(t *testing.T) {
		resp := h.PUT("/api/v1/devices/kitchen/project", map[string]any{}, token)
		h.AssertStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()
	})
}

// ==========================================================================
// Export / Import Tests
// ==========================================================================

func TestDeviceLifecycle_ExportImport(t *testing.T) {
	h := NewTestHarness(t)
	token := h.Token("operator")

	resp := h.POST("/api/v1/devices", map[string]any{
		"device_id": "hallway",
		"name":      "Hallway",
	}, token)
	h.AssertStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = h.GET("/api/v1/devices/hallway/export/project", token)
	h.AssertStatus(t, resp, http.StatusOK)
	var exported map[string]any
	h.ParseJSON(resp, &exported)

	// Re-import under a new id, as a designer would when cloning a panel.
	exported["device_id"] = "hallway_clone"
	resp = h.POST("/api/v1/devices/import", exported, token)
	h.AssertStatus(t, resp, http.StatusOK)

	var imported map[string]any
	h.ParseJSON(resp, &imported)
	assertEqual(t, imported["device_id"], "hallway_clone", "imported device_id")

	resp = h.GET("/api/v1/devices/hallway_clone", token)
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

// ==========================================================================
// Persistence Tests
// ==========================================================================

func TestDeviceLifecycle_PersistsAcrossRestart(t *testing.T) {
	dataDir := t.TempDir()

	// First server: create a device and a project, then shut down.
	h1 := NewTestHarness(t, WithDataDir(dataDir))
	token := h1.Token("operator")

	resp := h1.POST("/api/v1/devices", map[string]any{
		"device_id":          "bedroom",
		"name":               "Bedroom",
		"hardware_recipe_id": builtinRecipe,
	}, token)
	h1.AssertStatus(t, resp, http.StatusCreated)
	var created map[string]any
	h1.ParseJSON(resp, &created)
	apiKey, _ := created["api_key"].(string)

	resp = h1.PUT("/api/v1/devices/bedroom/project", map[string]any{
		"project": map[string]any{
			"model_version": 1,
			"pages": []any{
				map[string]any{"page_id": "main", "name": "Night", "widgets": []any{}},
			},
		},
	}, token)
	h1.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	h1.Close()

	// Second server over the same data directory sees everything.
	h2 := NewTestHarness(t, WithDataDir(dataDir))
	token = h2.Token("operator")

	resp = h2.GET("/api/v1/devices/bedroom", token)
	h2.AssertStatus(t, resp, http.StatusOK)

	var device map[string]any
	h2.ParseJSON(resp, &device)
	assertEqual(t, device["name"], "Bedroom", "name after restart")
	assertEqual(t, device["api_key"], apiKey, "api_key after restart")
	assertEqual(t, device["hardware_recipe_id"], builtinRecipe, "recipe after restart")

	project, _ := device["project"].(map[string]any)
	pages, _ := project["pages"].([]any)
	if len(pages) != 1 {
		t.Fatalf("page count after restart = %d, want 1", len(pages))
	}
	page := pages[0].(map[string]any)
	assertEqual(t, page["name"], "Night", "page name after restart")
}
