package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/panelsmith/panelsmith/internal/merge"
	"github.com/panelsmith/panelsmith/internal/observability"
	"github.com/panelsmith/panelsmith/internal/recipe"
	"github.com/panelsmith/panelsmith/internal/validate"
	"github.com/panelsmith/panelsmith/model"
)

// compileRequest carries preview-mode overrides. Either field switches the
// response mode to "preview"; storage is never touched.
type compileRequest struct {
	Project          map[string]any `json:"project"`
	HardwareRecipeID string         `json:"hardware_recipe_id"`
}

type compileResponse struct {
	YAML   string `json:"yaml"`
	Mode   string `json:"mode"`
	SHA256 string `json:"sha256"`
}

func handleCompileDevice(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, err := deps.Devices.Get(r.Context(), chi.URLParam(r, "deviceID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}

		var req compileRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		mode := "stored"
		if req.Project != nil {
			device.Project = req.Project
			mode = "preview"
		}
		if rid := strings.TrimSpace(req.HardwareRecipeID); rid != "" {
			device.HardwareRecipeID = rid
			mode = "preview"
		}

		doc, err := compileDevice(r.Context(), deps, &device)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, compileResponse{YAML: doc, Mode: mode, SHA256: merge.Hash(doc)})
	}
}

func handleValidateDocument(validator *validate.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			YAML string `json:"yaml"`
		}
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		if strings.TrimSpace(req.YAML) == "" {
			WriteError(w, r, model.NewBadRequestError("yaml is required"))
			return
		}
		WriteJSON(w, http.StatusOK, validator.Validate(r.Context(), req.YAML))
	}
}

// compileDevice compiles one device against its effective recipe, recording
// compiler metrics. The device value is the caller's copy; overrides applied
// to it never reach storage.
func compileDevice(ctx context.Context, deps Dependencies, device *model.DeviceProject) (string, error) {
	text := resolveRecipeText(ctx, deps.Recipes, device)
	start := time.Now()
	doc, err := deps.Compiler.Compile(ctx, device, text)
	if deps.Metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		deps.Metrics.RecordCompile(status, time.Since(start), len(doc), widgetCount(device.Project))
	}
	return doc, err
}

// resolveRecipeText loads the text of a device's effective recipe. A recipe
// that cannot be read degrades to an empty body: the compiler still emits a
// well-formed document and the gap is visible in the output, not a dead
// compile button.
func resolveRecipeText(ctx context.Context, recipes *recipe.Store, device *model.DeviceProject) string {
	if recipes == nil {
		return ""
	}
	rid := device.EffectiveRecipeID()
	text, err := recipes.Text(ctx, rid)
	if err != nil {
		observability.RequestLogger(ctx, zap.NewNop()).Warn("recipe unavailable, compiling without one",
			zap.String("recipe_id", rid),
			zap.Error(err))
		return ""
	}
	return text
}

// widgetCount totals the widgets across a raw project's pages.
func widgetCount(project map[string]any) int {
	pages, _ := project["pages"].([]any)
	n := 0
	for _, p := range pages {
		page, ok := p.(map[string]any)
		if !ok {
			continue
		}
		widgets, _ := page["widgets"].([]any)
		n += len(widgets)
	}
	return n
}
