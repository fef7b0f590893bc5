package transport

import (
	"net/http"

	"github.com/panelsmith/panelsmith/internal/config"
	"github.com/panelsmith/panelsmith/internal/observability"
	"github.com/panelsmith/panelsmith/internal/selfcheck"
)

// contextResponse is what a fresh editor session needs before its first
// request: the running version and whether it must attach a bearer token.
type contextResponse struct {
	Version         string `json:"version"`
	Commit          string `json:"commit"`
	AuthEnabled     bool   `json:"auth_enabled"`
	DefaultRecipeID string `json:"default_recipe_id"`
}

type diagnosticsResponse struct {
	Version        string `json:"version"`
	Commit         string `json:"commit"`
	DeviceCount    int    `json:"device_count"`
	RecipeCount    int    `json:"recipe_count"`
	SchemaCount    int    `json:"schema_count"`
	SchemaChecksum string `json:"schema_checksum"`
	DataDir        string `json:"data_dir"`
	RecipesDir     string `json:"recipes_dir"`
	AssetsDir      string `json:"assets_dir"`
	OutputDir      string `json:"output_dir"`
}

func handleGetContext(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, contextResponse{
			Version:         observability.Version,
			Commit:          observability.Commit,
			AuthEnabled:     cfg.Auth.Enabled(),
			DefaultRecipeID: cfg.Recipes.DefaultID,
		})
	}
}

func handleGetDiagnostics(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := diagnosticsResponse{
			Version:    observability.Version,
			Commit:     observability.Commit,
			DataDir:    deps.Config.Storage.DataDir,
			RecipesDir: deps.Config.Recipes.Dir,
			AssetsDir:  deps.Config.Assets.Dir,
			OutputDir:  deps.Config.Deploy.OutputDir,
		}
		if deps.Devices != nil {
			if n, err := deps.Devices.Count(r.Context()); err == nil {
				resp.DeviceCount = n
			}
		}
		if deps.Recipes != nil {
			resp.RecipeCount = len(deps.Recipes.List(r.Context()))
		}
		if deps.Schemas != nil {
			resp.SchemaCount = len(deps.Schemas.List())
			resp.SchemaChecksum = deps.Schemas.Checksum()
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func handleSelfCheck(runner *selfcheck.Runner, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := runner.Run(r.Context())
		if metrics != nil {
			status := "ok"
			if !report.OK {
				status = "failed"
			}
			metrics.RecordSelfCheck(status)
		}
		WriteJSON(w, http.StatusOK, report)
	}
}
