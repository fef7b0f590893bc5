package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/panelsmith/panelsmith/internal/assets"
	"github.com/panelsmith/panelsmith/internal/compiler"
	"github.com/panelsmith/panelsmith/internal/config"
	"github.com/panelsmith/panelsmith/internal/deploy"
	"github.com/panelsmith/panelsmith/internal/observability"
	"github.com/panelsmith/panelsmith/internal/recipe"
	"github.com/panelsmith/panelsmith/internal/schema"
	"github.com/panelsmith/panelsmith/internal/selfcheck"
	"github.com/panelsmith/panelsmith/internal/store"
	"github.com/panelsmith/panelsmith/internal/validate"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Log       *zap.Logger
	Metrics   *observability.Metrics
	Devices   store.DeviceStore
	Recipes   *recipe.Store
	Schemas   *schema.Registry
	Assets    *assets.Store
	Deploy    *deploy.Writer
	Compiler  *compiler.Compiler
	Validator *validate.Validator
	SelfCheck *selfcheck.Runner

	// Authenticate guards the /api/v1 group. nil means the API runs open,
	// which is the mode when no token secret is configured.
	Authenticate func(http.Handler) http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(deps.Log))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(InjectLogger(deps.Log))

	// Public routes — bypass authentication.
	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(readinessChecks(deps)))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, observability.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}
		if deps.Config.Observability.Tracing.Enabled {
			r.Use(observability.TracingMiddleware)
		}
		if deps.Authenticate != nil {
			r.Use(deps.Authenticate)
		}
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)

		r.Get("/context", handleGetContext(deps.Config))
		r.Get("/diagnostics", handleGetDiagnostics(deps))
		r.Post("/selfcheck", handleSelfCheck(deps.SelfCheck, deps.Metrics))

		r.Get("/devices", handleListDevices(deps.Devices))
		r.Post("/devices", handleCreateDevice(deps.Devices))
		r.Post("/devices/import", handleImportDevice(deps.Devices))
		r.Route("/devices/{deviceID}", func(r chi.Router) {
			r.Get("/", handleGetDevice(deps.Devices))
			r.Put("/", handleUpdateDevice(deps.Devices))
			r.Delete("/", handleDeleteDevice(deps.Devices))
			r.Get("/project", handleGetDeviceProject(deps.Devices, deps.Recipes))
			r.Put("/project", handlePutDeviceProject(deps.Devices))
			r.Get("/export/project", handleExportDeviceProject(deps.Devices))
			r.Post("/compile", handleCompileDevice(deps))
			r.Post("/deploy/preview", handleDeployPreview(deps))
			r.Post("/deploy", handleDeployExport(deps))
		})

		r.Get("/recipes", handleListRecipes(deps.Recipes))
		r.Post("/recipes/import", handleImportRecipe(deps.Recipes, deps.Metrics))
		r.Post("/recipes/validate", handleValidateRecipe(deps.Recipes))
		r.Route("/recipes/{recipeID}", func(r chi.Router) {
			r.Get("/", handleGetRecipe(deps.Recipes))
			r.Put("/", handlePutRecipe(deps.Recipes))
			r.Delete("/", handleDeleteRecipe(deps.Recipes))
			r.Post("/clone", handleCloneRecipe(deps.Recipes, deps.Metrics))
			r.Post("/rename", handleRenameRecipe(deps.Recipes))
			r.Get("/export", handleExportRecipe(deps.Recipes))
		})

		r.Get("/schemas/widgets", handleListWidgetSchemas(deps.Schemas))
		r.Get("/schemas/widgets/{widgetType}", handleGetWidgetSchema(deps.Schemas))

		r.Get("/assets", handleListAssets(deps.Assets))
		r.Post("/assets", handleUploadAsset(deps.Assets))
		r.Delete("/assets/{name}", handleDeleteAsset(deps.Assets))

		r.Post("/validate", handleValidateDocument(deps.Validator))
	})

	return r
}

func readinessChecks(deps Dependencies) observability.ReadinessChecks {
	checks := observability.ReadinessChecks{
		SchemasLoaded: func() bool {
			return deps.Schemas != nil && len(deps.Schemas.List()) > 0
		},
		RecipesAvailable: func() bool {
			return deps.Recipes != nil && deps.Recipes.Available()
		},
	}
	if deps.Devices != nil {
		checks.DeviceStore = deps.Devices
	}
	return checks
}
