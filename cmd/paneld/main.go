// Package main is the entry point for the panelsmith daemon.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
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
	"github.com/panelsmith/panelsmith/internal/transport"
	"github.com/panelsmith/panelsmith/internal/validate"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		os.Exit(runToken(os.Args[2:]))
	}
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "panelsmith", version)
	if err != nil {
		logger.Fatal("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Ensure data directories exist.
	for _, dir := range []string{cfg.Storage.DataDir, cfg.Schemas.UserDir, cfg.Recipes.Dir, cfg.Assets.Dir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("creating data directory failed", zap.String("dir", dir), zap.Error(err))
			return 1
		}
	}

	// Step 5: Load widget schemas, watching the user directory for edits.
	registry, err := schema.NewRegistry(schema.NewLoader(cfg.Schemas.UserDir, logger), logger)
	if err != nil {
		logger.Fatal("widget schema load failed", zap.Error(err))
		return 1
	}
	metrics.SetSchemasLoaded(float64(len(registry.List())))

	if cfg.Schemas.HotReload {
		watcher, err := schema.NewWatcher(registry, logger)
		if err != nil {
			logger.Warn("schema hot-reload unavailable", zap.Error(err))
		} else if watcher != nil {
			watcher.OnReload = func(err error) {
				status := "ok"
				if err != nil {
					status = "error"
				}
				metrics.RecordSchemaReload(status)
				metrics.SetSchemasLoaded(float64(len(registry.List())))
			}
			watcher.Start(ctx)
			defer watcher.Close()
		}
	}

	// Step 6: Open the device store.
	devices, err := store.Open(cfg.Storage.DatabasePath())
	if err != nil {
		logger.Fatal("device store open failed", zap.String("path", cfg.Storage.DatabasePath()), zap.Error(err))
		return 1
	}
	defer devices.Close()

	// Step 7: Build the domain components.
	recipes := recipe.NewStore(cfg.Recipes.Dir, logger)
	assetStore := assets.NewStore(cfg.Assets.Dir, cfg.Assets.MaxUploadSize, logger)
	writer := deploy.NewWriter(cfg.Deploy.OutputDir, logger)
	comp := compiler.New(registry, logger, compiler.WithVersion(version))
	validator := validate.New(validate.Options{
		EnableCLI: cfg.Validate.ESPHomeCLI,
		Binary:    cfg.Validate.Binary,
		Timeout:   cfg.Validate.Timeout,
	}, logger)
	checker := selfcheck.NewRunner(comp, recipes, version, logger)

	// Step 8: Build the HTTP router.
	deps := transport.Dependencies{
		Config:    cfg,
		Log:       logger,
		Metrics:   metrics,
		Devices:   devices,
		Recipes:   recipes,
		Schemas:   registry,
		Assets:    assetStore,
		Deploy:    writer,
		Compiler:  comp,
		Validator: validator,
		SelfCheck: checker,
	}
	if cfg.Auth.Enabled() {
		deps.Authenticate = transport.BearerAuth(cfg.Auth)
	} else {
		logger.Warn("auth.token_secret not configured, API runs unauthenticated")
	}
	router := transport.NewRouter(deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 9: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("widget_schemas", len(registry.List())),
		zap.Int("recipes", len(recipes.List(ctx))),
		zap.String("output_dir", cfg.Deploy.OutputDir),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// runToken issues a bearer token for the configured secret and prints it.
// Operators use this to mint credentials for the editor UI or curl.
func runToken(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to configuration file")
	subject := fs.String("subject", "operator", "token subject")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}
	if !cfg.Auth.Enabled() {
		fmt.Fprintln(os.Stderr, "auth.token_secret is not configured; the API runs open and needs no token")
		return 1
	}

	token, err := transport.IssueToken(cfg.Auth, *subject, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "issuing token: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}
