package config

import (
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Auth.TokenSecret != "file-secret" {
		t.Errorf("Auth.TokenSecret = %q", cfg.Auth.TokenSecret)
	}
	if !cfg.Auth.Enabled() {
		t.Error("Auth.Enabled() = false, want true with token secret set")
	}
	if cfg.Storage.DataDir != "/tmp/panelsmith-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.DatabasePath() != "/tmp/panelsmith-test/devices.db" {
		t.Errorf("Storage.DatabasePath() = %q", cfg.Storage.DatabasePath())
	}
	if cfg.Recipes.DefaultID != "sunton_8048s043_800x480" {
		t.Errorf("Recipes.DefaultID = %q", cfg.Recipes.DefaultID)
	}
	if !cfg.Schemas.HotReload {
		t.Error("Schemas.HotReload = false, want true")
	}
	if len(cfg.Server.CORS.AllowedOrigins) != 1 {
		t.Errorf("CORS.AllowedOrigins = %v, want 1 entry", cfg.Server.CORS.AllowedOrigins)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("Observability.LogLevel = %q, want debug", cfg.Observability.LogLevel)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Server.WriteTimeout != 60*time.Second {
		t.Errorf("Server.WriteTimeout = %v, want default 60s", cfg.Server.WriteTimeout)
	}
	if cfg.Assets.MaxUploadSize != 8<<20 {
		t.Errorf("Assets.MaxUploadSize = %d, want default 8MiB", cfg.Assets.MaxUploadSize)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_dirs(t *testing.T) {
	_, err := Load("testdata/missing_dirs.yaml")
	if err == nil {
		t.Fatal("Load() with blank directories should return error")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8128 {
		t.Errorf("default Server.Port = %d, want 8128", cfg.Server.Port)
	}
	if cfg.Auth.Enabled() {
		t.Error("default Auth.Enabled() = true, want false with no secret")
	}
	if cfg.Recipes.DefaultID != "sunton_2432s028r_320x240" {
		t.Errorf("default Recipes.DefaultID = %q", cfg.Recipes.DefaultID)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults().Validate() error = %v, want nil", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PANELSMITH_SERVER_PORT", "3000")
	t.Setenv("PANELSMITH_AUTH_TOKEN_SECRET", "env-secret")
	t.Setenv("PANELSMITH_STORAGE_DATA_DIR", "/tmp/env-data")
	t.Setenv("PANELSMITH_DEPLOY_OUTPUT_DIR", "/tmp/env-esphome")
	t.Setenv("PANELSMITH_OBSERVABILITY_LOG_LEVEL", "error")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000 (env override)", cfg.Server.Port)
	}
	if cfg.Auth.TokenSecret != "env-secret" {
		t.Errorf("Auth.TokenSecret = %q, want env override", cfg.Auth.TokenSecret)
	}
	if cfg.Storage.DataDir != "/tmp/env-data" {
		t.Errorf("Storage.DataDir = %q, want env override", cfg.Storage.DataDir)
	}
	if cfg.Deploy.OutputDir != "/tmp/env-esphome" {
		t.Errorf("Deploy.OutputDir = %q, want env override", cfg.Deploy.OutputDir)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.Observability.LogLevel)
	}
}

func TestValidate_invalid_port(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() with port 0 should return error")
	}
}

func TestLoad_env_priority_over_file(t *testing.T) {
	// File sets port 9090, env sets 5555 - env wins.
	t.Setenv("PANELSMITH_SERVER_PORT", "5555")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 5555 {
		t.Errorf("Server.Port = %d, want 5555 (env override beats file)", cfg.Server.Port)
	}
}
