// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Storage       StorageConfig       `yaml:"storage"`
	Schemas       SchemasConfig       `yaml:"schemas"`
	Recipes       RecipesConfig       `yaml:"recipes"`
	Assets        AssetsConfig        `yaml:"assets"`
	Deploy        DeployConfig        `yaml:"deploy"`
	Validate      ValidateConfig      `yaml:"validate"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// AuthConfig describes bearer token settings for the API. When TokenSecret is
// empty the API runs unauthenticated, which is the expected mode when the
// service sits behind a trusted reverse proxy on a home network.
type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret"`
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

// Enabled reports whether bearer authentication is configured.
func (a AuthConfig) Enabled() bool { return a.TokenSecret != "" }

// StorageConfig describes where device projects are persisted.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// DatabasePath returns the bolt database file under the data directory.
func (s StorageConfig) DatabasePath() string {
	return s.DataDir + "/devices.db"
}

// SchemasConfig describes where widget schemas are loaded from.
type SchemasConfig struct {
	UserDir   string `yaml:"user_dir"`
	HotReload bool   `yaml:"hot_reload"`
}

// RecipesConfig describes where hardware recipes live.
type RecipesConfig struct {
	Dir       string `yaml:"dir"`
	DefaultID string `yaml:"default_id"`
}

// AssetsConfig describes the font/image asset store.
type AssetsConfig struct {
	Dir           string `yaml:"dir"`
	MaxUploadSize int64  `yaml:"max_upload_size"`
}

// DeployConfig describes where compiled YAML documents are written.
type DeployConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// ValidateConfig describes the optional external validation pipeline. When
// ESPHomeCLI is enabled, POST /validate shells out to the esphome binary in
// addition to the built-in structural checks.
type ValidateConfig struct {
	ESPHomeCLI bool          `yaml:"esphome_cli"`
	Binary     string        `yaml:"binary"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Exporter          string  `yaml:"exporter"`
	Endpoint          string  `yaml:"endpoint"`
	SamplingRate      float64 `yaml:"sampling_rate"`
	ForceSampleErrors bool    `yaml:"force_sample_errors"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8128,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			HandlerTimeout:  55 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Auth: AuthConfig{
			Issuer:   "panelsmith",
			Audience: "panelsmith-api",
			TokenTTL: 24 * time.Hour,
		},
		Storage: StorageConfig{
			DataDir: "/var/lib/panelsmith",
		},
		Schemas: SchemasConfig{
			UserDir:   "/var/lib/panelsmith/schemas",
			HotReload: true,
		},
		Recipes: RecipesConfig{
			Dir:       "/var/lib/panelsmith/recipes",
			DefaultID: "sunton_2432s028r_320x240",
		},
		Assets: AssetsConfig{
			Dir:           "/var/lib/panelsmith/assets",
			MaxUploadSize: 8 << 20,
		},
		Deploy: DeployConfig{
			OutputDir: "/config/esphome",
		},
		Validate: ValidateConfig{
			Binary:  "esphome",
			Timeout: 5 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, "storage.data_dir is required")
	}
	if c.Recipes.Dir == "" {
		errs = append(errs, "recipes.dir is required")
	}
	if c.Recipes.DefaultID == "" {
		errs = append(errs, "recipes.default_id is required")
	}
	if c.Assets.Dir == "" {
		errs = append(errs, "assets.dir is required")
	}
	if c.Deploy.OutputDir == "" {
		errs = append(errs, "deploy.output_dir is required")
	}
	if c.Assets.MaxUploadSize < 1 {
		errs = append(errs, "assets.max_upload_size must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads PANELSMITH_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PANELSMITH_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PANELSMITH_AUTH_TOKEN_SECRET"); v != "" {
		cfg.Auth.TokenSecret = v
	}
	if v := os.Getenv("PANELSMITH_STORAGE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("PANELSMITH_RECIPES_DIR"); v != "" {
		cfg.Recipes.Dir = v
	}
	if v := os.Getenv("PANELSMITH_ASSETS_DIR"); v != "" {
		cfg.Assets.Dir = v
	}
	if v := os.Getenv("PANELSMITH_DEPLOY_OUTPUT_DIR"); v != "" {
		cfg.Deploy.OutputDir = v
	}
	if v := os.Getenv("PANELSMITH_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
