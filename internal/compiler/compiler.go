package compiler

import (
	"go.uber.org/zap"

	"github.com/panelsmith/panelsmith/model"
)

// Document literals. Recipes and the assembler share these; the device-name
// placeholder is substituted exactly once, globally, at the end of a compile.
const (
	DeviceNamePlaceholder = "__PANELSMITH_DEVICE_NAME__"

	MarkerLVGLPages    = "#__LVGL_PAGES__"
	MarkerHABindings   = "#__HA_BINDINGS__"
	MarkerUserYAMLPre  = "#__USER_YAML_PRE__"
	MarkerUserYAMLPost = "#__USER_YAML_POST__"

	// SafetyStubScriptID is referenced by recipe boot hooks; the assembler
	// patches in a stub when nothing defines it.
	SafetyStubScriptID = "manage_run_and_sleep"
)

// DefaultAssetsDir is where emitted font/image declarations point when no
// directory is configured. The path is baked into the generated document and
// resolved on the firmware build host.
const DefaultAssetsDir = "/config/panelsmith_assets"

// SchemaSource resolves widget types to emission schemas. A nil schema with a
// nil error means "no schema": the widget falls back to generic container
// emission.
type SchemaSource interface {
	Load(widgetType string) (*model.WidgetSchema, error)
}

// Compiler turns (device record, recipe text) into a single ESPHome YAML
// document. It holds no mutable state between compiles; every invocation is a
// pure function of its inputs plus the fixed configuration below.
type Compiler struct {
	schemas   SchemaSource
	log       *zap.Logger
	version   string
	assetsDir string
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithVersion sets the version stamped into the generated-by header.
func WithVersion(v string) Option {
	return func(c *Compiler) { c.version = v }
}

// WithAssetsDir sets the directory emitted font/image file references point
// at.
func WithAssetsDir(dir string) Option {
	return func(c *Compiler) { c.assetsDir = dir }
}

// New creates a Compiler. schemas may be nil, in which case every widget uses
// generic container emission.
func New(schemas SchemaSource, log *zap.Logger, opts ...Option) *Compiler {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Compiler{
		schemas:   schemas,
		log:       log,
		version:   "dev",
		assetsDir: DefaultAssetsDir,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// loadSchema resolves a widget type, degrading to generic emission on
// malformed schema content. A broken schema file must never abort a compile.
func (c *Compiler) loadSchema(widgetType string) *model.WidgetSchema {
	if c.schemas == nil || widgetType == "" {
		return nil
	}
	schema, err := c.schemas.Load(widgetType)
	if err != nil {
		c.log.Warn("widget schema unusable, falling back to container emission",
			zap.String("widget_type", widgetType),
			zap.Error(err))
		return nil
	}
	return schema
}
