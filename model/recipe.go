package model

import "time"

// Recipe sources.
const (
	RecipeSourceBuiltin = "builtin"
	RecipeSourceUser    = "user"
	RecipeSourceLegacy  = "legacy"
)

// RecipeInfo is one entry in the recipe listing.
type RecipeInfo struct {
	ID       string          `json:"id"`
	Source   string          `json:"source"`
	Label    string          `json:"label"`
	Metadata *RecipeMetadata `json:"metadata,omitempty"`
}

// Builtin reports whether the recipe ships embedded in the binary.
func (r RecipeInfo) Builtin() bool { return r.Source == RecipeSourceBuiltin }

// RecipeResolution is the display size extracted from a recipe.
type RecipeResolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RecipeMetadata is the sidecar stored alongside user recipes. Heuristic
// fields are best-effort extractions from the recipe text at import time and
// must never block an import.
type RecipeMetadata struct {
	Label       string            `json:"label,omitempty"`
	ClonedFrom  string            `json:"cloned_from,omitempty"`
	ImportedAt  time.Time         `json:"imported_at,omitempty"`
	ProjectName string            `json:"project_name,omitempty"`
	Board       string            `json:"board,omitempty"`
	Platform    string            `json:"platform,omitempty"`
	Resolution  *RecipeResolution `json:"resolution,omitempty"`
	Touch       string            `json:"touch,omitempty"`
	Backlight   string            `json:"backlight_pin,omitempty"`
	PSRAM       bool              `json:"psram,omitempty"`
	Notes       string            `json:"notes,omitempty"`
}

// RecipeValidation is the outcome of structural recipe validation.
type RecipeValidation struct {
	OK       bool            `json:"ok"`
	Issues   []string        `json:"issues,omitempty"`
	Metadata *RecipeMetadata `json:"metadata,omitempty"`
}

// RecipeExport bundles a recipe's text and sidecar for download/backup.
type RecipeExport struct {
	ID       string          `json:"id"`
	Source   string          `json:"source"`
	Label    string          `json:"label"`
	YAML     string          `json:"yaml"`
	Metadata *RecipeMetadata `json:"metadata,omitempty"`
}
