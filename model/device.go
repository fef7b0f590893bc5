package model

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"
)

// DefaultRecipeID is the hardware recipe assumed when a device names none.
const DefaultRecipeID = "sunton_2432s028r_320x240"

// DeviceProject is the persisted record for one designed device. Project and
// DeviceSettings are kept as raw documents so fields this version does not
// know about survive load/save cycles.
type DeviceProject struct {
	DeviceID         string         `json:"device_id"`
	Slug             string         `json:"slug"`
	Name             string         `json:"name"`
	HardwareRecipeID string         `json:"hardware_recipe_id,omitempty"`
	APIKey           string         `json:"api_key,omitempty"`
	DeviceSettings   map[string]any `json:"device_settings"`
	Project          map[string]any `json:"project"`
	CreatedAt        time.Time      `json:"created_at,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty"`
}

// DefaultPalette is the starting color set for new projects.
func DefaultPalette() map[string]any {
	return map[string]any{
		"color.bg":    "#0B0F14",
		"color.card":  "#111827",
		"color.text":  "#E5E7EB",
		"color.muted": "#9CA3AF",
	}
}

// DefaultProject returns a fresh raw project document: one empty main page
// and the default palette.
func DefaultProject() map[string]any {
	return map[string]any{
		"model_version": 1,
		"pages": []any{
			map[string]any{"page_id": "main", "name": "Main", "widgets": []any{}},
		},
		"palette": DefaultPalette(),
	}
}

// MigrateProject fills in required structure on a loaded raw project without
// touching keys it does not recognize. It returns the same map for
// convenience.
func MigrateProject(raw map[string]any) map[string]any {
	if raw == nil {
		return DefaultProject()
	}
	if _, ok := raw["model_version"]; !ok {
		raw["model_version"] = 1
	}
	pages, ok := raw["pages"].([]any)
	if !ok || len(pages) == 0 {
		raw["pages"] = []any{
			map[string]any{"page_id": "main", "name": "Main", "widgets": []any{}},
		}
	}
	if _, ok := raw["palette"].(map[string]any); !ok {
		raw["palette"] = DefaultPalette()
	}
	return raw
}

// Migrate normalizes a loaded record: default slug/name from the device id,
// required project structure, non-nil settings.
func (d *DeviceProject) Migrate() {
	if d.Slug == "" {
		d.Slug = NormalizeSlug(d.DeviceID)
	}
	if d.Name == "" {
		d.Name = d.DeviceID
	}
	if d.DeviceSettings == nil {
		d.DeviceSettings = map[string]any{}
	}
	d.Project = MigrateProject(d.Project)
}

// EffectiveRecipeID resolves the hardware recipe this device compiles
// against: the project's own hardware selection wins over the device record,
// with the default recipe as the final fallback.
func (d *DeviceProject) EffectiveRecipeID() string {
	if hw, ok := d.Project["hardware"].(map[string]any); ok {
		if rid, ok := hw["recipe_id"].(string); ok && rid != "" {
			return rid
		}
	}
	if d.HardwareRecipeID != "" {
		return d.HardwareRecipeID
	}
	return DefaultRecipeID
}

// NormalizeSlug lowercases a slug candidate and replaces spaces with
// underscores. The result is used as the output filename stem, so it must be
// stable for a given input.
func NormalizeSlug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// NewAPIKey generates a fresh device encryption key: 32 random bytes,
// base64-encoded, the form the firmware's native API expects.
func NewAPIKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(buf)
}
