// Package recipe manages hardware recipe templates. Builtin recipes ship
// embedded in the binary and are read-only; user recipes live on disk under
// the configured recipes directory, either in the structured layout
// (user/<id>/recipe.yaml plus metadata.json) or as legacy flat <id>.yaml
// files kept readable for old installations.
package recipe

import (
	"embed"
	"sort"
	"strings"

	"github.com/panelsmith/panelsmith/model"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Markers recipes carry for the compiler splice points.
const (
	MarkerLVGLPages  = "#__LVGL_PAGES__"
	MarkerHABindings = "#__HA_BINDINGS__"
)

// builtinLabels maps shipped recipe ids to display labels. Unknown ids fall
// back to the id with underscores spaced out.
var builtinLabels = map[string]string{
	"sunton_2432s028r_320x240": `Sunton ESP32-2432S028R (2.8" 320x240)`,
	"sunton_8048s043_800x480":  `Sunton ESP32-8048S043 (4.3" 800x480)`,
}

// builtinIDs returns the embedded recipe ids in filename order.
func builtinIDs() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(entries))
	for _, de := range entries {
		name := de.Name()
		if !strings.HasSuffix(name, ".yaml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(ids)
	return ids
}

func builtinLabel(id string) string {
	if label, ok := builtinLabels[id]; ok {
		return label
	}
	return strings.ReplaceAll(id, "_", " ")
}

func builtinText(id string) (string, bool) {
	data, err := builtinFS.ReadFile("builtin/" + id + ".yaml")
	if err != nil {
		return "", false
	}
	return string(data), true
}

func builtinInfo(id string) model.RecipeInfo {
	return model.RecipeInfo{
		ID:     id,
		Source: model.RecipeSourceBuiltin,
		Label:  builtinLabel(id),
	}
}
