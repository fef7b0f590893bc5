package recipe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/panelsmith/panelsmith/model"
)

var (
	resolutionTextRe = regexp.MustCompile(`(?s)\bwidth:\s*(\d+)\b.*?\bheight:\s*(\d+)\b`)
	resolutionIDRe   = regexp.MustCompile(`(?i)(\d{3,4})\s*[x×]\s*(\d{3,4})`)
	slugRe           = regexp.MustCompile(`[^a-z0-9]+`)
	destIDRe         = regexp.MustCompile(`[^a-zA-Z0-9_\-]+`)
)

// slugify reduces free text to a recipe id: lowercase, runs of anything
// outside [a-z0-9] collapsed to single underscores.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(slugRe.ReplaceAllString(s, "_"), "_")
	if s == "" {
		return "recipe"
	}
	return s
}

// sanitizeDestID cleans a caller-chosen clone destination id. Unlike slugify
// it keeps case and dashes.
func sanitizeDestID(s string) string {
	s = strings.Trim(destIDRe.ReplaceAllString(strings.TrimSpace(s), "_"), "_")
	if s == "" {
		return "recipe"
	}
	return s
}

// resolved unwraps alias nodes.
func resolved(n *yaml.Node) *yaml.Node {
	if n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		return n.Alias
	}
	return n
}

// documentMapping returns the top-level mapping of a parsed document, or nil
// when the document root is not a mapping.
func documentMapping(doc *yaml.Node) *yaml.Node {
	if doc == nil || doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	root := resolved(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil
	}
	return root
}

// mappingValue returns the value node for key in a mapping, nil when absent.
func mappingValue(n *yaml.Node, key string) *yaml.Node {
	n = resolved(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return resolved(n.Content[i+1])
		}
	}
	return nil
}

// firstItem returns the first element of a sequence node, nil otherwise.
func firstItem(n *yaml.Node) *yaml.Node {
	n = resolved(n)
	if n == nil || n.Kind != yaml.SequenceNode || len(n.Content) == 0 {
		return nil
	}
	return resolved(n.Content[0])
}

func scalarValue(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.ScalarNode {
		return ""
	}
	return n.Value
}

func intValue(n *yaml.Node) int {
	v, err := strconv.Atoi(scalarValue(n))
	if err != nil {
		return 0
	}
	return v
}

// extractMetadata pulls display metadata out of a parsed recipe. Everything
// here is heuristic and must never block an import: a recipe that defeats
// every probe simply gets sparse metadata.
func extractMetadata(root *yaml.Node, text, label string) *model.RecipeMetadata {
	meta := &model.RecipeMetadata{Label: label}

	for _, key := range []string{"esp32", "esp32_s3", "esp32_p4"} {
		block := mappingValue(root, key)
		if block == nil || block.Kind != yaml.MappingNode {
			continue
		}
		meta.Platform = key
		if board := scalarValue(mappingValue(block, "board")); board != "" {
			meta.Board = board
		}
	}
	meta.ProjectName = scalarValue(mappingValue(mappingValue(root, "esphome"), "name"))

	width, height := 0, 0
	if d0 := firstItem(mappingValue(root, "display")); d0 != nil {
		width = intValue(mappingValue(d0, "width"))
		height = intValue(mappingValue(d0, "height"))
		if dims := mappingValue(d0, "dimensions"); dims != nil {
			if width == 0 {
				width = intValue(mappingValue(dims, "width"))
			}
			if height == 0 {
				height = intValue(mappingValue(dims, "height"))
			}
		}
	}
	if width == 0 || height == 0 {
		if m := resolutionTextRe.FindStringSubmatch(text); m != nil {
			width, _ = strconv.Atoi(m[1])
			height, _ = strconv.Atoi(m[2])
		}
	}
	if width > 0 && height > 0 {
		meta.Resolution = &model.RecipeResolution{Width: width, Height: height}
	}

	if t0 := firstItem(mappingValue(root, "touchscreen")); t0 != nil {
		meta.Touch = scalarValue(mappingValue(t0, "platform"))
	}

	if outputs := mappingValue(root, "output"); outputs != nil && outputs.Kind == yaml.SequenceNode {
		for _, item := range outputs.Content {
			item = resolved(item)
			id := scalarValue(mappingValue(item, "id"))
			pin := mappingValue(item, "pin")
			if pin == nil || !strings.Contains(id, "backlight") {
				continue
			}
			if p := scalarValue(pin); p != "" {
				meta.Backlight = p
			} else if num := scalarValue(mappingValue(pin, "number")); num != "" {
				meta.Backlight = num
			}
			break
		}
	}

	meta.PSRAM = mappingValue(root, "psram") != nil ||
		strings.Contains(strings.ToLower(text), "psram")
	return meta
}

// extractMetadataFromText probes a stored recipe file. YAML parsing is
// attempted first; on failure the text and the recipe id itself are mined for
// a resolution.
func extractMetadataFromText(text, recipeID string) *model.RecipeMetadata {
	meta := &model.RecipeMetadata{}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err == nil {
		if root := documentMapping(&doc); root != nil {
			meta = extractMetadata(root, text, "")
		}
	}
	if meta.Resolution == nil {
		if m := resolutionTextRe.FindStringSubmatch(text); m != nil {
			w, _ := strconv.Atoi(m[1])
			h, _ := strconv.Atoi(m[2])
			meta.Resolution = &model.RecipeResolution{Width: w, Height: h}
		}
	}
	if meta.Resolution == nil && recipeID != "" {
		if m := resolutionIDRe.FindStringSubmatch(recipeID); m != nil {
			w, _ := strconv.Atoi(m[1])
			h, _ := strconv.Atoi(m[2])
			meta.Resolution = &model.RecipeResolution{Width: w, Height: h}
		}
	}
	if !meta.PSRAM {
		meta.PSRAM = strings.Contains(strings.ToLower(text), "psram")
	}
	return meta
}

// deriveLabel builds a display label from extracted metadata.
func deriveLabel(meta *model.RecipeMetadata) string {
	var parts []string
	if meta.Board != "" {
		parts = append(parts, meta.Board)
	}
	if meta.Resolution != nil {
		parts = append(parts, fmt.Sprintf("%dx%d", meta.Resolution.Width, meta.Resolution.Height))
	}
	if len(parts) == 0 {
		return "Custom recipe"
	}
	return strings.Join(parts, " • ")
}
