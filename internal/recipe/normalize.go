package recipe

import (
	"bytes"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/panelsmith/panelsmith/model"
)

// strippedTopLevelKeys are non-hardware sections removed when importing a
// full device YAML. They belong in the user's main ESPHome file or are
// injected back by the compiler; recipes carry hardware plus LVGL only.
var strippedTopLevelKeys = map[string]struct{}{
	"wifi":             {},
	"captive_portal":   {},
	"api":              {},
	"ota":              {},
	"logger":           {},
	"web_server":       {},
	"improv_serial":    {},
	"dashboard_import": {},
	"esp32_improv":     {},
	"bluetooth_proxy":  {},
	"packages":         {},
	"substitutions":    {},
}

var lvglBareLineRe = regexp.MustCompile(`^lvgl:\s*(\{\}\s*)?$`)

// normalizeImport converts raw device YAML into canonical recipe text plus
// extracted metadata. The text round-trips through the node tree so custom
// tags like !secret and !lambda survive: top-level infra keys are stripped,
// an lvgl section is guaranteed, mappings are key-sorted for a stable diff
// surface, and the pages marker is inserted when missing.
func normalizeImport(raw, label string) (string, *model.RecipeMetadata, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return "", nil, model.NewBadRequestError("recipe YAML parse failed: " + err.Error())
	}
	root := documentMapping(&doc)
	if root == nil {
		return "", nil, model.NewBadRequestError("top-level YAML must be a mapping")
	}

	stripInfraKeys(root)
	ensureLVGLKey(root)
	expandAliases(root)
	sortMappings(root)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return "", nil, model.NewBadRequestError("recipe YAML re-encode failed: " + err.Error())
	}
	if err := enc.Close(); err != nil {
		return "", nil, model.NewBadRequestError("recipe YAML re-encode failed: " + err.Error())
	}

	text := ensurePagesMarker(buf.String())
	meta := extractMetadata(root, text, label)
	if meta.Label == "" {
		meta.Label = deriveLabel(meta)
	}
	return text, meta, nil
}

func stripInfraKeys(root *yaml.Node) {
	kept := root.Content[:0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if _, drop := strippedTopLevelKeys[root.Content[i].Value]; drop {
			continue
		}
		kept = append(kept, root.Content[i], root.Content[i+1])
	}
	root.Content = kept
}

func ensureLVGLKey(root *yaml.Node) {
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "lvgl" {
			return
		}
	}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "lvgl"},
		&yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"},
	)
}

// expandAliases replaces every alias with a deep copy of its anchor target
// and drops the anchor names. Key sorting would otherwise be able to move an
// alias above its definition, which does not re-encode as valid YAML.
func expandAliases(n *yaml.Node) {
	n.Anchor = ""
	for i, c := range n.Content {
		if c.Kind == yaml.AliasNode && c.Alias != nil {
			c = cloneNode(c.Alias)
			n.Content[i] = c
		}
		expandAliases(c)
	}
}

func cloneNode(n *yaml.Node) *yaml.Node {
	c := *n
	if len(n.Content) > 0 {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = cloneNode(child)
		}
	}
	return &c
}

// sortMappings orders every mapping's keys alphabetically, recursing through
// nested mappings and sequences.
func sortMappings(n *yaml.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case yaml.MappingNode:
		type pair struct{ key, value *yaml.Node }
		pairs := make([]pair, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			pairs = append(pairs, pair{n.Content[i], n.Content[i+1]})
		}
		sort.SliceStable(pairs, func(i, j int) bool {
			return pairs[i].key.Value < pairs[j].key.Value
		})
		n.Content = n.Content[:0]
		for _, p := range pairs {
			n.Content = append(n.Content, p.key, p.value)
			sortMappings(p.value)
		}
	case yaml.SequenceNode, yaml.DocumentNode:
		for _, c := range n.Content {
			sortMappings(c)
		}
	}
}

// ensurePagesMarker guarantees the compile-time splice point. A bare or empty
// lvgl line (`lvgl:` or `lvgl: {}`) gets the marker comment inserted beneath
// it; the empty-flow rendering is expanded first so the insert always lands.
func ensurePagesMarker(text string) string {
	if strings.Contains(text, MarkerLVGLPages) {
		return text
	}
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines)+1)
	inserted := false
	for _, line := range lines {
		if !inserted && lvglBareLineRe.MatchString(line) {
			out = append(out, "lvgl:", "  "+MarkerLVGLPages)
			inserted = true
			continue
		}
		out = append(out, line)
		if !inserted && strings.HasPrefix(line, "lvgl:") {
			out = append(out, "  "+MarkerLVGLPages)
			inserted = true
		}
	}
	return strings.Join(out, "\n")
}

// validateText runs the preflight checks on a recipe. It is a UX helper, not
// a schema validator: issues are human-readable hints ordered roughly by
// severity.
func validateText(text string) []string {
	var issues []string
	if !strings.Contains(text, "lvgl:") {
		issues = append(issues, "Missing top-level `lvgl:` block.")
	}
	if !strings.Contains(text, MarkerLVGLPages) && !strings.Contains(text, "pages:") {
		issues = append(issues, "Missing `"+MarkerLVGLPages+"` marker (recommended) and no obvious `pages:` key was found.")
	}
	var parsed any
	if err := yaml.Unmarshal([]byte(text), &parsed); err != nil {
		issues = append(issues, "Recipe YAML parse failed: "+err.Error())
	}
	if !strings.Contains(text, "esphome:") {
		issues = append(issues, "No `esphome:` section detected (a minimal one is synthesized at compile time).")
	}
	if !strings.Contains(text, "display:") {
		issues = append(issues, "No `display:` section detected (is this a full hardware recipe?).")
	}
	if !strings.Contains(text, "touchscreen:") {
		issues = append(issues, "No `touchscreen:` section detected (touch may not be configured).")
	}
	return issues
}
