package compiler

import (
	"regexp"
	"sort"
	"strings"

	"github.com/panelsmith/panelsmith/model"
)

var esphomeStartRe = regexp.MustCompile(`^\x{FEFF}?\s*esphome:`)

// rstrip trims trailing whitespace the way the assembler normalizes every
// section before re-joining.
func rstrip(s string) string {
	return strings.TrimRight(s, " \t\r\n\v\f")
}

// splitESPHomeBlock splits recipe text into its esphome block and everything
// else. The block starts at the first contentful line opening the esphome
// mapping (BOM and indentation tolerated) and runs until the next top-level
// key. The remainder is returned trimmed. When no block exists the text comes
// back untouched as the remainder.
func splitESPHomeBlock(text string) (string, string) {
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}
		if esphomeStartRe.MatchString(line) {
			start = i
			break
		}
	}
	if start < 0 {
		return "", text
	}
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		line := lines[i]
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}
		if len(line) == len(strings.TrimLeft(line, " \t\v\f\r")) && strings.Contains(line, ":") {
			end = i
			break
		}
	}
	block := strings.Join(lines[start:end], "\n")
	rest := strings.TrimSpace(strings.Join(lines[end:], "\n"))
	return block, rest
}

// applyUserInjection splices the project's user-authored YAML into the recipe
// text. Pre content replaces its marker when present, otherwise it is
// prepended; post content replaces its marker when present, otherwise it is
// appended. Empty content strips the standard markers. Named markers are
// replaced only where they occur.
func applyUserInjection(text string, adv model.Advanced) string {
	if pre := adv.YAMLPre; pre != "" {
		if strings.Contains(text, MarkerUserYAMLPre) {
			text = strings.ReplaceAll(text, MarkerUserYAMLPre, rstrip(pre))
		} else {
			text = rstrip(pre) + "\n\n" + text
		}
	} else {
		text = strings.ReplaceAll(text, MarkerUserYAMLPre, "")
	}

	if post := adv.YAMLPost; post != "" {
		if strings.Contains(text, MarkerUserYAMLPost) {
			text = strings.ReplaceAll(text, MarkerUserYAMLPost, rstrip(post))
		} else {
			text = rstrip(text) + "\n\n" + rstrip(post) + "\n"
		}
	} else {
		text = strings.ReplaceAll(text, MarkerUserYAMLPost, "")
	}

	names := make([]string, 0, len(adv.Markers))
	for name := range adv.Markers {
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		text = strings.ReplaceAll(text, "#__"+name+"__", rstrip(adv.Markers[name]))
	}
	return text
}

// injectBindings places the listener sections at their marker, or appends
// them when the recipe has no marker and there is anything to add.
func injectBindings(text, bindingsYAML string) string {
	if strings.Contains(text, MarkerHABindings) {
		return strings.ReplaceAll(text, MarkerHABindings, rstrip(bindingsYAML))
	}
	if strings.TrimSpace(bindingsYAML) == "" {
		return text
	}
	return rstrip(text) + "\n\n" + rstrip(bindingsYAML) + "\n"
}

// injectPages places the compiled pages fragment at its marker, or appends it.
func injectPages(text, pagesYAML string) string {
	if strings.Contains(text, MarkerLVGLPages) {
		return strings.ReplaceAll(text, MarkerLVGLPages, rstrip(pagesYAML))
	}
	return rstrip(text) + "\n\n" + pagesYAML
}

// hasTopLevelKey reports whether text declares key at the top level.
func hasTopLevelKey(text, key string) bool {
	if strings.Contains("\n"+text, "\n"+key+":") {
		return true
	}
	return strings.HasPrefix(strings.TrimSpace(text), key+":")
}

func defaultWifiYAML() string {
	return `wifi:
  networks:
    - ssid: !secret wifi_ssid
      password: !secret wifi_password
  ap:
    ssid: "Fallback"
    password: "12345678"
`
}

func defaultOTAYAML() string {
	return `ota:
  - platform: esphome
`
}
