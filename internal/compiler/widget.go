package compiler

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/panelsmith/panelsmith/model"
)

// hardenedEvents are the high-frequency interaction hooks that get
// loop-avoidance locks and a settle delay injected around outbound calls.
// A dragged slider can otherwise flood the bus and rubber-band itself when
// the resulting state updates echo back.
var hardenedEvents = map[string]bool{
	"on_value":   true,
	"on_press":   true,
	"on_release": true,
}

var eventEntityIDRe = regexp.MustCompile(`(?m)^\s*entity_id:\s*([A-Za-z0-9_]+\.[A-Za-z0-9_]+)\s*$`)

// emitWidget renders one widget under a list dash at the given indent. Config
// keys nest under the root key; children are appended by the page compiler.
func (c *Compiler) emitWidget(w *model.Widget, schema *model.WidgetSchema, bindings []model.ActionBinding, indent string) string {
	rootKey := schema.Emit.RootKey
	if rootKey == "" {
		rootKey = w.Type
	}
	if rootKey == "" {
		rootKey = schema.Type
	}
	fieldInd := indent + "    "

	var b strings.Builder
	b.WriteString(indent + "- " + rootKey + ":\n")

	wid := w.ID
	if wid == "" {
		wid = "w"
	}
	b.WriteString(fieldInd + "id: " + wid + "\n")
	for _, g := range [4]struct {
		val *model.Coord
		key string
	}{{w.X, "x"}, {w.Y, "y"}, {w.W, "width"}, {w.H, "height"}} {
		if g.val != nil {
			b.WriteString(fieldInd + g.key + ": " + strconv.Itoa(int(*g.val)) + "\n")
		}
	}

	overrides, overrideOrder := eventOverrides(bindings)

	for _, section := range [3]string{"props", "style", "events"} {
		var fields model.FieldSet
		switch section {
		case "props":
			fields = schema.Props
		case "style":
			fields = schema.Style
		case "events":
			fields = schema.Events
		}
		remap := schema.Emit.SectionRemap(section)

		values := sectionValues(w, section)
		if section == "events" {
			// Action bindings take precedence over the widget's own event
			// text. A binding whose call is unusable still claims the event,
			// blanking whatever the widget declared.
			for event, ab := range overrides {
				if ab.YAMLOverride != "" {
					values[event] = ab.YAMLOverride
				} else if !ab.Call.Empty() {
					values[event] = actionCallYAML(ab.Call)
				}
			}
		}

		for _, name := range fields.Names() {
			def, _ := fields.Get(name)
			yamlKey := name
			if mapped, ok := remap[name]; ok {
				yamlKey = mapped
			}
			if v, ok := values[name]; ok && v != nil && v != "" {
				if section == "events" {
					v = c.hardenEvent(yamlKey, v, wid)
				}
				emitKV(&b, fieldInd, yamlKey, v)
				continue
			}
			if def.CompilerEmitDefault && def.Default != nil {
				emitKV(&b, fieldInd, yamlKey, def.Default)
			}
		}

		// Override events the schema does not declare still emit, after the
		// schema-driven ones.
		if section == "events" {
			for _, event := range overrideOrder {
				if _, declared := fields.Get(event); declared {
					continue
				}
				ab := overrides[event]
				var v string
				switch {
				case ab.YAMLOverride != "":
					v = ab.YAMLOverride
				case !ab.Call.Empty():
					v = actionCallYAML(ab.Call)
				default:
					continue
				}
				yamlKey := event
				if mapped, ok := schema.Emit.Events[event]; ok && mapped != "" {
					yamlKey = mapped
				}
				emitKV(&b, fieldInd, yamlKey, c.hardenEvent(yamlKey, v, wid))
			}
		}
	}

	// Schema-defined part sections (knob, indicator, ...) nest as blocks when
	// the widget supplies values for them. No remapping, no defaults.
	partInd := fieldInd + "  "
	for _, part := range schema.Parts {
		values := w.Parts[part.Name]
		if len(values) == 0 {
			continue
		}
		b.WriteString(fieldInd + part.Name + ":\n")
		for _, name := range part.Fields.Names() {
			if v, ok := values[name]; ok && v != nil && v != "" {
				emitKV(&b, partInd, name, v)
			}
		}
	}

	return b.String()
}

// emitGenericWidget is the no-schema fallback: a container with geometry
// defaults and nothing else.
func emitGenericWidget(w *model.Widget, indent string) string {
	fieldInd := indent + "    "
	var b strings.Builder
	wid := w.ID
	if wid == "" {
		wid = "w"
	}
	b.WriteString(indent + "- container:\n")
	b.WriteString(fieldInd + "id: " + wid + "\n")
	b.WriteString(fieldInd + "x: " + strconv.Itoa(coordOr(w.X, 0)) + "\n")
	b.WriteString(fieldInd + "y: " + strconv.Itoa(coordOr(w.Y, 0)) + "\n")
	b.WriteString(fieldInd + "width: " + strconv.Itoa(coordOr(w.W, 100)) + "\n")
	b.WriteString(fieldInd + "height: " + strconv.Itoa(coordOr(w.H, 50)) + "\n")
	return b.String()
}

func coordOr(c *model.Coord, fallback int) int {
	if c == nil {
		return fallback
	}
	return int(*c)
}

func sectionValues(w *model.Widget, section string) map[string]any {
	var src map[string]any
	switch section {
	case "props":
		src = w.Props
	case "style":
		src = w.Style
	case "events":
		src = w.Events
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// eventOverrides indexes a widget's action bindings by event name. Later
// bindings for the same event win; order records first appearance so
// unscheduled events emit deterministically.
func eventOverrides(bindings []model.ActionBinding) (map[string]model.ActionBinding, []string) {
	byEvent := make(map[string]model.ActionBinding)
	var order []string
	for _, ab := range bindings {
		if ab.Event == "" {
			continue
		}
		if _, seen := byEvent[ab.Event]; !seen {
			order = append(order, ab.Event)
		}
		byEvent[ab.Event] = ab
	}
	return byEvent, order
}

// actionCallYAML renders a structured outbound call as the event fragment the
// emitter nests under the event key.
func actionCallYAML(call *model.ActionCall) string {
	domain := strings.TrimSpace(call.Domain)
	service := strings.TrimSpace(call.Service)
	if domain == "" || service == "" {
		return ""
	}
	lines := []string{
		"then:",
		"  - homeassistant.action:",
		"      action: " + domain + "." + service,
		"      data:",
	}
	if call.EntityID != "" {
		lines = append(lines, "        entity_id: "+jsonQuote(call.EntityID))
	}
	dataKeys := make([]string, 0, len(call.Data))
	for k := range call.Data {
		dataKeys = append(dataKeys, k)
	}
	sort.Strings(dataKeys)
	for _, k := range dataKeys {
		v := call.Data[k]
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.HasPrefix(strings.TrimSpace(s), "!lambda") {
			lines = append(lines, "        "+k+": "+strings.TrimSpace(s))
		} else {
			lines = append(lines, "        "+k+": "+scalarLiteral(v))
		}
	}
	if call.EntityID == "" && len(call.Data) == 0 {
		lines = append(lines, "        {}")
	}
	return strings.Join(lines, "\n")
}

// hardenEvent injects loop-avoidance locks and a settle delay into an event
// fragment that issues an outbound call. The locks pause inbound updates for
// the touched entity (and this widget specifically) long enough for the echo
// to pass; the delay collapses bursts from continuous controls.
func (c *Compiler) hardenEvent(yamlKey string, value any, widgetID string) any {
	v, ok := value.(string)
	if !ok {
		return value
	}
	if !hardenedEvents[yamlKey] {
		return value
	}
	if !strings.Contains(v, "homeassistant.action") || strings.Contains(v, "delay") {
		return value
	}

	lockLines := []string{"  - lambda: id(ps_ui_lock_until) = millis() + 500;"}
	if m := eventEntityIDRe.FindStringSubmatch(v); m != nil {
		sid := SlugifyEntityID(m[1])
		lockLines = append(lockLines,
			"  - lambda: id(ps_lock_"+sid+") = millis() + 500;",
			"  - lambda: id(ps_lock_"+sid+"_"+SafeID(widgetID)+") = millis() + 500;",
		)
	}

	var out []string
	inserted := false
	for _, ln := range splitLines(v) {
		out = append(out, ln)
		if !inserted && strings.TrimSpace(ln) == "then:" {
			out = append(out, lockLines...)
			out = append(out, "  - delay: 150ms")
			inserted = true
		}
	}
	return strings.Join(out, "\n")
}
