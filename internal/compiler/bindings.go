package compiler

import (
	"sort"
	"strings"

	"github.com/panelsmith/panelsmith/model"
)

// listener is one homeassistant platform entry derived from a binding.
type listener struct {
	ID        string
	EntityID  string
	Kind      string
	Attribute string
}

// compileBindings renders the homeassistant listener sections: text_sensor,
// sensor, binary_sensor, in that order. Each listener carries the guarded
// widget updates for every link whose source matches it.
func (c *Compiler) compileBindings(p *model.Project) string {
	linkIdx := linkIndex(p.Links)

	var textSensors, sensors, binarySensors []listener

	sorted := make([]model.Binding, len(p.Bindings))
	copy(sorted, p.Bindings)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.NormalKind() != b.NormalKind() {
			return a.NormalKind() < b.NormalKind()
		}
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		return a.Attribute < b.Attribute
	})

	for _, bnd := range sorted {
		if !bnd.Valid() {
			continue
		}
		eid := strings.TrimSpace(bnd.EntityID)
		base := SafeID(eid)
		attr := strings.TrimSpace(bnd.Attribute)
		switch bnd.NormalKind() {
		case model.KindBinary:
			binarySensors = append(binarySensors, listener{
				ID: "ha_bin_" + base, EntityID: eid, Kind: model.KindBinary,
			})
		case model.KindAttributeNumber:
			sensors = append(sensors, listener{
				ID: "ha_num_" + base + "_" + safeAttr(attr), EntityID: eid,
				Kind: model.KindAttributeNumber, Attribute: attr,
			})
		case model.KindAttributeText:
			textSensors = append(textSensors, listener{
				ID: "ha_txt_" + base + "_" + safeAttr(attr), EntityID: eid,
				Kind: model.KindAttributeText, Attribute: attr,
			})
		default:
			textSensors = append(textSensors, listener{
				ID: "ha_state_" + base, EntityID: eid, Kind: model.KindState,
			})
		}
	}

	var b strings.Builder
	emitListenerSection(&b, "text_sensor", textSensors, linkIdx, false)
	emitListenerSection(&b, "sensor", sensors, linkIdx, false)
	emitListenerSection(&b, "binary_sensor", binarySensors, linkIdx, true)

	out := b.String()
	if strings.TrimSpace(out) == "" {
		return ""
	}
	return strings.TrimRight(out, " \t\n") + "\n"
}

func safeAttr(attr string) string {
	if attr == "" {
		return "attr"
	}
	return SafeID(attr)
}

// linkIndex groups emittable links by their source signal identity.
func linkIndex(links []model.Link) map[model.SignalKey][]model.Link {
	idx := make(map[model.SignalKey][]model.Link)
	for _, ln := range links {
		if !ln.Valid() {
			continue
		}
		key := ln.SourceKey()
		idx[key] = append(idx[key], ln)
	}
	return idx
}

func emitListenerSection(b *strings.Builder, section string, items []listener, linkIdx map[model.SignalKey][]model.Link, binary bool) {
	if len(items) == 0 {
		return
	}
	trigger := "on_value"
	if binary {
		trigger = "on_state"
	}
	b.WriteString(section + ":\n")
	for _, it := range items {
		b.WriteString("  - platform: homeassistant\n")
		b.WriteString("    id: " + it.ID + "\n")
		b.WriteString("    entity_id: " + it.EntityID + "\n")
		if it.Attribute != "" {
			b.WriteString("    attribute: " + it.Attribute + "\n")
		}
		if binary {
			b.WriteString("    publish_initial_state: true\n")
		}
		updates := emitLinkUpdates(linkIdx, it.Kind, it.EntityID, it.Attribute)
		if updates == "" {
			continue
		}
		b.WriteString("    " + trigger + ":\n")
		b.WriteString("      then:\n")
		b.WriteString(indentBlock(updates, "  "))
	}
}

// emitLinkUpdates renders the guarded mutation blocks for every link bound to
// the given signal. Each update is gated on the global lock, the per-entity
// lock, and the per-(entity,widget) lock all having expired, so outbound
// calls never rubber-band the control that issued them.
func emitLinkUpdates(linkIdx map[model.SignalKey][]model.Link, kind, entityID, attribute string) string {
	targets := linkIdx[model.SignalKey{Kind: kind, EntityID: entityID, Attribute: attribute}]
	if len(targets) == 0 {
		return ""
	}

	sid := SlugifyEntityID(entityID)
	var b strings.Builder
	for _, ln := range targets {
		tgt := ln.Target
		wid := strings.TrimSpace(tgt.WidgetID)
		widSafe := SafeID(wid)

		b.WriteString("            - if:\n")
		b.WriteString("                condition:\n")
		b.WriteString("                  lambda: return (millis() > id(ps_ui_lock_until)) && (millis() > id(ps_lock_" + sid + ")) && (millis() > id(ps_lock_" + sid + "_" + widSafe + "));\n")
		b.WriteString("                then:\n")

		if override := strings.TrimSpace(tgt.YAMLOverride); override != "" {
			for _, line := range splitLines(override) {
				b.WriteString("                  " + line + "\n")
			}
			continue
		}

		switch strings.TrimSpace(tgt.Action) {
		case model.ActionWidgetChecked:
			b.WriteString("                  - lvgl.widget.update:\n")
			b.WriteString("                      id: " + wid + "\n")
			b.WriteString("                      state:\n")
			b.WriteString("                        checked: !lambda return x;\n")
		case model.ActionSliderValue:
			b.WriteString("                  - lvgl.slider.update:\n")
			b.WriteString("                      id: " + wid + "\n")
			b.WriteString("                      value: " + scaledValueLambda(tgt.Scale) + "\n")
		case model.ActionArcValue:
			b.WriteString("                  - lvgl.arc.update:\n")
			b.WriteString("                      id: " + wid + "\n")
			b.WriteString("                      value: " + scaledValueLambda(tgt.Scale) + "\n")
		case model.ActionLabelText:
			b.WriteString("                  - lvgl.label.update:\n")
			b.WriteString("                      id: " + wid + "\n")
			if kind == model.KindState || kind == model.KindAttributeText {
				b.WriteString("                      text: !lambda return x;\n")
			} else {
				format := tgt.Format
				if format == "" {
					format = "%.0f"
				}
				b.WriteString("                      text:\n")
				b.WriteString("                        format: " + jsonQuote(format) + "\n")
				b.WriteString("                        args: [ 'x' ]\n")
			}
		case model.ActionObjHidden:
			b.WriteString("                  - lvgl.obj.update:\n")
			b.WriteString("                      id: " + wid + "\n")
			if expr := strings.TrimSpace(tgt.ConditionExpr); expr != "" {
				b.WriteString("                      hidden: !lambda return !(" + expr + ");\n")
			} else {
				b.WriteString("                      hidden: !lambda return !(x);\n")
			}
		}
	}
	return b.String()
}

func scaledValueLambda(scale *float64) string {
	if scale != nil && *scale != 1.0 {
		return "!lambda return (x * " + formatFloat(*scale) + ");"
	}
	return "!lambda return x;"
}

// indentBlock prefixes every non-empty line of s. Empty lines stay empty so
// indentation never trails into them.
func indentBlock(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	var b strings.Builder
	for _, ln := range lines {
		if ln == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString(prefix + ln + "\n")
	}
	return b.String()
}
