package compiler

import (
	"strings"

	"github.com/panelsmith/panelsmith/model"
)

// compileScripts renders the step helper scripts. Entries without an id or
// without a dotted entity_id are dropped.
func (c *Compiler) compileScripts(p *model.Project) string {
	var b strings.Builder
	for _, s := range p.Scripts {
		sid := strings.TrimSpace(s.ID)
		eid := strings.TrimSpace(s.EntityID)
		if sid == "" || !strings.Contains(eid, ".") {
			continue
		}
		direction := strings.ToLower(strings.TrimSpace(s.Direction))
		if direction == "" {
			direction = "inc"
		}
		op := "-"
		if direction == "inc" {
			op = "+"
		}
		safe := SafeID(eid)
		b.WriteString("  - id: " + sid + "\n")
		b.WriteString("    then:\n")
		b.WriteString("      - homeassistant.action:\n")
		b.WriteString("          action: climate.set_temperature\n")
		b.WriteString("          data:\n")
		b.WriteString("            entity_id: " + jsonQuote(eid) + "\n")
		b.WriteString("            temperature: !lambda 'return id(ha_num_" + safe + "_temperature).state " + op + " " + formatFloat(s.StepOrDefault()) + "f;'\n")
	}
	if b.Len() == 0 {
		return ""
	}
	return "script:\n" + b.String()
}

// patchSafetyStub appends a no-op definition of the sleep management script
// when the merged document references it but nothing defines it. Recipes for
// battery panels call the script from boot hooks; a reference without a
// definition fails ESPHome validation outright.
func patchSafetyStub(merged, scriptsBlock string) string {
	if !strings.Contains(merged, SafetyStubScriptID) {
		return scriptsBlock
	}
	definition := "id: " + SafetyStubScriptID
	if strings.Contains(scriptsBlock, definition) || strings.Contains(merged, definition) {
		return scriptsBlock
	}
	stub := "  - id: " + SafetyStubScriptID + "\n    then:\n      - delay: 1ms\n"
	if strings.TrimSpace(scriptsBlock) == "" {
		return "script:\n" + stub
	}
	return strings.TrimRight(scriptsBlock, " \t\n") + "\n" + stub
}
