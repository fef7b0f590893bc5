package compiler

import (
	"sort"
	"strings"

	"github.com/panelsmith/panelsmith/model"
)

type lockPair struct {
	EntityID   string
	WidgetSafe string
}

// compileLockGlobals renders the globals block backing the echo suppression
// locks: one UI-wide lock, one per bound entity, and one per
// (entity, widget) link pair. Links contribute pairs even when their action
// is unknown, so a stale link never leaves a hardened event referencing an
// undeclared global.
func (c *Compiler) compileLockGlobals(p *model.Project) string {
	entitySet := make(map[string]struct{})
	for _, bnd := range p.Bindings {
		eid := strings.TrimSpace(bnd.EntityID)
		if eid == "" || !strings.Contains(eid, ".") {
			continue
		}
		entitySet[eid] = struct{}{}
	}

	pairSet := make(map[lockPair]struct{})
	for _, ln := range p.Links {
		eid := strings.TrimSpace(ln.Source.EntityID)
		if eid == "" || !strings.Contains(eid, ".") {
			continue
		}
		wid := strings.TrimSpace(ln.Target.WidgetID)
		if wid == "" {
			continue
		}
		pairSet[lockPair{EntityID: eid, WidgetSafe: SafeID(wid)}] = struct{}{}
	}

	entities := make([]string, 0, len(entitySet))
	for eid := range entitySet {
		entities = append(entities, eid)
	}
	sort.Strings(entities)

	pairs := make([]lockPair, 0, len(pairSet))
	for pr := range pairSet {
		pairs = append(pairs, pr)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].EntityID != pairs[j].EntityID {
			return pairs[i].EntityID < pairs[j].EntityID
		}
		return pairs[i].WidgetSafe < pairs[j].WidgetSafe
	})

	var b strings.Builder
	b.WriteString("globals:\n")
	writeLockGlobal(&b, "ps_ui_lock_until")
	for _, eid := range entities {
		writeLockGlobal(&b, "ps_lock_"+SlugifyEntityID(eid))
	}
	for _, pr := range pairs {
		writeLockGlobal(&b, "ps_lock_"+SlugifyEntityID(pr.EntityID)+"_"+pr.WidgetSafe)
	}
	b.WriteString("\n")
	return b.String()
}

func writeLockGlobal(b *strings.Builder, id string) {
	b.WriteString("  - id: " + id + "\n")
	b.WriteString("    type: uint32_t\n")
	b.WriteString("    restore_value: no\n")
	b.WriteString("    initial_value: '0'\n")
}
