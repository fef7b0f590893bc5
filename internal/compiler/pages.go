package compiler

import (
	"strings"

	"github.com/panelsmith/panelsmith/model"
)

// compilePages renders the project's pages as the fragment spliced into the
// recipe's lvgl section. Containment comes from parent_id references: roots
// emit in page order, children nest under their parent's widgets block.
func (c *Compiler) compilePages(p *model.Project) string {
	pages := p.Pages
	if len(pages) == 0 {
		pages = []model.Page{{PageID: "main", Name: "Main"}}
	}

	byWidget := actionBindingsByWidget(p.ActionBindings)

	var b strings.Builder
	b.WriteString("  pages:\n")
	for pi := range pages {
		page := &pages[pi]
		b.WriteString("    - id: " + page.EffectiveID() + "\n")
		if page.Name != "" {
			b.WriteString("      name: " + jsonQuote(page.Name) + "\n")
		}
		b.WriteString("      widgets:\n")

		children := childIndex(page.Widgets)
		for wi := range page.Widgets {
			w := &page.Widgets[wi]
			if w.ParentID != "" {
				continue
			}
			c.emitWidgetTree(&b, w, children, byWidget, "        ")
		}
	}
	return b.String()
}

// emitWidgetTree writes one widget and recurses into its children. Widgets in
// a parent cycle are unreachable from any root and simply never emit; model
// validation rejects such projects before compilation gets here.
func (c *Compiler) emitWidgetTree(b *strings.Builder, w *model.Widget, children map[string][]*model.Widget, byWidget map[string][]model.ActionBinding, indent string) {
	schema := c.loadSchema(w.Type)
	if schema != nil {
		b.WriteString(c.emitWidget(w, schema, byWidget[w.ID], indent))
	} else {
		b.WriteString(emitGenericWidget(w, indent))
	}

	kids := children[w.ID]
	if len(kids) == 0 {
		return
	}
	b.WriteString(indent + "    widgets:\n")
	for _, child := range kids {
		c.emitWidgetTree(b, child, children, byWidget, indent+"      ")
	}
}

// childIndex maps parent ids to their children, preserving list order.
func childIndex(widgets []model.Widget) map[string][]*model.Widget {
	idx := make(map[string][]*model.Widget)
	for i := range widgets {
		w := &widgets[i]
		if w.ParentID == "" {
			continue
		}
		idx[w.ParentID] = append(idx[w.ParentID], w)
	}
	return idx
}

func actionBindingsByWidget(bindings []model.ActionBinding) map[string][]model.ActionBinding {
	if len(bindings) == 0 {
		return nil
	}
	idx := make(map[string][]model.ActionBinding)
	for _, ab := range bindings {
		wid := strings.TrimSpace(ab.WidgetID)
		if wid == "" {
			continue
		}
		idx[wid] = append(idx[wid], ab)
	}
	return idx
}
