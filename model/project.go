package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Binding kinds. A binding surfaces one external Home Assistant signal into
// the compiled document.
const (
	KindBinary          = "binary"
	KindState           = "state"
	KindAttributeNumber = "attribute_number"
	KindAttributeText   = "attribute_text"
)

// Link target actions recognized by the binding compiler. Links carrying any
// other action are dropped.
const (
	ActionWidgetChecked = "widget_checked"
	ActionSliderValue   = "slider_value"
	ActionArcValue      = "arc_value"
	ActionLabelText     = "label_text"
	ActionObjHidden     = "obj_hidden"
)

// KnownLinkAction reports whether the binding compiler recognizes action.
func KnownLinkAction(action string) bool {
	switch action {
	case ActionWidgetChecked, ActionSliderValue, ActionArcValue, ActionLabelText, ActionObjHidden:
		return true
	}
	return false
}

// Project is the compiler's typed view of a device's UI design. The persisted
// record keeps the raw document (see DeviceProject.Project) so unknown fields
// survive round-trips; this view carries only what compilation reads.
type Project struct {
	ModelVersion   int             `json:"model_version"`
	Pages          []Page          `json:"pages"`
	Bindings       []Binding       `json:"bindings,omitempty"`
	Links          []Link          `json:"links,omitempty"`
	ActionBindings []ActionBinding `json:"action_bindings,omitempty"`
	Scripts        []Script        `json:"scripts,omitempty"`
	Hardware       Hardware        `json:"hardware,omitempty"`
	Advanced       Advanced        `json:"advanced,omitempty"`
}

// Page is one screen of the design. Widget order governs emission order.
type Page struct {
	PageID  string   `json:"page_id"`
	AltID   string   `json:"id,omitempty"`
	Name    string   `json:"name,omitempty"`
	Widgets []Widget `json:"widgets,omitempty"`
}

// EffectiveID returns the page identifier, tolerating documents that use the
// older "id" key, with "main" as the final fallback.
func (p Page) EffectiveID() string {
	if p.PageID != "" {
		return p.PageID
	}
	if p.AltID != "" {
		return p.AltID
	}
	return "main"
}

// Coord is an integer geometry value that tolerates fractional JSON input
// (design surfaces report drag positions as floats); fractions truncate.
type Coord int

// UnmarshalJSON accepts any JSON number, truncating toward zero.
func (c *Coord) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*c = Coord(int(f))
	return nil
}

// Widget is a single UI node. Geometry fields are pointers because each is
// independently optional: absent fields are not emitted.
type Widget struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	X        *Coord         `json:"x,omitempty"`
	Y        *Coord         `json:"y,omitempty"`
	W        *Coord         `json:"w,omitempty"`
	H        *Coord         `json:"h,omitempty"`
	ParentID string         `json:"parent_id,omitempty"`
	Props    map[string]any `json:"props,omitempty"`
	Style    map[string]any `json:"style,omitempty"`
	Events   map[string]any `json:"events,omitempty"`

	// Parts holds schema-defined nested styling sections (knob, indicator,
	// ...). Populated from any object-valued widget key that is not one of
	// the fixed fields above.
	Parts map[string]map[string]any `json:"-"`
}

// widgetKnownKeys are the fixed Widget fields; everything else that carries an
// object value is treated as a part section.
var widgetKnownKeys = map[string]bool{
	"id": true, "type": true, "x": true, "y": true, "w": true, "h": true,
	"parent_id": true, "props": true, "style": true, "events": true,
}

// UnmarshalJSON decodes the fixed fields and collects part sections. Numbers
// decode as json.Number so "2.0" and "2" stay distinguishable in emitted
// output.
func (w *Widget) UnmarshalJSON(data []byte) error {
	type plain Widget
	var p plain
	if err := decodeNumeric(data, &p); err != nil {
		return err
	}
	*w = Widget(p)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if widgetKnownKeys[k] {
			continue
		}
		var section map[string]any
		if err := decodeNumeric(v, &section); err != nil {
			continue
		}
		if w.Parts == nil {
			w.Parts = make(map[string]map[string]any)
		}
		w.Parts[k] = section
	}
	return nil
}

func decodeNumeric(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// Binding declares an external signal to mirror into the device.
type Binding struct {
	EntityID  string `json:"entity_id"`
	Kind      string `json:"kind,omitempty"`
	Attribute string `json:"attribute,omitempty"`
}

// Valid reports whether the binding carries a usable entity id. Entity ids
// must contain a domain separator.
func (b Binding) Valid() bool {
	eid := strings.TrimSpace(b.EntityID)
	return eid != "" && strings.Contains(eid, ".")
}

// NormalKind returns the binding kind with the default applied.
func (b Binding) NormalKind() string {
	if b.Kind == "" {
		return KindState
	}
	return b.Kind
}

// Link maps an external signal to a live widget mutation.
type Link struct {
	Source LinkSource `json:"source"`
	Target LinkTarget `json:"target"`
}

// LinkSource identifies the signal a link listens to.
type LinkSource struct {
	EntityID  string `json:"entity_id"`
	Kind      string `json:"kind,omitempty"`
	Attribute string `json:"attribute,omitempty"`
}

// LinkTarget identifies the widget mutation a link applies.
type LinkTarget struct {
	WidgetID      string   `json:"widget_id"`
	Action        string   `json:"action"`
	Scale         *float64 `json:"scale,omitempty"`
	Format        string   `json:"format,omitempty"`
	YAMLOverride  string   `json:"yaml_override,omitempty"`
	ConditionExpr string   `json:"condition_expr,omitempty"`
}

// Valid reports whether the link is emittable: non-empty entity id with a
// domain separator, non-empty widget id, recognized action. Surrounding
// whitespace is ignored.
func (l Link) Valid() bool {
	eid := strings.TrimSpace(l.Source.EntityID)
	if eid == "" || !strings.Contains(eid, ".") {
		return false
	}
	if strings.TrimSpace(l.Target.WidgetID) == "" {
		return false
	}
	return KnownLinkAction(strings.TrimSpace(l.Target.Action))
}

// SourceKey returns the (kind, entity_id, attribute) identity of the link's
// source, trimmed, with the kind default applied.
func (l Link) SourceKey() SignalKey {
	kind := l.Source.Kind
	if kind == "" {
		kind = KindState
	}
	return SignalKey{
		Kind:      strings.TrimSpace(kind),
		EntityID:  strings.TrimSpace(l.Source.EntityID),
		Attribute: strings.TrimSpace(l.Source.Attribute),
	}
}

// SignalKey is the identity of one bound signal.
type SignalKey struct {
	Kind      string
	EntityID  string
	Attribute string
}

// ActionBinding maps a widget event to an outbound action. Call and
// YAMLOverride are alternatives; YAMLOverride wins when both are set.
type ActionBinding struct {
	WidgetID     string      `json:"widget_id"`
	Event        string      `json:"event"`
	Call         *ActionCall `json:"call,omitempty"`
	YAMLOverride string      `json:"yaml_override,omitempty"`
}

// ActionCall is a structured outbound service call.
type ActionCall struct {
	Domain   string         `json:"domain"`
	Service  string         `json:"service"`
	EntityID string         `json:"entity_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Empty reports whether the call carries nothing at all. Absent and empty
// calls are treated alike: neither claims an event.
func (c *ActionCall) Empty() bool {
	return c == nil || (c.Domain == "" && c.Service == "" && c.EntityID == "" && len(c.Data) == 0)
}

// Script declares a stepper-style setpoint adjustment procedure.
type Script struct {
	ID        string   `json:"id"`
	EntityID  string   `json:"entity_id"`
	Direction string   `json:"direction,omitempty"`
	Step      *float64 `json:"step,omitempty"`
}

// StepOrDefault returns the step with the 0.5 default applied.
func (s Script) StepOrDefault() float64 {
	if s.Step == nil {
		return 0.5
	}
	return *s.Step
}

// Hardware selects the recipe the project compiles against.
type Hardware struct {
	RecipeID string `json:"recipe_id,omitempty"`
}

// Advanced carries user-authored YAML injected around the recipe, plus
// arbitrary named marker substitutions.
type Advanced struct {
	YAMLPre  string            `json:"yaml_pre,omitempty"`
	YAMLPost string            `json:"yaml_post,omitempty"`
	Markers  map[string]string `json:"markers,omitempty"`
}

// DecodeProject builds the typed compile view from a raw project document.
// Unknown fields are ignored here; the persisted record keeps them.
func DecodeProject(raw map[string]any) (*Project, error) {
	if raw == nil {
		return &Project{}, nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("project: encode raw document: %w", err)
	}
	var p Project
	if err := decodeNumeric(buf, &p); err != nil {
		return nil, fmt.Errorf("project: decode document: %w", err)
	}
	return &p, nil
}

// Validate applies the model checks the compiler insists on before emission:
// unique widget ids within a page and acyclic parent chains. Violations are
// rejected rather than compiled into undefined output.
func (p *Project) Validate() error {
	var details []FieldError
	for pi, page := range p.Pages {
		seen := make(map[string]bool, len(page.Widgets))
		byID := make(map[string]*Widget, len(page.Widgets))
		for wi := range page.Widgets {
			w := &page.Widgets[wi]
			if w.ID == "" {
				continue
			}
			if seen[w.ID] {
				details = append(details, FieldError{
					Field:   fmt.Sprintf("pages[%d].widgets[%d].id", pi, wi),
					Code:    "duplicate",
					Message: fmt.Sprintf("widget id %q appears more than once on page %q", w.ID, page.PageID),
				})
				continue
			}
			seen[w.ID] = true
			byID[w.ID] = w
		}
		for wi := range page.Widgets {
			w := &page.Widgets[wi]
			if w.ID == "" || w.ParentID == "" {
				continue
			}
			if cyclicParent(w, byID) {
				details = append(details, FieldError{
					Field:   fmt.Sprintf("pages[%d].widgets[%d].parent_id", pi, wi),
					Code:    "cycle",
					Message: fmt.Sprintf("widget %q participates in a parent cycle on page %q", w.ID, page.PageID),
				})
			}
		}
	}
	if len(details) > 0 {
		return NewValidationError(details)
	}
	return nil
}

func cyclicParent(w *Widget, byID map[string]*Widget) bool {
	visited := map[string]bool{w.ID: true}
	cur := w
	for cur.ParentID != "" {
		next, ok := byID[cur.ParentID]
		if !ok {
			return false
		}
		if visited[next.ID] {
			return true
		}
		visited[next.ID] = true
		cur = next
	}
	return false
}

// Clone returns a deep copy of the project. Compilation passes that rewrite
// widget properties operate on a clone so the stored project is never
// mutated.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Pages = make([]Page, len(p.Pages))
	for i, pg := range p.Pages {
		cp.Pages[i] = pg
		cp.Pages[i].Widgets = make([]Widget, len(pg.Widgets))
		for j, w := range pg.Widgets {
			cw := w
			cw.Props = copyAnyMap(w.Props)
			cw.Style = copyAnyMap(w.Style)
			cw.Events = copyAnyMap(w.Events)
			if w.Parts != nil {
				cw.Parts = make(map[string]map[string]any, len(w.Parts))
				for part, fields := range w.Parts {
					cw.Parts[part] = copyAnyMap(fields)
				}
			}
			cp.Pages[i].Widgets[j] = cw
		}
	}
	cp.Bindings = append([]Binding(nil), p.Bindings...)
	cp.Links = append([]Link(nil), p.Links...)
	cp.ActionBindings = append([]ActionBinding(nil), p.ActionBindings...)
	cp.Scripts = append([]Script(nil), p.Scripts...)
	if p.Advanced.Markers != nil {
		cp.Advanced.Markers = make(map[string]string, len(p.Advanced.Markers))
		for k, v := range p.Advanced.Markers {
			cp.Advanced.Markers[k] = v
		}
	}
	return &cp
}

func copyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyAnyValue(v)
	}
	return out
}

func copyAnyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return copyAnyMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = copyAnyValue(item)
		}
		return out
	default:
		return v
	}
}
