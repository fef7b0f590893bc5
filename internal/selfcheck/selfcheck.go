// Package selfcheck runs the built-in verification suite: recipe discovery,
// compile determinism on representative projects, placeholder closure, merge
// invariants, and lock-name stability. A run writes nothing; it exists so a
// user can confirm the installation is sound before trusting it with their
// ESPHome directory.
package selfcheck

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/panelsmith/panelsmith/internal/compiler"
	"github.com/panelsmith/panelsmith/internal/merge"
	"github.com/panelsmith/panelsmith/model"
)

// RecipeSource is the recipe access the verification suite needs.
type RecipeSource interface {
	List(ctx context.Context) []model.RecipeInfo
	Text(ctx context.Context, id string) (string, error)
}

// Runner executes the verification suite against live collaborators.
type Runner struct {
	compiler *compiler.Compiler
	recipes  RecipeSource
	version  string
	log      *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(comp *compiler.Compiler, recipes RecipeSource, version string, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{compiler: comp, recipes: recipes, version: version, log: log}
}

// Run executes every check and reports the outcomes.
func (r *Runner) Run(ctx context.Context) model.SelfCheckReport {
	results := []model.SelfCheckResult{r.checkRecipeDiscovery(ctx)}
	for _, s := range samples() {
		results = append(results, r.checkCompileDeterminism(ctx, s))
	}
	results = append(results,
		r.checkPlaceholderClosure(ctx),
		checkMergeAppend(),
		checkMergeSplice(),
		checkMarkerDetection(),
		r.checkLockNameStability(ctx),
	)

	ok := true
	for _, res := range results {
		ok = ok && res.OK
		if !res.OK {
			r.log.Warn("self-check failed",
				zap.String("check", res.Name),
				zap.String("error", res.Error))
		}
	}
	return model.SelfCheckReport{OK: ok, Version: r.version, Results: results}
}

type sample struct {
	name   string
	device *model.DeviceProject
}

func samples() []sample {
	return []sample{
		{name: "basic_label", device: sampleBasicLabel()},
		{name: "bound_switch", device: sampleBoundSwitch()},
	}
}

// sampleBasicLabel is a one-page, one-label project in the shape the designer
// saves.
func sampleBasicLabel() *model.DeviceProject {
	return &model.DeviceProject{
		DeviceID: "selfcheck_basic_label",
		Slug:     "selfcheck_basic_label",
		Name:     "SelfCheck basic label",
		Project: map[string]any{
			"model_version": 1,
			"hardware":      map[string]any{"recipe_id": model.DefaultRecipeID},
			"pages": []any{map[string]any{
				"page_id": "main",
				"name":    "Main",
				"widgets": []any{map[string]any{
					"id":   "lbl1",
					"type": "label",
					"x":    10, "y": 10, "w": 120, "h": 32,
					"props": map[string]any{"text": "Hello"},
				}},
			}},
		},
	}
}

// sampleBoundSwitch carries a binding and a link so the compile exercises the
// echo-suppression lock emission.
func sampleBoundSwitch() *model.DeviceProject {
	return &model.DeviceProject{
		DeviceID: "selfcheck_bound_switch",
		Slug:     "selfcheck_bound_switch",
		Name:     "SelfCheck bound switch",
		Project: map[string]any{
			"model_version": 1,
			"hardware":      map[string]any{"recipe_id": model.DefaultRecipeID},
			"pages": []any{map[string]any{
				"page_id": "main",
				"name":    "Main",
				"widgets": []any{map[string]any{
					"id":   "sw1",
					"type": "switch",
					"x":    10, "y": 10, "w": 80, "h": 40,
				}},
			}},
			"bindings": []any{
				map[string]any{"entity_id": "light.kitchen", "kind": "binary"},
			},
			"links": []any{map[string]any{
				"source": map[string]any{"entity_id": "light.kitchen", "kind": "binary"},
				"target": map[string]any{"widget_id": "sw1", "action": "widget_checked"},
			}},
		},
	}
}

func (r *Runner) checkRecipeDiscovery(ctx context.Context) model.SelfCheckResult {
	const name = "recipes_list"
	infos := r.recipes.List(ctx)
	detail := map[string]any{"count": len(infos)}
	if len(infos) > 0 {
		detail["first"] = infos[0].ID
	}
	return model.SelfCheckResult{Name: name, OK: len(infos) > 0, Detail: detail}
}

func (r *Runner) checkCompileDeterminism(ctx context.Context, s sample) model.SelfCheckResult {
	name := "compile_determinism:" + s.name
	doc1, err := r.compileSample(ctx, s.device)
	if err != nil {
		return model.SelfCheckResult{Name: name, Error: err.Error()}
	}
	doc2, err := r.compileSample(ctx, s.device)
	if err != nil {
		return model.SelfCheckResult{Name: name, Error: err.Error()}
	}
	identical := doc1 == doc2
	return model.SelfCheckResult{
		Name:   name,
		OK:     identical && strings.TrimSpace(doc1) != "",
		Detail: map[string]any{"bytes": len(doc1), "identical": identical},
	}
}

func (r *Runner) checkPlaceholderClosure(ctx context.Context) model.SelfCheckResult {
	const name = "placeholder_closure"
	doc, err := r.compileSample(ctx, sampleBasicLabel())
	if err != nil {
		return model.SelfCheckResult{Name: name, Error: err.Error()}
	}
	leftover := leftoverTokens(doc)
	res := model.SelfCheckResult{Name: name, OK: len(leftover) == 0}
	if len(leftover) > 0 {
		res.Detail = map[string]any{"leftover": leftover}
	}
	return res
}

func (r *Runner) compileSample(ctx context.Context, device *model.DeviceProject) (string, error) {
	text, err := r.recipes.Text(ctx, device.EffectiveRecipeID())
	if err != nil {
		return "", err
	}
	return r.compiler.Compile(ctx, device, text)
}

// leftoverTokens reports which substitution tokens survived into a compiled
// document. A finished document has none.
func leftoverTokens(doc string) []string {
	var leftover []string
	for _, tok := range []string{
		compiler.DeviceNamePlaceholder,
		compiler.MarkerLVGLPages,
		compiler.MarkerHABindings,
		compiler.MarkerUserYAMLPre,
		compiler.MarkerUserYAMLPost,
	} {
		if strings.Contains(doc, tok) {
			leftover = append(leftover, tok)
		}
	}
	return leftover
}

func checkMergeAppend() model.SelfCheckResult {
	const name = "merge_append"
	block := merge.WrapBlock("# generated\n")
	fresh, err := merge.Merge("", block)
	if err != nil {
		return model.SelfCheckResult{Name: name, Error: err.Error()}
	}
	appended, err := merge.Merge("# user file\n", block)
	if err != nil {
		return model.SelfCheckResult{Name: name, Error: err.Error()}
	}
	ok := strings.Contains(fresh, merge.BeginMarker) &&
		strings.Contains(fresh, merge.EndMarker) &&
		strings.HasPrefix(appended, "# user file\n") &&
		strings.Contains(appended, merge.EndMarker)
	return model.SelfCheckResult{Name: name, OK: ok}
}

func checkMergeSplice() model.SelfCheckResult {
	const name = "merge_splice"
	existing := "# above\n" + merge.WrapBlock("# old\n") + "# below\n"
	merged, err := merge.Merge(existing, merge.WrapBlock("# new\n"))
	if err != nil {
		return model.SelfCheckResult{Name: name, Error: err.Error()}
	}
	ok := strings.Contains(merged, "# above\n") &&
		strings.Contains(merged, "# below\n") &&
		strings.Contains(merged, "# new") &&
		!strings.Contains(merged, "# old")
	return model.SelfCheckResult{Name: name, OK: ok}
}

// checkMarkerDetection proves corrupted marker arrangements are rejected
// instead of spliced blind.
func checkMarkerDetection() model.SelfCheckResult {
	const name = "merge_marker_detection"
	block := merge.WrapBlock("# generated\n")

	_, dupErr := merge.Merge(block+block, block)
	_, orderErr := merge.Merge(merge.EndMarker+"\n# x\n"+merge.BeginMarker+"\n", block)

	detail := map[string]any{}
	if dupErr != nil {
		detail["duplicate_error"] = dupErr.Error()
	}
	if orderErr != nil {
		detail["order_error"] = orderErr.Error()
	}
	return model.SelfCheckResult{Name: name, OK: dupErr != nil && orderErr != nil, Detail: detail}
}

var lockIDRe = regexp.MustCompile(`(?m)^  - id: (ps_(?:ui_lock_until|lock_\w+))$`)

func lockIDs(doc string) []string {
	var ids []string
	for _, m := range lockIDRe.FindAllStringSubmatch(doc, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

// checkLockNameStability compiles the bound sample twice and verifies the
// emitted lock globals keep the same names in the same order. Bindings saved
// today must keep suppressing echoes after every future recompile.
func (r *Runner) checkLockNameStability(ctx context.Context) model.SelfCheckResult {
	const name = "lock_name_stability"
	doc1, err := r.compileSample(ctx, sampleBoundSwitch())
	if err != nil {
		return model.SelfCheckResult{Name: name, Error: err.Error()}
	}
	doc2, err := r.compileSample(ctx, sampleBoundSwitch())
	if err != nil {
		return model.SelfCheckResult{Name: name, Error: err.Error()}
	}

	locks1 := lockIDs(doc1)
	locks2 := lockIDs(doc2)
	stable := equalStrings(locks1, locks2)

	want := map[string]bool{
		"ps_ui_lock_until":          false,
		"ps_lock_light_kitchen":     false,
		"ps_lock_light_kitchen_sw1": false,
	}
	for _, id := range locks1 {
		if _, ok := want[id]; ok {
			want[id] = true
		}
	}
	complete := true
	for _, seen := range want {
		complete = complete && seen
	}

	return model.SelfCheckResult{
		Name:   name,
		OK:     stable && complete,
		Detail: map[string]any{"locks": locks1, "stable": stable},
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
