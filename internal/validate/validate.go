// Package validate checks compiled documents before they are trusted: fast
// structural invariants locally, then optionally a real ESPHome CLI compile
// for full firmware-level confidence. Nothing is flashed either way.
package validate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/panelsmith/panelsmith/internal/compiler"
	"github.com/panelsmith/panelsmith/model"
)

// Options configure the optional external CLI step.
type Options struct {
	EnableCLI bool
	Binary    string
	Timeout   time.Duration
}

// Validator checks compiled documents.
type Validator struct {
	opts Options
	log  *zap.Logger
}

// New creates a Validator. The binary defaults to "esphome" on PATH.
func New(opts Options, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Binary == "" {
		opts.Binary = "esphome"
	}
	return &Validator{opts: opts, log: log}
}

// Validate runs the structural checks and, when the CLI step is enabled and
// the structure is sound, a full esphome compile. A structurally broken
// document skips the CLI; the build would only fail slower.
func (v *Validator) Validate(ctx context.Context, text string) model.DocumentValidation {
	issues := StructuralIssues(text)
	out := model.DocumentValidation{OK: len(issues) == 0, Issues: issues}
	if !out.OK || !v.opts.EnableCLI {
		return out
	}
	out.CLI = v.runCLI(ctx, text)
	out.OK = out.CLI.OK
	return out
}

// StructuralIssues checks the invariants every finished document satisfies:
// parseable YAML, an esphome block as the first top-level key, a device name,
// and no unresolved compile tokens.
func StructuralIssues(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{"Document is empty."}
	}

	var issues []string
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		issues = append(issues, "Document YAML parse failed: "+err.Error())
	} else if mapping := documentMapping(&root); mapping == nil {
		issues = append(issues, "Top-level YAML must be a mapping.")
	} else {
		issues = append(issues, esphomeIssues(mapping)...)
	}

	for _, tok := range residualTokens() {
		if strings.Contains(text, tok) {
			issues = append(issues, "Unresolved compile token remains: "+tok)
		}
	}
	return issues
}

func residualTokens() []string {
	return []string{
		compiler.DeviceNamePlaceholder,
		compiler.MarkerLVGLPages,
		compiler.MarkerHABindings,
		compiler.MarkerUserYAMLPre,
		compiler.MarkerUserYAMLPost,
	}
}

func documentMapping(root *yaml.Node) *yaml.Node {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return nil
	}
	return root.Content[0]
}

func esphomeIssues(mapping *yaml.Node) []string {
	var issues []string
	esphomeIdx := -1
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == "esphome" {
			esphomeIdx = i
			break
		}
	}
	switch {
	case esphomeIdx < 0:
		issues = append(issues, "No `esphome:` block found.")
	case esphomeIdx != 0:
		issues = append(issues, "`esphome:` must be the first top-level key.")
	}
	if esphomeIdx >= 0 && !hasNonEmptyName(mapping.Content[esphomeIdx+1]) {
		issues = append(issues, "`esphome:` block does not set `name:`.")
	}
	return issues
}

func hasNonEmptyName(block *yaml.Node) bool {
	if block == nil || block.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(block.Content); i += 2 {
		if block.Content[i].Value == "name" {
			val := block.Content[i+1]
			return val.Kind == yaml.ScalarNode && strings.TrimSpace(val.Value) != ""
		}
	}
	return false
}

// runCLI writes the document to a temp file and runs a full esphome compile
// against it, capturing both streams.
func (v *Validator) runCLI(ctx context.Context, text string) *model.CLIValidation {
	cli := &model.CLIValidation{ReturnCode: -1}

	tmp, err := os.CreateTemp("", "panelsmith-validate-*.yaml")
	if err != nil {
		cli.Error = "validation_failed"
		cli.Stderr = err.Error()
		return cli
	}
	path := tmp.Name()
	defer os.Remove(path)
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		cli.Error = "validation_failed"
		cli.Stderr = err.Error()
		return cli
	}
	if err := tmp.Close(); err != nil {
		cli.Error = "validation_failed"
		cli.Stderr = err.Error()
		return cli
	}

	runCtx := ctx
	if v.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, v.opts.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, v.opts.Binary, "compile", path)
	cmd.Dir = filepath.Dir(path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	cli.Stdout = stdout.String()
	cli.Stderr = stderr.String()

	switch {
	case err == nil:
		cli.OK = true
		cli.ReturnCode = 0
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		cli.Error = "esphome_cli_not_found"
		cli.Stderr = "The 'esphome' command was not found. Install ESPHome CLI (pip install esphome) or use the ESPHome add-on."
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		cli.Error = "validation_timeout"
		cli.Stderr = fmt.Sprintf("esphome did not finish within %s", v.opts.Timeout)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cli.ReturnCode = exitErr.ExitCode()
		} else {
			cli.Error = "validation_failed"
			if cli.Stderr == "" {
				cli.Stderr = err.Error()
			}
		}
	}

	v.log.Info("esphome validation finished",
		zap.Bool("ok", cli.OK),
		zap.Int("returncode", cli.ReturnCode),
		zap.String("cli_error", cli.Error))
	return cli
}
