package validate

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = "---\n" +
	"# Generated by panelsmith vtest\n" +
	"\n" +
	"esphome:\n" +
	"  name: \"kitchen_panel\"\n" +
	"\n" +
	"wifi:\n" +
	"  ssid: !secret wifi_ssid\n" +
	"  password: !secret wifi_password\n" +
	"\n" +
	"lvgl:\n" +
	"  pages: []\n"

func TestStructuralIssues_cleanDocument(t *testing.T) {
	assert.Empty(t, StructuralIssues(validDoc))
}

func TestStructuralIssues_empty(t *testing.T) {
	assert.Equal(t, []string{"Document is empty."}, StructuralIssues("   \n"))
}

func TestStructuralIssues_parseFailure(t *testing.T) {
	issues := StructuralIssues("esphome: [unclosed\n")
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "Document YAML parse failed:")
}

func TestStructuralIssues_nonMappingRoot(t *testing.T) {
	issues := StructuralIssues("- a\n- b\n")
	assert.Equal(t, []string{"Top-level YAML must be a mapping."}, issues)
}

func TestStructuralIssues_missingEsphome(t *testing.T) {
	issues := StructuralIssues("wifi:\n  ssid: home\n")
	assert.Equal(t, []string{"No `esphome:` block found."}, issues)
}

func TestStructuralIssues_esphomeNotFirst(t *testing.T) {
	issues := StructuralIssues("wifi:\n  ssid: home\nesphome:\n  name: panel\n")
	assert.Equal(t, []string{"`esphome:` must be the first top-level key."}, issues)
}

func TestStructuralIssues_missingName(t *testing.T) {
	issues := StructuralIssues("esphome:\n  friendly_name: Panel\n")
	assert.Equal(t, []string{"`esphome:` block does not set `name:`."}, issues)

	issues = StructuralIssues("esphome:\n  name: ''\n")
	assert.Equal(t, []string{"`esphome:` block does not set `name:`."}, issues)
}

func TestStructuralIssues_residualTokens(t *testing.T) {
	doc := "esphome:\n  name: __PANELSMITH_DEVICE_NAME__\n\nlvgl:\n  #__LVGL_PAGES__\n"
	issues := StructuralIssues(doc)
	assert.Contains(t, issues, "Unresolved compile token remains: __PANELSMITH_DEVICE_NAME__")
	assert.Contains(t, issues, "Unresolved compile token remains: #__LVGL_PAGES__")
}

func TestValidator_Validate_structuralOnly(t *testing.T) {
	v := New(Options{}, nil)

	out := v.Validate(context.Background(), validDoc)
	assert.True(t, out.OK)
	assert.Empty(t, out.Issues)
	assert.Nil(t, out.CLI)

	out = v.Validate(context.Background(), "wifi: {}\n")
	assert.False(t, out.OK)
	assert.NotEmpty(t, out.Issues)
}

func TestValidator_Validate_brokenDocumentSkipsCLI(t *testing.T) {
	v := New(Options{EnableCLI: true, Binary: "/nonexistent/esphome"}, nil)

	out := v.Validate(context.Background(), "wifi: {}\n")
	assert.False(t, out.OK)
	assert.Nil(t, out.CLI, "structural failures must not launch the CLI")
}

func writeFakeCLI(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "esphome")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestValidator_Validate_cliSuccess(t *testing.T) {
	bin := writeFakeCLI(t, `test "$1" = compile || exit 9
grep -q esphome "$2" || exit 9
echo "INFO Configuration is valid"`)
	v := New(Options{EnableCLI: true, Binary: bin, Timeout: 10 * time.Second}, nil)

	out := v.Validate(context.Background(), validDoc)
	assert.True(t, out.OK)
	require.NotNil(t, out.CLI)
	assert.True(t, out.CLI.OK)
	assert.Equal(t, 0, out.CLI.ReturnCode)
	assert.Contains(t, out.CLI.Stdout, "Configuration is valid")
	assert.Empty(t, out.CLI.Error)
}

func TestValidator_Validate_cliFailure(t *testing.T) {
	bin := writeFakeCLI(t, `echo "Component lvgl requires esp-idf" >&2
exit 3`)
	v := New(Options{EnableCLI: true, Binary: bin, Timeout: 10 * time.Second}, nil)

	out := v.Validate(context.Background(), validDoc)
	assert.False(t, out.OK)
	require.NotNil(t, out.CLI)
	assert.False(t, out.CLI.OK)
	assert.Equal(t, 3, out.CLI.ReturnCode)
	assert.Contains(t, out.CLI.Stderr, "requires esp-idf")
	assert.Empty(t, out.CLI.Error)
}

func TestValidator_Validate_cliNotFound(t *testing.T) {
	v := New(Options{
		EnableCLI: true,
		Binary:    filepath.Join(t.TempDir(), "missing-esphome"),
		Timeout:   10 * time.Second,
	}, nil)

	out := v.Validate(context.Background(), validDoc)
	assert.False(t, out.OK)
	require.NotNil(t, out.CLI)
	assert.Equal(t, "esphome_cli_not_found", out.CLI.Error)
	assert.Contains(t, out.CLI.Stderr, "was not found")
}

func TestValidator_Validate_cliTimeout(t *testing.T) {
	bin := writeFakeCLI(t, "sleep 5")
	v := New(Options{EnableCLI: true, Binary: bin, Timeout: 100 * time.Millisecond}, nil)

	out := v.Validate(context.Background(), validDoc)
	assert.False(t, out.OK)
	require.NotNil(t, out.CLI)
	assert.Equal(t, "validation_timeout", out.CLI.Error)
}
