package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelsmith/panelsmith/internal/merge"
	"github.com/panelsmith/panelsmith/model"
)

const compiledDoc = "esphome:\n  name: kitchen_panel\n\nlvgl:\n  pages: []\n"

func newWriter(t *testing.T) *Writer {
	t.Helper()
	return NewWriter(t.TempDir(), nil)
}

func assertErrCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var envelope *model.ErrorEnvelope
	require.True(t, errors.As(err, &envelope), "want *model.ErrorEnvelope, got %T: %v", err, err)
	assert.Equal(t, code, envelope.Code)
}

func TestWriter_TargetPath(t *testing.T) {
	w := NewWriter("/config/esphome", nil)
	assert.Equal(t, filepath.Join("/config/esphome", "kitchen_panel.yaml"), w.TargetPath("kitchen_panel"))
}

func TestWriter_Preview_newFile(t *testing.T) {
	w := newWriter(t)

	pv, err := w.Preview(context.Background(), "kitchen_panel", compiledDoc)
	require.NoError(t, err)

	assert.Equal(t, w.TargetPath("kitchen_panel"), pv.Path)
	assert.Equal(t, model.DeployModeNew, pv.Mode)
	assert.False(t, pv.Exists)
	assert.Equal(t, merge.Hash(""), pv.ExpectedHash)
	assert.Equal(t, merge.Hash(pv.NewText), pv.NewHash)

	assert.Contains(t, pv.NewText, merge.BeginMarker)
	assert.Contains(t, pv.NewText, merge.EndMarker)
	assert.Contains(t, pv.NewText, "USER YAML BELOW")
	assert.Contains(t, pv.Diff, "+"+merge.BeginMarker)
	assert.NotContains(t, pv.Diff, "\n-")

	// Preview must not touch the filesystem.
	_, err = os.Stat(pv.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestWriter_Preview_mergesExisting(t *testing.T) {
	w := newWriter(t)
	existing := "# mine above\n" +
		merge.WrapBlock("esphome:\n  name: old\n") +
		"# mine below\n"
	require.NoError(t, os.WriteFile(w.TargetPath("kitchen_panel"), []byte(existing), 0o644))

	pv, err := w.Preview(context.Background(), "kitchen_panel", compiledDoc)
	require.NoError(t, err)

	assert.Equal(t, model.DeployModeMerged, pv.Mode)
	assert.True(t, pv.Exists)
	assert.Equal(t, merge.Hash(existing), pv.ExpectedHash)
	assert.Contains(t, pv.NewText, "# mine above\n")
	assert.Contains(t, pv.NewText, "# mine below\n")
	assert.Contains(t, pv.NewText, "name: kitchen_panel")
	assert.NotContains(t, pv.NewText, "name: old")
	assert.NotContains(t, pv.NewText, "USER YAML BELOW")
}

func TestWriter_Preview_appendsWhenNoMarkers(t *testing.T) {
	w := newWriter(t)
	existing := "# hand-written config\nsensor:\n  - platform: uptime\n"
	require.NoError(t, os.WriteFile(w.TargetPath("kitchen_panel"), []byte(existing), 0o644))

	pv, err := w.Preview(context.Background(), "kitchen_panel", compiledDoc)
	require.NoError(t, err)

	assert.Equal(t, model.DeployModeMerged, pv.Mode)
	assert.True(t, strings.HasPrefix(pv.NewText, "# hand-written config\n"))
	assert.Contains(t, pv.NewText, merge.BeginMarker)
	assert.NotContains(t, pv.NewText, "USER YAML BELOW")
}

func TestWriter_Preview_blankExistingFileIsFresh(t *testing.T) {
	w := newWriter(t)
	require.NoError(t, os.WriteFile(w.TargetPath("kitchen_panel"), []byte("\n\n"), 0o644))

	pv, err := w.Preview(context.Background(), "kitchen_panel", compiledDoc)
	require.NoError(t, err)
	assert.Equal(t, model.DeployModeNew, pv.Mode)
	assert.True(t, pv.Exists)
	assert.Contains(t, pv.NewText, "USER YAML BELOW")
}

func TestWriter_Preview_markerCorruption(t *testing.T) {
	w := newWriter(t)
	ctx := context.Background()

	doubled := merge.WrapBlock("a: 1\n") + merge.WrapBlock("b: 2\n")
	require.NoError(t, os.WriteFile(w.TargetPath("kitchen_panel"), []byte(doubled), 0o644))
	_, err := w.Preview(ctx, "kitchen_panel", compiledDoc)
	assertErrCode(t, err, model.ErrMarkerCountMismatch)

	reversed := merge.EndMarker + "\nx: 1\n" + merge.BeginMarker + "\n"
	require.NoError(t, os.WriteFile(w.TargetPath("kitchen_panel"), []byte(reversed), 0o644))
	_, err = w.Preview(ctx, "kitchen_panel", compiledDoc)
	assertErrCode(t, err, model.ErrMarkerOrderInvalid)
}

func TestWriter_Export_writesNewFile(t *testing.T) {
	w := newWriter(t)
	ctx := context.Background()

	pv, err := w.Preview(ctx, "kitchen_panel", compiledDoc)
	require.NoError(t, err)

	res, err := w.Export(ctx, "kitchen_panel", compiledDoc, pv.ExpectedHash)
	require.NoError(t, err)
	assert.Equal(t, pv.Path, res.Path)
	assert.Equal(t, model.DeployModeNew, res.Mode)
	assert.Equal(t, pv.NewHash, res.Hash)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, pv.NewText, string(data))
}

func TestWriter_Export_hashGate(t *testing.T) {
	w := newWriter(t)
	ctx := context.Background()

	_, err := w.Export(ctx, "kitchen_panel", compiledDoc, "")
	require.NoError(t, err)

	pv, err := w.Preview(ctx, "kitchen_panel", compiledDoc)
	require.NoError(t, err)

	// Someone edits the file between preview and export.
	edited := pv.NewText + "# late user edit\n"
	require.NoError(t, os.WriteFile(pv.Path, []byte(edited), 0o644))

	_, err = w.Export(ctx, "kitchen_panel", compiledDoc, pv.ExpectedHash)
	assertErrCode(t, err, model.ErrExternallyModified)

	data, err := os.ReadFile(pv.Path)
	require.NoError(t, err)
	assert.Equal(t, edited, string(data), "rejected export must leave the file alone")
}

func TestWriter_Export_emptyExpectedHashSkipsGate(t *testing.T) {
	w := newWriter(t)
	ctx := context.Background()

	_, err := w.Export(ctx, "kitchen_panel", compiledDoc, "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(w.TargetPath("kitchen_panel"), []byte("# replaced by hand\n"), 0o644))

	res, err := w.Export(ctx, "kitchen_panel", compiledDoc, "")
	require.NoError(t, err)
	assert.Equal(t, model.DeployModeMerged, res.Mode)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# replaced by hand\n"))
}

func TestWriter_Export_redeployIsFixedPoint(t *testing.T) {
	w := newWriter(t)
	ctx := context.Background()

	first, err := w.Export(ctx, "kitchen_panel", compiledDoc, "")
	require.NoError(t, err)
	second, err := w.Export(ctx, "kitchen_panel", compiledDoc, first.Hash)
	require.NoError(t, err)

	assert.Equal(t, model.DeployModeMerged, second.Mode)
	assert.Equal(t, first.Hash, second.Hash, "re-exporting an unchanged document must not change the file")
}

func TestWriter_Export_preservesUserEditsAcrossRedeploys(t *testing.T) {
	w := newWriter(t)
	ctx := context.Background()

	res, err := w.Export(ctx, "kitchen_panel", compiledDoc, "")
	require.NoError(t, err)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	withUser := string(data) + "\nsensor:\n  - platform: uptime\n    name: Uptime\n"
	require.NoError(t, os.WriteFile(res.Path, []byte(withUser), 0o644))

	updated := strings.ReplaceAll(compiledDoc, "kitchen_panel", "kitchen_panel_v2")
	res2, err := w.Export(ctx, "kitchen_panel", updated, merge.Hash(withUser))
	require.NoError(t, err)
	assert.Equal(t, model.DeployModeMerged, res2.Mode)

	data, err = os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: kitchen_panel_v2")
	assert.Contains(t, string(data), "platform: uptime")
	assert.Equal(t, 1, strings.Count(string(data), merge.BeginMarker))
}

func TestWriter_invalidSlug(t *testing.T) {
	w := newWriter(t)
	ctx := context.Background()

	for _, slug := range []string{"", "../escape", "a/b", ".hidden"} {
		_, err := w.Preview(ctx, slug, compiledDoc)
		assertErrCode(t, err, model.ErrBadRequest)
		_, err = w.Export(ctx, slug, compiledDoc, "")
		assertErrCode(t, err, model.ErrBadRequest)
	}
}
