// Package deploy writes compiled documents into the ESPHome configuration
// directory. Every write goes through the marker-based merge, so user YAML
// outside the generated block survives redeploys, and an optimistic hash gate
// rejects writes when the target changed after its preview.
package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"

	"github.com/panelsmith/panelsmith/internal/merge"
	"github.com/panelsmith/panelsmith/model"
)

// slugRe bounds output filename stems before they are joined into the output
// directory.
var slugRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.\-]*$`)

func validSlug(slug string) bool {
	return slugRe.MatchString(slug) && !strings.Contains(slug, "..")
}

// Writer owns the output directory. Exports to the same target serialize on a
// per-path mutex; distinct targets write independently.
type Writer struct {
	outputDir string
	log       *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWriter creates a Writer for outputDir. The directory is created on the
// first export.
func NewWriter(outputDir string, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{outputDir: outputDir, log: log, locks: make(map[string]*sync.Mutex)}
}

// OutputDir returns the configured output directory.
func (w *Writer) OutputDir() string { return w.outputDir }

// TargetPath returns the output file for a device slug.
func (w *Writer) TargetPath(slug string) string {
	return filepath.Join(w.outputDir, slug+".yaml")
}

func (w *Writer) pathLock(path string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.locks[path]
	if !ok {
		l = &sync.Mutex{}
		w.locks[path] = l
	}
	return l
}

// Preview merges the compiled document into the target in memory and reports
// what Export would write: target path, merge mode, the fingerprint of the
// file as read, and a unified diff. Nothing is written.
func (w *Writer) Preview(_ context.Context, slug, compiled string) (model.DeployPreview, error) {
	if !validSlug(slug) {
		return model.DeployPreview{}, model.NewBadRequestError(fmt.Sprintf("invalid device slug %q", slug))
	}
	path := w.TargetPath(slug)
	existing, exists, err := readTarget(path)
	if err != nil {
		return model.DeployPreview{}, err
	}
	newText, mode, err := renderTarget(existing, exists, compiled)
	if err != nil {
		return model.DeployPreview{}, err
	}
	diff, err := unifiedDiff(path, existing, newText)
	if err != nil {
		return model.DeployPreview{}, err
	}
	return model.DeployPreview{
		Path:         path,
		Mode:         mode,
		Exists:       exists,
		ExpectedHash: merge.Hash(existing),
		NewHash:      merge.Hash(newText),
		Diff:         diff,
		NewText:      newText,
	}, nil
}

// Export merges the compiled document into the target file and writes it.
// A non-empty expectedHash must match the target as found on disk, otherwise
// the write is rejected with EXTERNALLY_MODIFIED and the file is left alone.
func (w *Writer) Export(_ context.Context, slug, compiled, expectedHash string) (model.DeployResult, error) {
	if !validSlug(slug) {
		return model.DeployResult{}, model.NewBadRequestError(fmt.Sprintf("invalid device slug %q", slug))
	}
	path := w.TargetPath(slug)
	l := w.pathLock(path)
	l.Lock()
	defer l.Unlock()

	existing, exists, err := readTarget(path)
	if err != nil {
		return model.DeployResult{}, err
	}
	if expectedHash != "" && expectedHash != merge.Hash(existing) {
		return model.DeployResult{}, model.NewExternallyModifiedError(path)
	}
	newText, mode, err := renderTarget(existing, exists, compiled)
	if err != nil {
		return model.DeployResult{}, err
	}

	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return model.DeployResult{}, fmt.Errorf("creating output directory: %w", err)
	}
	if err := writeFileAtomic(path, []byte(newText)); err != nil {
		return model.DeployResult{}, err
	}
	w.log.Info("document exported",
		zap.String("path", path),
		zap.String("mode", mode),
		zap.Int("bytes", len(newText)))
	return model.DeployResult{Path: path, Mode: mode, Hash: merge.Hash(newText)}, nil
}

// renderTarget wraps the compiled document and merges it into the target
// content. A missing or blank target becomes a fresh file with the user-YAML
// hint trailer; anything else goes through the marker merge.
func renderTarget(existing string, exists bool, compiled string) (string, string, error) {
	block := merge.WrapBlock(compiled)
	if !exists || strings.TrimSpace(existing) == "" {
		return merge.FreshFile(block), model.DeployModeNew, nil
	}
	merged, err := merge.Merge(existing, block)
	if err != nil {
		return "", "", err
	}
	return merged, model.DeployModeMerged, nil
}

func readTarget(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), true, nil
}

func unifiedDiff(path, existing, newText string) (string, error) {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        diffLines(existing),
		B:        diffLines(newText),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("rendering diff: %w", err)
	}
	return diff, nil
}

// diffLines splits text for the differ. Empty text is no lines, not one empty
// line, so a fresh file previews as pure additions.
func diffLines(s string) []string {
	if s == "" {
		return nil
	}
	return difflib.SplitLines(s)
}

// writeFileAtomic lands content through a temp file in the target directory
// plus a rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".deploy-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
