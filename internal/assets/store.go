// Package assets stores the font and image files that widget properties
// reference through asset: descriptors. The compiler never reads these files;
// it only emits their configured paths, so the store is a flat directory of
// uploads with no index.
package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/panelsmith/panelsmith/model"
)

// assetNameRe bounds filenames taken from request bodies and URLs before they
// are joined into filesystem paths. Colons stay out because filenames are
// emitted into unquoted YAML scalars.
var assetNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 ._\-]*$`)

func validName(name string) bool {
	return assetNameRe.MatchString(name) && !strings.Contains(name, "..")
}

var fontExts = map[string]struct{}{
	".ttf": {},
	".otf": {},
}

var imageExts = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
	".bmp":  {},
}

// Kind classifies a filename by extension.
func Kind(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := fontExts[ext]; ok {
		return model.AssetKindFont
	}
	if _, ok := imageExts[ext]; ok {
		return model.AssetKindImage
	}
	return model.AssetKindFile
}

// Store manages the asset directory. Mutations serialize on one mutex and
// land through atomic temp-file renames.
type Store struct {
	dir       string
	maxUpload int64
	log       *zap.Logger
	mu        sync.Mutex
}

// NewStore creates a Store rooted at dir with the given per-file upload cap in
// bytes. The directory is created lazily on the first upload.
func NewStore(dir string, maxUpload int64, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, maxUpload: maxUpload, log: log}
}

// Dir returns the asset directory path.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// List returns every stored asset ordered by name. A missing directory is an
// empty listing, not an error.
func (s *Store) List(_ context.Context) ([]model.AssetInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	var infos []model.AssetInfo
	for _, de := range entries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		st, err := de.Info()
		if err != nil {
			continue
		}
		infos = append(infos, model.AssetInfo{
			Name:       de.Name(),
			Size:       st.Size(),
			Kind:       Kind(de.Name()),
			ModifiedAt: st.ModTime().UTC(),
		})
	}
	return infos, nil
}

// Save writes an uploaded asset, replacing any existing file with the same
// name.
func (s *Store) Save(_ context.Context, name string, data []byte) (model.AssetInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if !validName(name) {
		return model.AssetInfo{}, model.NewBadRequestError(fmt.Sprintf("invalid asset name %q", name))
	}
	if len(data) == 0 {
		return model.AssetInfo{}, model.NewBadRequestError("asset data is empty")
	}
	if s.maxUpload > 0 && int64(len(data)) > s.maxUpload {
		return model.AssetInfo{}, model.NewBadRequestError(
			fmt.Sprintf("asset is %d bytes, above the %d byte upload limit", len(data), s.maxUpload))
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return model.AssetInfo{}, fmt.Errorf("creating asset directory: %w", err)
	}
	if err := writeFileAtomic(s.path(name), data); err != nil {
		return model.AssetInfo{}, err
	}

	info := model.AssetInfo{Name: name, Size: int64(len(data)), Kind: Kind(name)}
	if st, err := os.Stat(s.path(name)); err == nil {
		info.ModifiedAt = st.ModTime().UTC()
	}
	s.log.Info("asset saved",
		zap.String("name", name),
		zap.String("kind", info.Kind),
		zap.Int("bytes", len(data)))
	return info, nil
}

// Delete removes a stored asset.
func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if !validName(name) {
		return model.NewBadRequestError(fmt.Sprintf("invalid asset name %q", name))
	}
	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return model.NewNotFoundError(fmt.Sprintf("asset %q not found", name))
		}
		return fmt.Errorf("deleting asset %s: %w", name, err)
	}
	s.log.Info("asset deleted", zap.String("name", name))
	return nil
}

// writeFileAtomic lands content through a temp file in the target directory
// plus a rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".asset-*.tmp")
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
