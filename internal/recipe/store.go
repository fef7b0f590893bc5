package recipe

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/panelsmith/panelsmith/model"
)

// recipeIDRe bounds ids taken from URLs and request bodies before they are
// joined into filesystem paths.
var recipeIDRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.\-]*$`)

func validID(id string) bool {
	return recipeIDRe.MatchString(id) && !strings.Contains(id, "..")
}

// Store serves builtin and user recipes. Reads go straight to the embedded
// set or the filesystem; mutations serialize on one mutex and land through
// atomic temp-file renames, so a concurrent reader sees either the old or the
// new content, never a torn file.
type Store struct {
	dir string
	log *zap.Logger
	mu  sync.Mutex
}

// NewStore creates a Store rooted at dir. The directory is created lazily on
// the first mutation.
func NewStore(dir string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, log: log}
}

func (s *Store) userDir() string         { return filepath.Join(s.dir, "user") }
func (s *Store) v2Dir(id string) string  { return filepath.Join(s.dir, "user", id) }
func (s *Store) v2Path(id string) string { return filepath.Join(s.dir, "user", id, "recipe.yaml") }

func (s *Store) v2MetaPath(id string) string {
	return filepath.Join(s.dir, "user", id, "metadata.json")
}

func (s *Store) legacyPath(id string) string { return filepath.Join(s.dir, id+".yaml") }

func (s *Store) legacyMetaPath(id string) string {
	return filepath.Join(s.dir, id+".metadata.json")
}

// List returns every known recipe: builtins first, then user and legacy
// entries, each group ordered by label. Filesystem trouble degrades to a
// builtin-only listing; the designer must keep working without a recipes
// directory.
func (s *Store) List(_ context.Context) []model.RecipeInfo {
	infos := make([]model.RecipeInfo, 0, 8)
	for _, id := range builtinIDs() {
		infos = append(infos, builtinInfo(id))
	}
	infos = append(infos, s.listUser()...)
	infos = append(infos, s.listLegacy()...)

	sort.SliceStable(infos, func(i, j int) bool {
		if bi, bj := infos[i].Builtin(), infos[j].Builtin(); bi != bj {
			return bi
		}
		return sortKey(infos[i]) < sortKey(infos[j])
	})
	return infos
}

func sortKey(info model.RecipeInfo) string {
	if info.Label != "" {
		return info.Label
	}
	return info.ID
}

func (s *Store) listUser() []model.RecipeInfo {
	entries, err := os.ReadDir(s.userDir())
	if err != nil {
		return nil
	}
	var infos []model.RecipeInfo
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		id := de.Name()
		if !fileExists(s.v2Path(id)) {
			continue
		}
		infos = append(infos, userInfo(id, model.RecipeSourceUser, readMetadataFile(s.v2MetaPath(id))))
	}
	return infos
}

func (s *Store) listLegacy() []model.RecipeInfo {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var infos []model.RecipeInfo
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".yaml") {
			continue
		}
		id := strings.TrimSuffix(de.Name(), ".yaml")
		infos = append(infos, userInfo(id, model.RecipeSourceLegacy, readMetadataFile(s.legacyMetaPath(id))))
	}
	return infos
}

func userInfo(id, source string, meta *model.RecipeMetadata) model.RecipeInfo {
	info := model.RecipeInfo{ID: id, Source: source, Metadata: meta}
	if meta != nil && meta.Label != "" {
		info.Label = meta.Label
	} else {
		info.Label = "Custom • " + id
	}
	return info
}

// idTaken reports whether any source already answers to id. Clone uses it so
// a new recipe never shadows (or is shadowed by) an existing one.
func (s *Store) idTaken(id string) bool {
	if _, ok := builtinText(id); ok {
		return true
	}
	return dirExists(s.v2Dir(id)) || fileExists(s.legacyPath(id))
}

// locate resolves an id to its listing entry and, for disk-backed recipes,
// the file path. Builtins resolve with an empty path.
func (s *Store) locate(id string) (model.RecipeInfo, string, error) {
	if !validID(id) {
		return model.RecipeInfo{}, "", model.NewBadRequestError(fmt.Sprintf("invalid recipe id %q", id))
	}
	if _, ok := builtinText(id); ok {
		return builtinInfo(id), "", nil
	}
	if p := s.v2Path(id); fileExists(p) {
		return userInfo(id, model.RecipeSourceUser, readMetadataFile(s.v2MetaPath(id))), p, nil
	}
	if p := s.legacyPath(id); fileExists(p) {
		return userInfo(id, model.RecipeSourceLegacy, readMetadataFile(s.legacyMetaPath(id))), p, nil
	}
	return model.RecipeInfo{}, "", model.NewNotFoundError(fmt.Sprintf("recipe %q not found", id))
}

// Get returns the listing entry for one recipe.
func (s *Store) Get(_ context.Context, id string) (model.RecipeInfo, error) {
	info, _, err := s.locate(id)
	return info, err
}

// Text returns a recipe's raw YAML.
func (s *Store) Text(_ context.Context, id string) (string, error) {
	info, path, err := s.locate(id)
	if err != nil {
		return "", err
	}
	if info.Builtin() {
		text, _ := builtinText(id)
		return text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading recipe %s: %w", id, err)
	}
	return string(data), nil
}

// Save writes a user recipe's text. An id matching an existing recipe keeps
// its layout (structured or legacy); a new id is created in the structured
// layout. Builtins reject the write.
func (s *Store) Save(_ context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validID(id) {
		return model.NewBadRequestError(fmt.Sprintf("invalid recipe id %q", id))
	}
	if _, ok := builtinText(id); ok {
		return model.NewRecipeReadOnlyError(id)
	}
	if strings.TrimSpace(text) == "" {
		return model.NewBadRequestError("recipe text is empty")
	}

	path := s.v2Path(id)
	switch {
	case fileExists(path):
	case fileExists(s.legacyPath(id)):
		path = s.legacyPath(id)
	default:
		if err := os.MkdirAll(s.v2Dir(id), 0o755); err != nil {
			return fmt.Errorf("creating recipe directory: %w", err)
		}
	}
	if err := writeFileAtomic(path, []byte(text)); err != nil {
		return err
	}
	s.log.Info("recipe saved", zap.String("recipe_id", id), zap.Int("bytes", len(text)))
	return nil
}

// Rename updates a user recipe's display label, preserving any other sidecar
// fields the file carries.
func (s *Store) Rename(_ context.Context, id, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	label = strings.TrimSpace(label)
	if label == "" {
		return model.NewBadRequestError("label is required")
	}
	if !validID(id) {
		return model.NewBadRequestError(fmt.Sprintf("invalid recipe id %q", id))
	}
	if _, ok := builtinText(id); ok {
		return model.NewRecipeReadOnlyError(id)
	}

	var metaPath string
	switch {
	case fileExists(s.v2Path(id)):
		metaPath = s.v2MetaPath(id)
	case fileExists(s.legacyPath(id)):
		metaPath = s.legacyMetaPath(id)
	default:
		return model.NewNotFoundError(fmt.Sprintf("recipe %q not found", id))
	}
	if err := patchMetadataLabel(metaPath, label); err != nil {
		return err
	}
	s.log.Info("recipe renamed", zap.String("recipe_id", id), zap.String("label", label))
	return nil
}

// Delete removes a user recipe: the whole structured directory, or the legacy
// file plus its sidecar.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validID(id) {
		return model.NewBadRequestError(fmt.Sprintf("invalid recipe id %q", id))
	}
	if _, ok := builtinText(id); ok {
		return model.NewRecipeReadOnlyError(id)
	}

	if dirExists(s.v2Dir(id)) {
		if err := os.RemoveAll(s.v2Dir(id)); err != nil {
			return fmt.Errorf("deleting recipe %s: %w", id, err)
		}
		s.log.Info("recipe deleted", zap.String("recipe_id", id))
		return nil
	}
	if fileExists(s.legacyPath(id)) {
		if err := os.Remove(s.legacyPath(id)); err != nil {
			return fmt.Errorf("deleting recipe %s: %w", id, err)
		}
		_ = os.Remove(s.legacyMetaPath(id))
		s.log.Info("recipe deleted", zap.String("recipe_id", id))
		return nil
	}
	return model.NewNotFoundError(fmt.Sprintf("recipe %q not found", id))
}

// Clone copies any recipe into a new structured user recipe. The destination
// id derives from destID (or the source id) and is suffixed _2, _3, … until
// free. An explicit label wins over the source's.
func (s *Store) Clone(_ context.Context, sourceID, destID, label string) (model.RecipeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srcInfo, srcPath, err := s.locate(sourceID)
	if err != nil {
		return model.RecipeInfo{}, err
	}
	text := ""
	if srcInfo.Builtin() {
		text, _ = builtinText(sourceID)
	} else {
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return model.RecipeInfo{}, fmt.Errorf("reading recipe %s: %w", sourceID, err)
		}
		text = string(data)
	}

	base := destID
	if strings.TrimSpace(base) == "" {
		base = sourceID
	}
	base = sanitizeDestID(base)
	dest := base
	for i := 2; s.idTaken(dest); i++ {
		dest = fmt.Sprintf("%s_%d", base, i)
	}

	if err := os.MkdirAll(s.v2Dir(dest), 0o755); err != nil {
		return model.RecipeInfo{}, fmt.Errorf("creating recipe directory: %w", err)
	}
	if err := writeFileAtomic(s.v2Path(dest), []byte(text)); err != nil {
		return model.RecipeInfo{}, err
	}

	meta := &model.RecipeMetadata{ClonedFrom: sourceID, Label: srcInfo.Label}
	if l := strings.TrimSpace(label); l != "" {
		meta.Label = l
	}
	if err := writeMetadataFile(s.v2MetaPath(dest), meta); err != nil {
		return model.RecipeInfo{}, err
	}
	s.log.Info("recipe cloned",
		zap.String("source_id", sourceID),
		zap.String("recipe_id", dest))
	return userInfo(dest, model.RecipeSourceUser, meta), nil
}

// Import normalizes raw device YAML into a new structured user recipe and
// returns its listing entry plus the stored path. The id comes from the
// caller, else the derived label; a taken id gets a content-hash suffix, so
// re-importing identical text lands on the same directory.
func (s *Store) Import(_ context.Context, rawYAML, id, label string) (model.RecipeInfo, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(rawYAML) == "" {
		return model.RecipeInfo{}, "", model.NewBadRequestError("yaml is required")
	}
	text, meta, err := normalizeImport(rawYAML, strings.TrimSpace(label))
	if err != nil {
		return model.RecipeInfo{}, "", err
	}

	seed := strings.TrimSpace(id)
	if seed == "" {
		seed = meta.Label
	}
	rid := slugify(seed)
	if s.idTaken(rid) {
		sum := sha1.Sum([]byte(text))
		rid = rid + "_" + hex.EncodeToString(sum[:])[:6]
	}

	if err := os.MkdirAll(s.v2Dir(rid), 0o755); err != nil {
		return model.RecipeInfo{}, "", fmt.Errorf("creating recipe directory: %w", err)
	}
	if err := writeFileAtomic(s.v2Path(rid), []byte(text)); err != nil {
		return model.RecipeInfo{}, "", err
	}
	meta.ImportedAt = time.Now().UTC()
	if err := writeMetadataFile(s.v2MetaPath(rid), meta); err != nil {
		return model.RecipeInfo{}, "", err
	}
	s.log.Info("recipe imported",
		zap.String("recipe_id", rid),
		zap.String("label", meta.Label),
		zap.Int("bytes", len(text)))
	return userInfo(rid, model.RecipeSourceUser, meta), s.v2Path(rid), nil
}

// Export bundles a recipe's text and sidecar for download.
func (s *Store) Export(ctx context.Context, id string) (model.RecipeExport, error) {
	info, _, err := s.locate(id)
	if err != nil {
		return model.RecipeExport{}, err
	}
	text, err := s.Text(ctx, id)
	if err != nil {
		return model.RecipeExport{}, err
	}
	exp := model.RecipeExport{ID: id, Source: info.Source, Label: info.Label, YAML: text}
	if info.Metadata != nil {
		exp.Metadata = info.Metadata
	} else {
		exp.Metadata = &model.RecipeMetadata{Label: info.Label}
	}
	if exp.Metadata.Label == "" {
		exp.Metadata.Label = info.Label
	}
	return exp, nil
}

// Validate runs the preflight checks against a stored recipe.
func (s *Store) Validate(ctx context.Context, id string) (model.RecipeValidation, error) {
	text, err := s.Text(ctx, id)
	if err != nil {
		return model.RecipeValidation{}, err
	}
	return ValidateText(text, id), nil
}

// ValidateText runs the preflight checks against recipe text. recipeID, when
// known, feeds the resolution-from-id fallback.
func ValidateText(text, recipeID string) model.RecipeValidation {
	issues := validateText(text)
	return model.RecipeValidation{
		OK:       len(issues) == 0,
		Issues:   issues,
		Metadata: extractMetadataFromText(text, recipeID),
	}
}

// Available reports whether at least one recipe resolves; readiness wires
// this up.
func (s *Store) Available() bool {
	return len(s.List(context.Background())) > 0
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// readMetadataFile loads a sidecar, returning nil on any problem: a corrupt
// sidecar downgrades the listing entry, it never breaks it.
func readMetadataFile(path string) *model.RecipeMetadata {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var meta model.RecipeMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil
	}
	return &meta
}

func writeMetadataFile(path string, meta *model.RecipeMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding recipe metadata: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// patchMetadataLabel rewrites only the label, keeping sidecar fields this
// build does not model.
func patchMetadataLabel(path, label string) error {
	meta := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &meta); err != nil || meta == nil {
			meta = map[string]any{}
		}
	}
	meta["label"] = label
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding recipe metadata: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// writeFileAtomic lands content through a temp file in the target directory
// plus a rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".recipe-*.tmp")
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
