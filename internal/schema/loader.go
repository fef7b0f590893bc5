// Package schema loads widget emission schemas and serves them to the
// compiler and the HTTP API. Builtin schemas ship embedded in the binary; an
// optional user directory overrides or extends them, and a filesystem watcher
// folds edits in without a restart.
package schema

import (
	"crypto/sha256"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/panelsmith/panelsmith/model"
)

//go:embed builtin/*.json
var builtinFS embed.FS

// SourceBuiltin marks entries loaded from the embedded set.
const SourceBuiltin = "builtin"

// Entry is one loaded widget schema together with its source document. Raw is
// served verbatim by the detail endpoint so user schemas keep fields the
// emitter does not model.
type Entry struct {
	Type     string
	Source   string
	Checksum string
	Raw      json.RawMessage
	Schema   *model.WidgetSchema
}

// Summary is the list-endpoint projection of an Entry.
type Summary struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// Loader reads widget schema documents from the embedded set and the user
// directory. Files that fail to parse are skipped with a warning; one broken
// schema must not take down the rest.
type Loader struct {
	userDir string
	log     *zap.Logger
}

// NewLoader creates a Loader. userDir may be empty, disabling user overrides.
func NewLoader(userDir string, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{userDir: userDir, log: log}
}

// UserDir returns the configured user schema directory, possibly empty.
func (l *Loader) UserDir() string { return l.userDir }

// LoadAll returns every loadable schema entry. Builtins load first in
// filename order, then user files in filename order; a user schema with the
// same widget type replaces the builtin in place.
func (l *Loader) LoadAll() ([]Entry, error) {
	var entries []Entry
	byType := make(map[string]int)

	add := func(entry Entry) {
		if i, ok := byType[entry.Type]; ok {
			entries[i] = entry
			return
		}
		byType[entry.Type] = len(entries)
		entries = append(entries, entry)
	}

	names, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, fmt.Errorf("reading embedded schemas: %w", err)
	}
	for _, de := range names {
		data, err := builtinFS.ReadFile("builtin/" + de.Name())
		if err != nil {
			return nil, fmt.Errorf("reading embedded schema %s: %w", de.Name(), err)
		}
		entry, err := parseEntry(de.Name(), SourceBuiltin, data)
		if err != nil {
			return nil, fmt.Errorf("embedded schema %s: %w", de.Name(), err)
		}
		add(entry)
	}

	if l.userDir == "" {
		return entries, nil
	}
	files, err := os.ReadDir(l.userDir)
	if os.IsNotExist(err) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading schema directory %s: %w", l.userDir, err)
	}
	userNames := make([]string, 0, len(files))
	for _, de := range files {
		if de.IsDir() || !strings.HasSuffix(strings.ToLower(de.Name()), ".json") {
			continue
		}
		userNames = append(userNames, de.Name())
	}
	sort.Strings(userNames)
	for _, name := range userNames {
		path := filepath.Join(l.userDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			l.log.Warn("widget schema unreadable, skipping", zap.String("path", path), zap.Error(err))
			continue
		}
		entry, err := parseEntry(name, path, data)
		if err != nil {
			l.log.Warn("widget schema unparseable, skipping", zap.String("path", path), zap.Error(err))
			continue
		}
		add(entry)
	}
	return entries, nil
}

func parseEntry(filename, source string, data []byte) (Entry, error) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	s, err := model.ParseWidgetSchema(stem, data)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Type:     s.Type,
		Source:   source,
		Checksum: fmt.Sprintf("%x", sha256.Sum256(data)),
		Raw:      json.RawMessage(append([]byte(nil), data...)),
		Schema:   s,
	}, nil
}
