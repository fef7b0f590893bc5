package schema

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/panelsmith/panelsmith/model"
)

// snapshot is an immutable view of every loaded schema, indexed by widget
// type.
type snapshot struct {
	entries  []Entry
	byType   map[string]Entry
	checksum string
}

// Registry is a read-optimized, thread-safe store of loaded widget schemas.
// Reads are lock-free; Reload swaps a freshly built snapshot in atomically.
type Registry struct {
	loader *Loader
	log    *zap.Logger
	snap   atomic.Pointer[snapshot]
}

// NewRegistry builds a Registry and performs the initial load.
func NewRegistry(loader *Loader, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{loader: loader, log: log}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads every schema source and swaps the snapshot.
func (r *Registry) Reload() error {
	entries, err := r.loader.LoadAll()
	if err != nil {
		return err
	}

	s := &snapshot{
		entries: entries,
		byType:  make(map[string]Entry, len(entries)),
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		s.byType[e.Type] = e
		parts = append(parts, e.Type+":"+e.Checksum)
	}
	sort.Strings(parts)
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(strings.Join(parts, ":"))))

	r.snap.Store(s)
	r.log.Debug("widget schemas loaded",
		zap.Int("count", len(entries)),
		zap.String("checksum", s.checksum))
	return nil
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Load resolves a widget type to its emission schema. An unknown type returns
// (nil, nil): the compiler falls back to generic emission.
func (r *Registry) Load(widgetType string) (*model.WidgetSchema, error) {
	if e, ok := r.current().byType[widgetType]; ok {
		return e.Schema, nil
	}
	return nil, nil
}

// Get returns the full entry for a widget type.
func (r *Registry) Get(widgetType string) (Entry, bool) {
	e, ok := r.current().byType[widgetType]
	return e, ok
}

// List returns a summary of every loaded schema in load order.
func (r *Registry) List() []Summary {
	s := r.current()
	out := make([]Summary, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Summary{
			Type:        e.Type,
			Title:       e.Schema.Title,
			Description: e.Schema.Description,
			Source:      e.Source,
		})
	}
	return out
}

// Checksum returns the combined checksum over all loaded schemas.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
