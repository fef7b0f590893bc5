package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// WidgetSchema describes how one widget type is emitted: which fields exist
// per section, their defaults, and how field names map onto emission keys.
// Section and part order follow the schema document, so emission order is
// stable for a given schema file.
type WidgetSchema struct {
	Type        string
	Title       string
	Description string
	Emit        EmitSpec
	Props       FieldSet
	Style       FieldSet
	Events      FieldSet
	Parts       []PartSection
}

// EmitSpec is the schema's emission block: the root key the widget renders
// under and per-section field-name remaps.
type EmitSpec struct {
	RootKey string            `json:"root_key,omitempty"`
	Props   map[string]string `json:"props,omitempty"`
	Style   map[string]string `json:"style,omitempty"`
	Events  map[string]string `json:"events,omitempty"`
}

// SectionRemap returns the remap table for a section name.
func (e EmitSpec) SectionRemap(section string) map[string]string {
	switch section {
	case "props":
		return e.Props
	case "style":
		return e.Style
	case "events":
		return e.Events
	}
	return nil
}

// FieldDef describes one schema field.
type FieldDef struct {
	Type                string `json:"type,omitempty"`
	Title               string `json:"title,omitempty"`
	Default             any    `json:"default,omitempty"`
	CompilerEmitDefault bool   `json:"compiler_emit_default,omitempty"`
	Options             []any  `json:"options,omitempty"`
}

// PartSection is a named nested styling block (knob, indicator, ...).
type PartSection struct {
	Name   string
	Fields FieldSet
}

// FieldSet is an ordered collection of field definitions. JSON object order
// is preserved.
type FieldSet struct {
	names []string
	defs  map[string]FieldDef
}

// Len returns the number of fields.
func (fs FieldSet) Len() int { return len(fs.names) }

// Names returns the field names in document order.
func (fs FieldSet) Names() []string {
	out := make([]string, len(fs.names))
	copy(out, fs.names)
	return out
}

// Get returns the definition for name.
func (fs FieldSet) Get(name string) (FieldDef, bool) {
	def, ok := fs.defs[name]
	return def, ok
}

// UnmarshalJSON decodes a JSON object of field definitions, preserving key
// order. null decodes to an empty set.
func (fs *FieldSet) UnmarshalJSON(data []byte) error {
	fs.names = nil
	fs.defs = nil

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("field set: expected object, got %v", tok)
	}
	fs.defs = make(map[string]FieldDef)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("field set: non-string key %v", keyTok)
		}
		var def FieldDef
		if err := dec.Decode(&def); err != nil {
			return fmt.Errorf("field set: field %q: %w", name, err)
		}
		if _, dup := fs.defs[name]; !dup {
			fs.names = append(fs.names, name)
		}
		fs.defs[name] = def
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// schemaFixedKeys are schema document keys with dedicated meaning; every other
// object-valued key that looks like a set of field definitions becomes a part
// section.
var schemaFixedKeys = map[string]bool{
	"type": true, "title": true, "description": true, "esphome": true,
	"props": true, "style": true, "events": true, "groups": true,
}

// UnmarshalJSON decodes a widget schema document, collecting part sections in
// document order.
func (s *WidgetSchema) UnmarshalJSON(data []byte) error {
	*s = WidgetSchema{}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("widget schema: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("widget schema: non-string key %v", keyTok)
		}
		switch key {
		case "type":
			if err := dec.Decode(&s.Type); err != nil {
				return fmt.Errorf("widget schema: type: %w", err)
			}
		case "title":
			if err := dec.Decode(&s.Title); err != nil {
				return fmt.Errorf("widget schema: title: %w", err)
			}
		case "description":
			if err := dec.Decode(&s.Description); err != nil {
				return fmt.Errorf("widget schema: description: %w", err)
			}
		case "esphome":
			if err := dec.Decode(&s.Emit); err != nil {
				return fmt.Errorf("widget schema: esphome: %w", err)
			}
		case "props":
			if err := dec.Decode(&s.Props); err != nil {
				return err
			}
		case "style":
			if err := dec.Decode(&s.Style); err != nil {
				return err
			}
		case "events":
			if err := dec.Decode(&s.Events); err != nil {
				return err
			}
		default:
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return err
			}
			if schemaFixedKeys[key] || !looksLikePartSection(raw) {
				continue
			}
			var fields FieldSet
			if err := fields.UnmarshalJSON(raw); err != nil {
				return fmt.Errorf("widget schema: part %q: %w", key, err)
			}
			replaced := false
			for i := range s.Parts {
				if s.Parts[i].Name == key {
					s.Parts[i].Fields = fields
					replaced = true
					break
				}
			}
			if !replaced {
				s.Parts = append(s.Parts, PartSection{Name: key, Fields: fields})
			}
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// looksLikePartSection reports whether raw is a JSON object with at least one
// value shaped like a field definition (an object carrying "type" or
// "default").
func looksLikePartSection(raw json.RawMessage) bool {
	var section map[string]json.RawMessage
	if err := json.Unmarshal(raw, &section); err != nil {
		return false
	}
	for _, v := range section {
		var field map[string]json.RawMessage
		if err := json.Unmarshal(v, &field); err != nil {
			continue
		}
		if _, ok := field["type"]; ok {
			return true
		}
		if _, ok := field["default"]; ok {
			return true
		}
	}
	return false
}

// ParseWidgetSchema decodes a schema document and applies minimal
// normalization: the type falls back to the given name when the document
// omits it.
func ParseWidgetSchema(name string, data []byte) (*WidgetSchema, error) {
	var s WidgetSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("widget schema %q: %w", name, err)
	}
	if s.Type == "" {
		s.Type = name
	}
	return &s, nil
}

// RootKey returns the emission root key: the schema's declared key, else the
// widget type.
func (s *WidgetSchema) RootKey() string {
	if s.Emit.RootKey != "" {
		return s.Emit.RootKey
	}
	return s.Type
}
