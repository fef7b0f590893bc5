package compiler

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// jsonQuote renders s as a JSON string literal. ESPHome's YAML loader accepts
// JSON string syntax, and it sidesteps every YAML quoting pitfall (colons,
// leading symbols, unicode) in one move.
func jsonQuote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		// Strings always encode.
		panic(err)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// formatFloat renders f the way a float belongs in generated expressions:
// integral values keep a trailing ".0" so downstream C++ stays in floating
// point.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// scalarLiteral renders a scalar value for a key: value position.
func scalarLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return jsonQuote(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		buf, err := json.Marshal(t)
		if err != nil {
			return jsonQuote("")
		}
		return string(buf)
	}
}

// emitKV writes one key and value at the given indent. Rendering rules:
// nil is omitted entirely, slices become block lists, maps become nested
// key/value pairs with sorted keys, multi-line strings become literal block
// scalars, everything else is a single scalar line.
func emitKV(b *strings.Builder, indent, key string, value any) {
	switch v := value.(type) {
	case nil:
		return
	case []any:
		b.WriteString(indent + key + ":\n")
		for _, item := range v {
			b.WriteString(indent + "  - " + scalarLiteral(item) + "\n")
		}
	case map[string]any:
		b.WriteString(indent + key + ":\n")
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(indent + "  " + k + ": " + scalarLiteral(v[k]) + "\n")
		}
	case string:
		if strings.Contains(v, "\n") {
			b.WriteString(indent + key + ": |-\n")
			for _, ln := range splitLines(v) {
				b.WriteString(indent + "  " + ln + "\n")
			}
			return
		}
		b.WriteString(indent + key + ": " + jsonQuote(v) + "\n")
	default:
		b.WriteString(indent + key + ": " + scalarLiteral(v) + "\n")
	}
}

// splitLines splits on newlines after normalizing CRLF and dropping trailing
// newlines, so re-indented fragments never gain stray blank lines.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
