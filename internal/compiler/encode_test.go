package compiler

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONQuote_plain(t *testing.T) {
	if got := jsonQuote("hello"); got != `"hello"` {
		t.Errorf("jsonQuote(hello) = %s", got)
	}
}

func TestJSONQuote_embeddedQuotes(t *testing.T) {
	if got := jsonQuote(`say "hi"`); got != `"say \"hi\""` {
		t.Errorf("jsonQuote = %s", got)
	}
}

func TestJSONQuote_noHTMLEscaping(t *testing.T) {
	if got := jsonQuote("<b>&</b>"); got != `"<b>&</b>"` {
		t.Errorf("jsonQuote = %s, want raw angle brackets", got)
	}
}

func TestJSONQuote_newlineEscaped(t *testing.T) {
	if got := jsonQuote("a\nb"); got != `"a\nb"` {
		t.Errorf("jsonQuote = %s", got)
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1.0"},
		{0.5, "0.5"},
		{100, "100.0"},
		{-2, "-2.0"},
		{2.5, "2.5"},
		{1e21, "1e+21"},
	}
	for _, tt := range tests {
		if got := formatFloat(tt.in); got != tt.want {
			t.Errorf("formatFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestScalarLiteral(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{true, "true"},
		{false, "false"},
		{"x", `"x"`},
		{float64(2), "2"},
		{7, "7"},
		{json.Number("2.0"), "2.0"},
		{json.Number("24"), "24"},
	}
	for _, tt := range tests {
		if got := scalarLiteral(tt.in); got != tt.want {
			t.Errorf("scalarLiteral(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEmitKV_nilOmitted(t *testing.T) {
	var b strings.Builder
	emitKV(&b, "  ", "key", nil)
	if b.Len() != 0 {
		t.Errorf("emitKV(nil) wrote %q, want nothing", b.String())
	}
}

func TestEmitKV_scalarString(t *testing.T) {
	var b strings.Builder
	emitKV(&b, "    ", "text", "Hello")
	if got := b.String(); got != "    text: \"Hello\"\n" {
		t.Errorf("emitKV = %q", got)
	}
}

func TestEmitKV_list(t *testing.T) {
	var b strings.Builder
	emitKV(&b, "  ", "options", []any{"a", json.Number("1")})
	want := "  options:\n    - \"a\"\n    - 1\n"
	if got := b.String(); got != want {
		t.Errorf("emitKV list = %q, want %q", got, want)
	}
}

func TestEmitKV_mapSortedKeys(t *testing.T) {
	var b strings.Builder
	emitKV(&b, "", "pad", map[string]any{"top": json.Number("4"), "left": json.Number("2")})
	want := "pad:\n  left: 2\n  top: 4\n"
	if got := b.String(); got != want {
		t.Errorf("emitKV map = %q, want %q", got, want)
	}
}

func TestEmitKV_multilineBlockScalar(t *testing.T) {
	var b strings.Builder
	emitKV(&b, "    ", "on_press", "then:\n  - logger.log: hi")
	want := "    on_press: |-\n" +
		"      then:\n" +
		"        - logger.log: hi\n"
	if got := b.String(); got != want {
		t.Errorf("emitKV multiline = %q, want %q", got, want)
	}
}

func TestEmitKV_multilineDropsTrailingNewlines(t *testing.T) {
	var b strings.Builder
	emitKV(&b, "", "k", "a\nb\n\n")
	want := "k: |-\n  a\n  b\n"
	if got := b.String(); got != want {
		t.Errorf("emitKV = %q, want %q", got, want)
	}
}

func TestSplitLines(t *testing.T) {
	if got := splitLines(""); got != nil {
		t.Errorf("splitLines(empty) = %v, want nil", got)
	}
	got := splitLines("a\r\nb\n")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("splitLines = %v", got)
	}
	got = splitLines("a\n\nb")
	if len(got) != 3 || got[1] != "" {
		t.Errorf("splitLines keeps interior blanks, got %v", got)
	}
}
