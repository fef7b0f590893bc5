package compiler

import (
	"strings"
	"testing"

	"github.com/panelsmith/panelsmith/model"
)

func TestSplitESPHomeBlock_basic(t *testing.T) {
	block, rest := splitESPHomeBlock("esphome:\n  friendly_name: Panel\n\nwifi:\n  ssid: a\n")
	if block != "esphome:\n  friendly_name: Panel\n" {
		t.Errorf("block = %q", block)
	}
	if rest != "wifi:\n  ssid: a" {
		t.Errorf("rest = %q", rest)
	}
}

func TestSplitESPHomeBlock_skipsLeadingCommentsAndBlanks(t *testing.T) {
	block, rest := splitESPHomeBlock("# recipe header\n\nesphome:\n  x: 1\nwifi: {}\n")
	if block != "esphome:\n  x: 1" {
		t.Errorf("block = %q", block)
	}
	if rest != "wifi: {}" {
		t.Errorf("rest = %q", rest)
	}
}

func TestSplitESPHomeBlock_commentInsideBlockIsNotBoundary(t *testing.T) {
	block, _ := splitESPHomeBlock("esphome:\n  a: 1\n# note\n  b: 2\nwifi: {}")
	if block != "esphome:\n  a: 1\n# note\n  b: 2" {
		t.Errorf("block = %q", block)
	}
}

func TestSplitESPHomeBlock_absent(t *testing.T) {
	block, rest := splitESPHomeBlock("wifi: {}\n")
	if block != "" {
		t.Errorf("block = %q, want empty", block)
	}
	if rest != "wifi: {}\n" {
		t.Errorf("rest = %q, want original text untouched", rest)
	}
}

func TestSplitESPHomeBlock_bomTolerated(t *testing.T) {
	block, _ := splitESPHomeBlock("﻿esphome:\n  x: 1\nwifi: {}")
	if !strings.Contains(block, "esphome:") {
		t.Errorf("block = %q, want esphome block found through BOM", block)
	}
}

func TestSplitESPHomeBlock_contentBeforeBlockIsDropped(t *testing.T) {
	block, rest := splitESPHomeBlock("logger:\nesphome:\n  x: 1\n")
	if block != "esphome:\n  x: 1\n" {
		t.Errorf("block = %q", block)
	}
	if rest != "" {
		t.Errorf("rest = %q, want empty (lines before the block are not kept)", rest)
	}
}

func TestApplyUserInjection_preMarkerReplaced(t *testing.T) {
	adv := model.Advanced{YAMLPre: "sensor:\n  - platform: uptime\n"}
	got := applyUserInjection("a: 1\n#__USER_YAML_PRE__\nb: 2\n", adv)
	want := "a: 1\nsensor:\n  - platform: uptime\nb: 2\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplyUserInjection_preNoMarkerPrepends(t *testing.T) {
	adv := model.Advanced{YAMLPre: "sensor: []\n"}
	got := applyUserInjection("a: 1\n", adv)
	if got != "sensor: []\n\na: 1\n" {
		t.Errorf("got %q", got)
	}
}

func TestApplyUserInjection_emptyPreStripsMarker(t *testing.T) {
	got := applyUserInjection("a: 1\n#__USER_YAML_PRE__\nb: 2\n", model.Advanced{})
	if got != "a: 1\n\nb: 2\n" {
		t.Errorf("got %q", got)
	}
}

func TestApplyUserInjection_postMarkerReplaced(t *testing.T) {
	adv := model.Advanced{YAMLPost: "switch: []\n"}
	got := applyUserInjection("a: 1\n#__USER_YAML_POST__\n", adv)
	if got != "a: 1\nswitch: []\n" {
		t.Errorf("got %q", got)
	}
}

func TestApplyUserInjection_postNoMarkerAppends(t *testing.T) {
	adv := model.Advanced{YAMLPost: "switch: []\n"}
	got := applyUserInjection("a: 1\n\n", adv)
	if got != "a: 1\n\nswitch: []\n" {
		t.Errorf("got %q", got)
	}
}

func TestApplyUserInjection_namedMarkers(t *testing.T) {
	adv := model.Advanced{Markers: map[string]string{
		"SENSORS": "sensor:\n  - platform: wifi_signal\n",
		"":        "ignored",
	}}
	got := applyUserInjection("a: 1\n#__SENSORS__\nb: 2\n", adv)
	want := "a: 1\nsensor:\n  - platform: wifi_signal\nb: 2\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplyUserInjection_namedMarkerAbsentIsNoop(t *testing.T) {
	adv := model.Advanced{Markers: map[string]string{"SENSORS": "sensor: []\n"}}
	got := applyUserInjection("a: 1\n", adv)
	if got != "a: 1\n" {
		t.Errorf("got %q, want text unchanged", got)
	}
}

func TestInjectBindings_markerReplaced(t *testing.T) {
	got := injectBindings("x: 1\n#__HA_BINDINGS__\ny: 2\n", "sensor:\n  - platform: homeassistant\n")
	want := "x: 1\nsensor:\n  - platform: homeassistant\ny: 2\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInjectBindings_markerStrippedWhenEmpty(t *testing.T) {
	got := injectBindings("x: 1\n#__HA_BINDINGS__\ny: 2\n", "")
	if got != "x: 1\n\ny: 2\n" {
		t.Errorf("got %q", got)
	}
}

func TestInjectBindings_noMarkerAppends(t *testing.T) {
	got := injectBindings("x: 1\n", "sensor: []\n")
	if got != "x: 1\n\nsensor: []\n" {
		t.Errorf("got %q", got)
	}
}

func TestInjectBindings_noMarkerNothingToAdd(t *testing.T) {
	got := injectBindings("x: 1\n", "")
	if got != "x: 1\n" {
		t.Errorf("got %q, want text unchanged", got)
	}
}

func TestInjectPages_markerReplaced(t *testing.T) {
	got := injectPages("lvgl:\n#__LVGL_PAGES__\n", "  pages:\n    - id: main\n")
	want := "lvgl:\n  pages:\n    - id: main\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInjectPages_noMarkerAppends(t *testing.T) {
	got := injectPages("lvgl: {}\n", "  pages:\n    - id: main\n")
	want := "lvgl: {}\n\n  pages:\n    - id: main\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestHasTopLevelKey(t *testing.T) {
	tests := []struct {
		text string
		key  string
		want bool
	}{
		{"wifi:\n  ssid: a", "wifi", true},
		{"x: 1\nwifi: {}", "wifi", true},
		{"x: 1\n  wifi: {}", "wifi", false},
		{"mywifi: 1", "wifi", false},
		{"x: 1\n# wifi: note", "wifi", false},
		{"  \n\nwifi: {}", "wifi", true},
		{"", "wifi", false},
	}
	for _, tt := range tests {
		if got := hasTopLevelKey(tt.text, tt.key); got != tt.want {
			t.Errorf("hasTopLevelKey(%q, %q) = %v, want %v", tt.text, tt.key, got, tt.want)
		}
	}
}

func TestRstrip(t *testing.T) {
	if got := rstrip("a: 1\n\t \n"); got != "a: 1" {
		t.Errorf("rstrip = %q", got)
	}
	if got := rstrip("  keep leading"); got != "  keep leading" {
		t.Errorf("rstrip = %q", got)
	}
}
