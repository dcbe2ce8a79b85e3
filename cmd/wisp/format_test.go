package main

import (
	"strings"
	"testing"
)

func TestRenderOutputJSON(t *testing.T) {
	out, err := renderOutput(map[string]any{"state": "serving", "pid": 42}, "json")
	if err != nil {
		t.Fatalf("renderOutput: %v", err)
	}
	if !strings.Contains(out, `"state": "serving"`) {
		t.Errorf("json output missing state: %s", out)
	}
}

func TestRenderOutputYAML(t *testing.T) {
	out, err := renderOutput(map[string]any{"state": "serving"}, "yaml")
	if err != nil {
		t.Fatalf("renderOutput: %v", err)
	}
	if !strings.Contains(out, "state: serving") {
		t.Errorf("yaml output missing state: %s", out)
	}
}

func TestRenderOutputText(t *testing.T) {
	v := map[string]any{
		"state": "serving",
		"store": map[string]any{"documents": 3},
	}
	out, err := renderOutput(v, "text")
	if err != nil {
		t.Fatalf("renderOutput: %v", err)
	}
	if !strings.Contains(out, "state: serving") {
		t.Errorf("text output missing state:\n%s", out)
	}
	if !strings.Contains(out, "  documents: 3") {
		t.Errorf("nested key not indented:\n%s", out)
	}
}

func TestRenderOutputUnknownFormat(t *testing.T) {
	if _, err := renderOutput(map[string]any{}, "xml"); err == nil {
		t.Error("unknown format accepted")
	}
}
