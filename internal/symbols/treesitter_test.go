//go:build cgo

package symbols

import (
	"context"
	"testing"
)

const goSample = `package sample

type Widget struct {
	ID string
}

func NewWidget(id string) *Widget {
	return &Widget{ID: id}
}

func (w *Widget) Render() string {
	return w.ID
}
`

func TestExtractGoSource(t *testing.T) {
	e := NewExtractor()

	syms, err := e.ExtractSource(context.Background(), "file:///sample.go", []byte(goSample))
	if err != nil {
		t.Fatalf("ExtractSource: %v", err)
	}

	byName := make(map[string]Symbol, len(syms))
	for _, s := range syms {
		byName[s.Name] = s
	}

	w, ok := byName["Widget"]
	if !ok {
		t.Fatal("expected Widget type symbol")
	}
	if w.Kind != "type" {
		t.Errorf("Widget kind = %q, want type", w.Kind)
	}

	fn, ok := byName["NewWidget"]
	if !ok {
		t.Fatal("expected NewWidget function symbol")
	}
	if fn.Kind != "function" {
		t.Errorf("NewWidget kind = %q, want function", fn.Kind)
	}

	m, ok := byName["Render"]
	if !ok {
		t.Fatal("expected Render method symbol")
	}
	if m.Kind != "method" {
		t.Errorf("Render kind = %q, want method", m.Kind)
	}
	if m.Container != "Widget" {
		t.Errorf("Render container = %q, want Widget", m.Container)
	}
}

func TestExtractUnsupportedLanguage(t *testing.T) {
	e := NewExtractor()
	syms, err := e.ExtractSource(context.Background(), "file:///notes.txt", []byte("plain text"))
	if err != nil {
		t.Fatalf("ExtractSource: %v", err)
	}
	if len(syms) != 0 {
		t.Errorf("got %d symbols for unsupported language, want 0", len(syms))
	}
}
