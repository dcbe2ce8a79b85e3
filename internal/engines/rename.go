package engines

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"unicode"

	"wisp/internal/store"
	"wisp/internal/wisperr"
)

// RenameParams are the arguments to the rename command.
type RenameParams struct {
	Name    string `json:"name"`
	NewName string `json:"newName"`
}

// TextEdit is one whole-line replacement.
type TextEdit struct {
	Line    int    `json:"line"` // 1-indexed
	NewText string `json:"newText"`
}

// DocumentEdits groups edits per document.
type DocumentEdits struct {
	URI   string     `json:"uri"`
	Edits []TextEdit `json:"edits"`
}

// RenameResult is the full workspace edit for one rename.
type RenameResult struct {
	Name      string          `json:"name"`
	NewName   string          `json:"newName"`
	Documents []DocumentEdits `json:"documents"`
}

// Rename computes the workspace edit renaming a symbol everywhere its name
// appears as a whole identifier.
type Rename struct{}

// NewRename creates the rename handler.
func NewRename() *Rename {
	return &Rename{}
}

func (h *Rename) Validate(params json.RawMessage) (any, error) {
	var p RenameParams
	if err := decodeStrict(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, wisperr.New(wisperr.ValidationError, "rename requires a symbol name")
	}
	if !isIdentifier(p.NewName) {
		return nil, wisperr.Newf(wisperr.ValidationError, "%q is not a valid identifier", p.NewName)
	}
	if p.Name == p.NewName {
		return nil, wisperr.New(wisperr.ValidationError, "new name equals the current name")
	}
	return p, nil
}

func (h *Rename) Execute(ctx context.Context, args any, snap *store.Snapshot) (any, error) {
	p := args.(RenameParams)

	if len(snap.SymbolsNamed(p.Name)) == 0 {
		return nil, wisperr.Newf(wisperr.ExecutionError, "no symbol named %q in the workspace", p.Name)
	}

	result := RenameResult{Name: p.Name, NewName: p.NewName}
	for _, uri := range sortedURIs(snap) {
		doc, _ := snap.Document(uri)
		var edits []TextEdit
		for i, line := range strings.Split(doc.Text, "\n") {
			replaced, changed := replaceIdentifier(line, p.Name, p.NewName)
			if changed {
				edits = append(edits, TextEdit{Line: i + 1, NewText: replaced})
			}
		}
		if len(edits) > 0 {
			result.Documents = append(result.Documents, DocumentEdits{URI: uri, Edits: edits})
		}
	}
	return result, nil
}

func sortedURIs(snap *store.Snapshot) []string {
	uris := snap.URIs()
	sort.Strings(uris)
	return uris
}

// replaceIdentifier substitutes whole-identifier occurrences of name in
// line. Substring hits inside longer identifiers are left alone.
func replaceIdentifier(line, name, newName string) (string, bool) {
	var b strings.Builder
	changed := false
	for i := 0; i < len(line); {
		idx := strings.Index(line[i:], name)
		if idx < 0 {
			b.WriteString(line[i:])
			break
		}
		start := i + idx
		end := start + len(name)
		if identBoundary(line, start, end) {
			b.WriteString(line[i:start])
			b.WriteString(newName)
			changed = true
		} else {
			b.WriteString(line[i:end])
		}
		i = end
	}
	return b.String(), changed
}

func identBoundary(line string, start, end int) bool {
	if start > 0 && isIdentRune(rune(line[start-1])) {
		return false
	}
	if end < len(line) && isIdentRune(rune(line[end])) {
		return false
	}
	return true
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && unicode.IsDigit(r) {
			return false
		}
		if !isIdentRune(r) {
			return false
		}
	}
	return true
}
