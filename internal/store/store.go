// Package store holds the versioned workspace model. Readers take immutable
// snapshots; a single writer applies mutations and publishes new versions.
package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"wisp/internal/symbols"
	"wisp/internal/wisperr"
)

// Document is one tracked file's content. Seq counts how many times the
// document has been written, independent of the workspace version.
type Document struct {
	URI  string
	Text string
	Seq  int64
}

// Snapshot is an immutable view of the workspace at one version. Handed-out
// snapshots stay valid forever; later versions never modify them.
type Snapshot struct {
	version       uint64
	documents     map[string]Document
	symbolsByURI  map[string][]symbols.Symbol
	symbolsByName map[string][]symbols.Symbol
	callees       map[string][]string
	callers       map[string][]string
}

// Version returns the snapshot's workspace version.
func (s *Snapshot) Version() uint64 { return s.version }

// Document returns the document at uri.
func (s *Snapshot) Document(uri string) (Document, bool) {
	d, ok := s.documents[uri]
	return d, ok
}

// DocumentCount returns the number of tracked documents.
func (s *Snapshot) DocumentCount() int { return len(s.documents) }

// URIs returns every tracked document URI.
func (s *Snapshot) URIs() []string {
	out := make([]string, 0, len(s.documents))
	for uri := range s.documents {
		out = append(out, uri)
	}
	return out
}

// SymbolsNamed returns symbols with the exact name.
func (s *Snapshot) SymbolsNamed(name string) []symbols.Symbol {
	return s.symbolsByName[name]
}

// SymbolsIn returns the symbols declared in uri.
func (s *Snapshot) SymbolsIn(uri string) []symbols.Symbol {
	return s.symbolsByURI[uri]
}

// SymbolCount returns the number of distinct symbol names.
func (s *Snapshot) SymbolCount() int { return len(s.symbolsByName) }

// EachSymbolName visits every distinct symbol name until fn returns false.
func (s *Snapshot) EachSymbolName(fn func(name string) bool) {
	for name := range s.symbolsByName {
		if !fn(name) {
			return
		}
	}
}

// Callees returns the names referenced from within name's definition.
func (s *Snapshot) Callees(name string) []string { return s.callees[name] }

// Callers returns the names whose definitions reference name.
func (s *Snapshot) Callers(name string) []string { return s.callers[name] }

// Mutation is one workspace edit. Implementations validate before any state
// is touched; a validation failure leaves the published snapshot unchanged.
type Mutation interface {
	validate(cur *Snapshot) error
	apply(ctx context.Context, st *Store, next *Snapshot) error
}

// Store publishes snapshots and serializes mutations.
type Store struct {
	mu        sync.Mutex // writer lock; readers never take it
	current   atomic.Pointer[Snapshot]
	extractor *symbols.Extractor
	log       *slog.Logger
}

// New creates a Store publishing an empty version-0 snapshot.
func New(extractor *symbols.Extractor, log *slog.Logger) *Store {
	st := &Store{extractor: extractor, log: log}
	st.current.Store(emptySnapshot(0))
	return st
}

func emptySnapshot(version uint64) *Snapshot {
	return &Snapshot{
		version:       version,
		documents:     map[string]Document{},
		symbolsByURI:  map[string][]symbols.Symbol{},
		symbolsByName: map[string][]symbols.Symbol{},
		callees:       map[string][]string{},
		callers:       map[string][]string{},
	}
}

// Snapshot returns the current snapshot. Constant time, never blocks on
// writers.
func (st *Store) Snapshot() *Snapshot {
	return st.current.Load()
}

// Version returns the current workspace version.
func (st *Store) Version() uint64 {
	return st.current.Load().version
}

// Apply validates and applies one mutation, publishing the next version.
// On a rejected mutation the version does not advance.
func (st *Store) Apply(ctx context.Context, m Mutation) (uint64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	cur := st.current.Load()
	if err := m.validate(cur); err != nil {
		return cur.version, err
	}

	next := cloneSnapshot(cur)
	next.version = cur.version + 1
	if err := m.apply(ctx, st, next); err != nil {
		return cur.version, err
	}

	rebuildCallers(next)
	st.current.Store(next)

	st.log.Debug("mutation applied",
		"version", next.version,
		"documents", len(next.documents))
	return next.version, nil
}

// cloneSnapshot copies the index maps so the new version can diverge without
// touching snapshots already handed out. Values (documents, symbol slices)
// are shared until replaced.
func cloneSnapshot(cur *Snapshot) *Snapshot {
	next := &Snapshot{
		documents:     make(map[string]Document, len(cur.documents)),
		symbolsByURI:  make(map[string][]symbols.Symbol, len(cur.symbolsByURI)),
		symbolsByName: map[string][]symbols.Symbol{},
		callees:       make(map[string][]string, len(cur.callees)),
		callers:       map[string][]string{},
	}
	for k, v := range cur.documents {
		next.documents[k] = v
	}
	for k, v := range cur.symbolsByURI {
		next.symbolsByURI[k] = v
	}
	for k, v := range cur.callees {
		next.callees[k] = v
	}
	return next
}

// UpsertDocument inserts or replaces one document and refreshes its symbols.
type UpsertDocument struct {
	URI  string
	Text string
}

func (m UpsertDocument) validate(cur *Snapshot) error {
	if m.URI == "" {
		return wisperr.New(wisperr.MutationRejected, "upsert with empty uri")
	}
	if !utf8.ValidString(m.Text) {
		return wisperr.Newf(wisperr.MutationRejected, "document %s is not valid UTF-8", m.URI)
	}
	return nil
}

func (m UpsertDocument) apply(ctx context.Context, st *Store, next *Snapshot) error {
	prev, existed := next.documents[m.URI]
	doc := Document{URI: m.URI, Text: m.Text, Seq: 1}
	if existed {
		doc.Seq = prev.Seq + 1
	}
	next.documents[m.URI] = doc

	syms, err := st.extractor.ExtractSource(ctx, m.URI, []byte(m.Text))
	if err != nil {
		// Extraction failure degrades the symbol index, not the document.
		st.log.Warn("symbol extraction failed", "uri", m.URI, "error", err)
		syms = nil
	}
	replaceDocumentSymbols(next, m.URI, syms)
	return nil
}

// DeleteDocument removes one document and its symbols.
type DeleteDocument struct {
	URI string
}

func (m DeleteDocument) validate(cur *Snapshot) error {
	if m.URI == "" {
		return wisperr.New(wisperr.MutationRejected, "delete with empty uri")
	}
	if _, ok := cur.documents[m.URI]; !ok {
		return wisperr.Newf(wisperr.MutationRejected, "delete of untracked document %s", m.URI)
	}
	return nil
}

func (m DeleteDocument) apply(ctx context.Context, st *Store, next *Snapshot) error {
	delete(next.documents, m.URI)
	replaceDocumentSymbols(next, m.URI, nil)
	return nil
}

// ReplaceAll swaps the entire workspace in one version step. Used by the
// SCIP seeder. References, when given, override the scanned edges.
type ReplaceAll struct {
	Documents  []Document
	Symbols    map[string][]symbols.Symbol
	References map[string][]string
}

func (m ReplaceAll) validate(cur *Snapshot) error {
	seen := make(map[string]struct{}, len(m.Documents))
	for _, d := range m.Documents {
		if d.URI == "" {
			return wisperr.New(wisperr.MutationRejected, "bulk replace contains a document with empty uri")
		}
		if _, dup := seen[d.URI]; dup {
			return wisperr.Newf(wisperr.MutationRejected, "bulk replace contains duplicate uri %s", d.URI)
		}
		seen[d.URI] = struct{}{}
	}
	return nil
}

func (m ReplaceAll) apply(ctx context.Context, st *Store, next *Snapshot) error {
	next.documents = make(map[string]Document, len(m.Documents))
	next.symbolsByURI = map[string][]symbols.Symbol{}
	next.symbolsByName = map[string][]symbols.Symbol{}
	next.callees = map[string][]string{}

	for _, d := range m.Documents {
		if d.Seq == 0 {
			d.Seq = 1
		}
		next.documents[d.URI] = d
	}

	for uri, syms := range m.Symbols {
		setDocumentSymbols(next, uri, syms)
	}
	for _, d := range m.Documents {
		if _, ok := m.Symbols[d.URI]; ok {
			continue
		}
		syms, err := st.extractor.ExtractSource(ctx, d.URI, []byte(d.Text))
		if err != nil {
			st.log.Warn("symbol extraction failed", "uri", d.URI, "error", err)
			continue
		}
		setDocumentSymbols(next, d.URI, syms)
	}

	if m.References != nil {
		next.callees = make(map[string][]string, len(m.References))
		for k, v := range m.References {
			next.callees[k] = v
		}
	} else {
		for uri := range next.documents {
			scanDocumentReferences(next, uri)
		}
	}
	return nil
}

// replaceDocumentSymbols swaps uri's contribution to the symbol and
// reference indexes. Pass nil symbols to remove the document entirely.
func replaceDocumentSymbols(next *Snapshot, uri string, syms []symbols.Symbol) {
	old := next.symbolsByURI[uri]
	for _, s := range old {
		delete(next.callees, s.Name)
	}
	if len(syms) == 0 {
		delete(next.symbolsByURI, uri)
	} else {
		next.symbolsByURI[uri] = syms
	}

	// symbolsByName is rebuilt from symbolsByURI; cheaper than surgically
	// removing one document's entries from shared slices.
	rebuildSymbolsByName(next)

	// Names this document declared that no longer exist anywhere must also
	// disappear from other functions' edges. Names never declared in the
	// workspace (SCIP cross-index edges) are left alone.
	vanished := map[string]struct{}{}
	for _, s := range old {
		if _, still := next.symbolsByName[s.Name]; !still {
			vanished[s.Name] = struct{}{}
		}
	}
	if len(vanished) > 0 {
		pruneReferencesTo(next, vanished)
	}

	if len(syms) > 0 {
		scanDocumentReferences(next, uri)
	}
}

// pruneReferencesTo drops edges whose target is in gone. Edge slices are
// shared with published snapshots, so a trimmed list is a fresh allocation.
func pruneReferencesTo(next *Snapshot, gone map[string]struct{}) {
	for caller, refs := range next.callees {
		first := -1
		for i, ref := range refs {
			if _, dead := gone[ref]; dead {
				first = i
				break
			}
		}
		if first < 0 {
			continue
		}
		trimmed := make([]string, 0, len(refs)-1)
		trimmed = append(trimmed, refs[:first]...)
		for _, ref := range refs[first+1:] {
			if _, dead := gone[ref]; !dead {
				trimmed = append(trimmed, ref)
			}
		}
		if len(trimmed) == 0 {
			delete(next.callees, caller)
		} else {
			next.callees[caller] = trimmed
		}
	}
}

func setDocumentSymbols(next *Snapshot, uri string, syms []symbols.Symbol) {
	if len(syms) == 0 {
		delete(next.symbolsByURI, uri)
		return
	}
	next.symbolsByURI[uri] = syms
	for _, s := range syms {
		next.symbolsByName[s.Name] = append(next.symbolsByName[s.Name], s)
	}
}

func rebuildSymbolsByName(next *Snapshot) {
	next.symbolsByName = map[string][]symbols.Symbol{}
	for _, syms := range next.symbolsByURI {
		for _, s := range syms {
			next.symbolsByName[s.Name] = append(next.symbolsByName[s.Name], s)
		}
	}
}

// scanDocumentReferences records, for each function or method declared in
// uri, which workspace symbol names its body mentions. A lexical
// approximation; the SCIP seed supplies precise edges when available.
func scanDocumentReferences(next *Snapshot, uri string) {
	doc, ok := next.documents[uri]
	if !ok {
		return
	}
	lines := splitLines(doc.Text)

	for _, sym := range next.symbolsByURI[uri] {
		if sym.Kind != "function" && sym.Kind != "method" {
			continue
		}
		body := sliceLines(lines, sym.Line, sym.EndLine)
		var refs []string
		seen := map[string]struct{}{sym.Name: {}}
		for _, tok := range identifiers(body) {
			if _, dup := seen[tok]; dup {
				continue
			}
			if _, known := next.symbolsByName[tok]; known {
				refs = append(refs, tok)
				seen[tok] = struct{}{}
			}
		}
		if len(refs) > 0 {
			next.callees[sym.Name] = refs
		} else {
			delete(next.callees, sym.Name)
		}
	}
}

func rebuildCallers(next *Snapshot) {
	next.callers = map[string][]string{}
	for caller, callees := range next.callees {
		for _, callee := range callees {
			next.callers[callee] = append(next.callers[callee], caller)
		}
	}
}

func splitLines(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i])
			start = i + 1
		}
	}
	return append(lines, text[start:])
}

func sliceLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	var out []byte
	for _, l := range lines[start-1 : end] {
		out = append(out, l...)
		out = append(out, '\n')
	}
	return string(out)
}

func identifiers(text string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 && !unicode.IsDigit(cur[0]) {
			out = append(out, string(cur))
		}
		cur = cur[:0]
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			cur = append(cur, r)
		} else {
			flush()
		}
	}
	flush()
	return out
}
