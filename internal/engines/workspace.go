package engines

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"wisp/internal/store"
	"wisp/internal/symbols"
	"wisp/internal/wisperr"
)

// workspaceSymbolLimit caps one symbol listing.
const workspaceSymbolLimit = 200

// WorkspaceSymbolsParams are the arguments to workspace/symbols.
type WorkspaceSymbolsParams struct {
	Query string `json:"query,omitempty"`
}

// WorkspaceSymbols lists symbols across the workspace, optionally filtered
// by a case-insensitive substring.
type WorkspaceSymbols struct{}

// NewWorkspaceSymbols creates the handler.
func NewWorkspaceSymbols() *WorkspaceSymbols {
	return &WorkspaceSymbols{}
}

func (h *WorkspaceSymbols) Validate(params json.RawMessage) (any, error) {
	var p WorkspaceSymbolsParams
	if len(params) > 0 {
		if err := decodeStrict(params, &p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (h *WorkspaceSymbols) Execute(ctx context.Context, args any, snap *store.Snapshot) (any, error) {
	p := args.(WorkspaceSymbolsParams)
	query := strings.ToLower(p.Query)

	var out []symbols.Symbol
	for _, uri := range sortedURIs(snap) {
		for _, sym := range snap.SymbolsIn(uri) {
			if query != "" && !strings.Contains(strings.ToLower(sym.Name), query) {
				continue
			}
			out = append(out, sym)
			if len(out) >= workspaceSymbolLimit {
				return out, nil
			}
		}
	}
	return out, nil
}

// DocumentSymbolsParams are the arguments to workspace/documentSymbols.
type DocumentSymbolsParams struct {
	URI string `json:"uri"`
}

// DocumentSymbols lists the symbols declared in one document.
type DocumentSymbols struct{}

// NewDocumentSymbols creates the handler.
func NewDocumentSymbols() *DocumentSymbols {
	return &DocumentSymbols{}
}

func (h *DocumentSymbols) Validate(params json.RawMessage) (any, error) {
	var p DocumentSymbolsParams
	if err := decodeStrict(params, &p); err != nil {
		return nil, err
	}
	if p.URI == "" {
		return nil, wisperr.New(wisperr.ValidationError, "documentSymbols requires a uri")
	}
	return p, nil
}

func (h *DocumentSymbols) Execute(ctx context.Context, args any, snap *store.Snapshot) (any, error) {
	p := args.(DocumentSymbolsParams)

	if _, ok := snap.Document(p.URI); !ok {
		return nil, wisperr.Newf(wisperr.ExecutionError, "document %s is not tracked", p.URI)
	}

	syms := append([]symbols.Symbol(nil), snap.SymbolsIn(p.URI)...)
	sort.Slice(syms, func(i, j int) bool { return syms[i].Line < syms[j].Line })
	return syms, nil
}
