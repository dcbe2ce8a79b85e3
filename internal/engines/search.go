package engines

import (
	"context"
	"encoding/json"
	"sort"

	"wisp/internal/provider"
	"wisp/internal/store"
	"wisp/internal/symbols"
	"wisp/internal/wisperr"
)

// searchDefaultLimit is the result count when the caller names none.
const searchDefaultLimit = 10

// SearchParams are the arguments to workspace/search.
type SearchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchHit is one ranked result.
type SearchHit struct {
	Symbol symbols.Symbol `json:"symbol"`
	Score  float64        `json:"score"`
}

// Search ranks workspace symbols against a free-text query using the
// configured embedding provider.
type Search struct {
	provider provider.EmbeddingProvider
}

// NewSearch creates the handler.
func NewSearch(p provider.EmbeddingProvider) *Search {
	return &Search{provider: p}
}

func (h *Search) Validate(params json.RawMessage) (any, error) {
	var p SearchParams
	if err := decodeStrict(params, &p); err != nil {
		return nil, err
	}
	if p.Query == "" {
		return nil, wisperr.New(wisperr.ValidationError, "search requires a query")
	}
	if p.Limit <= 0 {
		p.Limit = searchDefaultLimit
	}
	return p, nil
}

func (h *Search) Execute(ctx context.Context, args any, snap *store.Snapshot) (any, error) {
	p := args.(SearchParams)

	var syms []symbols.Symbol
	var texts []string
	for _, uri := range sortedURIs(snap) {
		for _, sym := range snap.SymbolsIn(uri) {
			syms = append(syms, sym)
			text := sym.Name
			if sym.Signature != "" {
				text = sym.Signature
			}
			texts = append(texts, text)
		}
	}
	if len(syms) == 0 {
		return []SearchHit{}, nil
	}

	vecs, err := h.provider.Embed(ctx, append([]string{p.Query}, texts...))
	if err != nil {
		return nil, err
	}
	queryVec, symVecs := vecs[0], vecs[1:]

	hits := make([]SearchHit, len(syms))
	for i, sym := range syms {
		hits[i] = SearchHit{Symbol: sym, Score: provider.Cosine(queryVec, symVecs[i])}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if len(hits) > p.Limit {
		hits = hits[:p.Limit]
	}
	return hits, nil
}
