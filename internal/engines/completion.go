// Package engines holds the command handlers behind the registry. Each
// handler decodes its own typed parameters during validation and computes
// against the immutable snapshot captured at dispatch.
package engines

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"wisp/internal/store"
	"wisp/internal/wisperr"
)

// completionLimit caps one response's item count.
const completionLimit = 50

// CompletionParams are the arguments to the completion command.
type CompletionParams struct {
	URI    string `json:"uri"`
	Prefix string `json:"prefix"`
}

// CompletionItem is one suggested symbol.
type CompletionItem struct {
	Label     string `json:"label"`
	Kind      string `json:"kind"`
	Detail    string `json:"detail,omitempty"`
	URI       string `json:"uri"`
	SameFile  bool   `json:"sameFile"`
}

// Completion suggests workspace symbols matching a typed prefix.
type Completion struct{}

// NewCompletion creates the completion handler.
func NewCompletion() *Completion {
	return &Completion{}
}

func (h *Completion) Validate(params json.RawMessage) (any, error) {
	var p CompletionParams
	if err := decodeStrict(params, &p); err != nil {
		return nil, err
	}
	if p.Prefix == "" {
		return nil, wisperr.New(wisperr.ValidationError, "completion requires a non-empty prefix")
	}
	return p, nil
}

func (h *Completion) Execute(ctx context.Context, args any, snap *store.Snapshot) (any, error) {
	p := args.(CompletionParams)
	prefix := strings.ToLower(p.Prefix)

	var items []CompletionItem
	snap.EachSymbolName(func(name string) bool {
		if !strings.HasPrefix(strings.ToLower(name), prefix) {
			return true
		}
		for _, sym := range snap.SymbolsNamed(name) {
			items = append(items, CompletionItem{
				Label:    sym.Name,
				Kind:     sym.Kind,
				Detail:   sym.Signature,
				URI:      sym.URI,
				SameFile: sym.URI == p.URI,
			})
		}
		return true
	})

	// Same-file symbols first, then shortest label, then lexical.
	sort.Slice(items, func(i, j int) bool {
		if items[i].SameFile != items[j].SameFile {
			return items[i].SameFile
		}
		if len(items[i].Label) != len(items[j].Label) {
			return len(items[i].Label) < len(items[j].Label)
		}
		return items[i].Label < items[j].Label
	})

	if len(items) > completionLimit {
		items = items[:completionLimit]
	}
	return items, nil
}

// decodeStrict unmarshals params rejecting unknown fields, so a payload
// shaped for a different command fails validation instead of silently
// zero-filling.
func decodeStrict(params json.RawMessage, dst any) error {
	if len(params) == 0 {
		return wisperr.New(wisperr.ValidationError, "missing params")
	}
	dec := json.NewDecoder(strings.NewReader(string(params)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return wisperr.Wrap(wisperr.ValidationError, "decoding params", err)
	}
	return nil
}
