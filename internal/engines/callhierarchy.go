package engines

import (
	"context"
	"encoding/json"
	"sort"

	"wisp/internal/store"
	"wisp/internal/wisperr"
)

// maxHierarchyDepth bounds traversal so cyclic graphs terminate.
const maxHierarchyDepth = 5

// CallHierarchyParams are the arguments to the callHierarchy command.
type CallHierarchyParams struct {
	Name      string `json:"name"`
	Direction string `json:"direction"` // "incoming" or "outgoing"
	Depth     int    `json:"depth,omitempty"`
}

// CallNode is one vertex in the expanded hierarchy.
type CallNode struct {
	Name     string      `json:"name"`
	URI      string      `json:"uri,omitempty"`
	Children []*CallNode `json:"children,omitempty"`
}

// CallHierarchy expands the reference graph from a symbol, either towards
// its callers or its callees.
type CallHierarchy struct{}

// NewCallHierarchy creates the handler.
func NewCallHierarchy() *CallHierarchy {
	return &CallHierarchy{}
}

func (h *CallHierarchy) Validate(params json.RawMessage) (any, error) {
	var p CallHierarchyParams
	if err := decodeStrict(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, wisperr.New(wisperr.ValidationError, "callHierarchy requires a symbol name")
	}
	if p.Direction != "incoming" && p.Direction != "outgoing" {
		return nil, wisperr.Newf(wisperr.ValidationError, "direction must be incoming or outgoing, got %q", p.Direction)
	}
	if p.Depth <= 0 {
		p.Depth = 1
	}
	if p.Depth > maxHierarchyDepth {
		p.Depth = maxHierarchyDepth
	}
	return p, nil
}

func (h *CallHierarchy) Execute(ctx context.Context, args any, snap *store.Snapshot) (any, error) {
	p := args.(CallHierarchyParams)

	if len(snap.SymbolsNamed(p.Name)) == 0 {
		return nil, wisperr.Newf(wisperr.ExecutionError, "no symbol named %q in the workspace", p.Name)
	}

	neighbors := snap.Callees
	if p.Direction == "incoming" {
		neighbors = snap.Callers
	}

	root := &CallNode{Name: p.Name, URI: symbolURI(snap, p.Name)}
	expand(snap, root, neighbors, p.Depth, map[string]bool{p.Name: true})
	return root, nil
}

func expand(snap *store.Snapshot, node *CallNode, neighbors func(string) []string, depth int, onPath map[string]bool) {
	if depth == 0 {
		return
	}
	next := append([]string(nil), neighbors(node.Name)...)
	sort.Strings(next)
	for _, name := range next {
		if onPath[name] {
			// Cycle: include the vertex but stop expanding it.
			node.Children = append(node.Children, &CallNode{Name: name, URI: symbolURI(snap, name)})
			continue
		}
		child := &CallNode{Name: name, URI: symbolURI(snap, name)}
		onPath[name] = true
		expand(snap, child, neighbors, depth-1, onPath)
		delete(onPath, name)
		node.Children = append(node.Children, child)
	}
}

func symbolURI(snap *store.Snapshot, name string) string {
	if syms := snap.SymbolsNamed(name); len(syms) > 0 {
		return syms[0].URI
	}
	return ""
}
