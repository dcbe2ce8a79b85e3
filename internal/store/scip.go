package store

import (
	"context"
	"os"
	"path"
	"strings"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"wisp/internal/symbols"
	"wisp/internal/wisperr"
)

// SeedFromSCIP loads a SCIP protobuf index and replaces the workspace with
// its contents in a single version step. Reference edges come from the
// index's relationships, so they are precise where the lexical scan is not.
func (st *Store) SeedFromSCIP(ctx context.Context, indexPath string) (uint64, error) {
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return st.Version(), wisperr.Wrap(wisperr.ExecutionError, "reading scip index", err)
	}

	var index scippb.Index
	if err := proto.Unmarshal(data, &index); err != nil {
		return st.Version(), wisperr.Wrap(wisperr.ExecutionError, "parsing scip index", err)
	}

	root := ""
	if index.Metadata != nil {
		root = index.Metadata.ProjectRoot
	}

	mutation := ReplaceAll{
		Symbols:    map[string][]symbols.Symbol{},
		References: map[string][]string{},
	}

	for _, doc := range index.Documents {
		uri := documentURI(root, doc.RelativePath)
		text := string(doc.Text)
		mutation.Documents = append(mutation.Documents, Document{URI: uri, Text: text})

		defRanges := definitionRanges(doc)
		for _, info := range doc.Symbols {
			name := displayName(info)
			if name == "" {
				continue
			}
			sym := symbols.Symbol{
				Name: name,
				Kind: scipKind(info.Kind),
				URI:  uri,
			}
			if rng, ok := defRanges[info.Symbol]; ok {
				sym.Line = rng[0]
				sym.EndLine = rng[1]
			}
			mutation.Symbols[uri] = append(mutation.Symbols[uri], sym)

			for _, rel := range info.Relationships {
				if rel.IsReference || rel.IsImplementation {
					if callee := lastDescriptor(rel.Symbol); callee != "" {
						mutation.References[name] = append(mutation.References[name], callee)
					}
				}
			}
		}
	}

	return st.Apply(ctx, mutation)
}

// documentURI joins the index's project root with a document path. SCIP
// roots are already file URIs; bare relative paths get the scheme added.
func documentURI(root, relative string) string {
	if root == "" {
		return "file:///" + strings.TrimPrefix(relative, "/")
	}
	return strings.TrimSuffix(root, "/") + "/" + path.Clean(relative)
}

// definitionRanges maps symbol IDs to their [startLine, endLine], 1-indexed.
func definitionRanges(doc *scippb.Document) map[string][2]int {
	out := make(map[string][2]int)
	for _, occ := range doc.Occurrences {
		if occ.SymbolRoles&int32(scippb.SymbolRole_Definition) == 0 {
			continue
		}
		if len(occ.Range) < 3 {
			continue
		}
		start := int(occ.Range[0]) + 1
		end := start
		if len(occ.Range) == 4 {
			end = int(occ.Range[2]) + 1
		}
		out[occ.Symbol] = [2]int{start, end}
	}
	return out
}

func displayName(info *scippb.SymbolInformation) string {
	if info.DisplayName != "" {
		return info.DisplayName
	}
	return lastDescriptor(info.Symbol)
}

// lastDescriptor pulls the trailing descriptor name out of a SCIP symbol ID
// like "scip-go gomod example . . `pkg/a`/NewWidget()."
func lastDescriptor(symbolID string) string {
	s := strings.TrimRight(symbolID, ".#)( ")
	if idx := strings.LastIndexAny(s, "/#."); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.Trim(s, "`")
}

func scipKind(kind scippb.SymbolInformation_Kind) string {
	switch kind {
	case scippb.SymbolInformation_Function:
		return "function"
	case scippb.SymbolInformation_Method:
		return "method"
	default:
		return "type"
	}
}
