//go:build cgo

package symbols

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Extractor parses document text and pulls out declarations. Not safe for
// concurrent use; the store serializes extraction behind its writer lock.
type Extractor struct {
	parser *sitter.Parser
}

// NewExtractor creates a tree-sitter backed extractor.
func NewExtractor() *Extractor {
	return &Extractor{parser: sitter.NewParser()}
}

// IsAvailable reports whether real extraction is compiled in.
func IsAvailable() bool {
	return true
}

// ExtractSource parses source and returns its declarations. Unsupported
// languages yield no symbols and no error.
func (e *Extractor) ExtractSource(ctx context.Context, uri string, source []byte) ([]Symbol, error) {
	lang, ok := LanguageForURI(uri)
	if !ok {
		return nil, nil
	}

	tsLang, err := grammar(lang)
	if err != nil {
		return nil, err
	}

	e.parser.SetLanguage(tsLang)
	tree, err := e.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", uri, err)
	}
	root := tree.RootNode()

	var out []Symbol
	for _, n := range findNodes(root, functionNodeTypes(lang)) {
		if sym := functionSymbol(n, source, lang, uri); sym != nil {
			out = append(out, *sym)
		}
	}
	for _, n := range findNodes(root, typeNodeTypes(lang)) {
		if sym := typeSymbol(n, source, uri); sym != nil {
			out = append(out, *sym)
		}
	}
	return out, nil
}

func grammar(lang Language) (*sitter.Language, error) {
	switch lang {
	case LangGo:
		return golang.GetLanguage(), nil
	case LangJavaScript:
		return javascript.GetLanguage(), nil
	case LangTypeScript:
		return typescript.GetLanguage(), nil
	case LangTSX:
		return tsx.GetLanguage(), nil
	case LangPython:
		return python.GetLanguage(), nil
	case LangRust:
		return rust.GetLanguage(), nil
	case LangJava:
		return java.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
}

func functionNodeTypes(lang Language) []string {
	switch lang {
	case LangGo:
		return []string{"function_declaration", "method_declaration"}
	case LangJavaScript, LangTypeScript, LangTSX:
		return []string{"function_declaration", "method_definition"}
	case LangPython:
		return []string{"function_definition"}
	case LangRust:
		return []string{"function_item"}
	case LangJava:
		return []string{"method_declaration", "constructor_declaration"}
	default:
		return nil
	}
}

func typeNodeTypes(lang Language) []string {
	switch lang {
	case LangGo:
		return []string{"type_declaration"}
	case LangJavaScript, LangTypeScript, LangTSX:
		return []string{"class_declaration", "interface_declaration"}
	case LangPython:
		return []string{"class_definition"}
	case LangRust:
		return []string{"struct_item", "enum_item", "trait_item"}
	case LangJava:
		return []string{"class_declaration", "interface_declaration", "enum_declaration"}
	default:
		return nil
	}
}

// findNodes walks the tree collecting nodes whose type matches any of types.
func findNodes(root *sitter.Node, types []string) []*sitter.Node {
	if len(types) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(types))
	for _, t := range types {
		want[t] = struct{}{}
	}

	var out []*sitter.Node
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if _, ok := want[n.Type()]; ok {
			out = append(out, n)
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return out
}

func functionSymbol(node *sitter.Node, source []byte, lang Language, uri string) *Symbol {
	name := childIdentifier(node, source)
	if name == "" {
		return nil
	}

	kind := "function"
	container := ""
	if node.Type() == "method_declaration" || node.Type() == "method_definition" {
		kind = "method"
		container = receiverName(node, source, lang)
	}

	return &Symbol{
		Name:      name,
		Kind:      kind,
		URI:       uri,
		Line:      int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Container: container,
		Signature: firstLine(node, source),
	}
}

func typeSymbol(node *sitter.Node, source []byte, uri string) *Symbol {
	name := childIdentifier(node, source)
	if name == "" {
		return nil
	}
	return &Symbol{
		Name:      name,
		Kind:      "type",
		URI:       uri,
		Line:      int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Signature: firstLine(node, source),
	}
}

// childIdentifier returns the first identifier-like child of node.
func childIdentifier(node *sitter.Node, source []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		switch c.Type() {
		case "identifier", "field_identifier", "type_identifier", "property_identifier", "name":
			return c.Content(source)
		case "type_spec":
			// Go type_declaration wraps the name in a type_spec.
			return childIdentifier(c, source)
		}
	}
	return ""
}

// receiverName extracts the receiver type for Go methods; other languages
// resolve containers from lexical nesting, which the flat walk skips.
func receiverName(node *sitter.Node, source []byte, lang Language) string {
	if lang != LangGo {
		return ""
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		if c.Type() != "parameter_list" {
			continue
		}
		text := c.Content(source)
		text = strings.Trim(text, "()")
		text = strings.TrimPrefix(strings.TrimSpace(text), "*")
		if fields := strings.Fields(text); len(fields) > 0 {
			return strings.TrimPrefix(fields[len(fields)-1], "*")
		}
		return ""
	}
	return ""
}

func firstLine(node *sitter.Node, source []byte) string {
	text := node.Content(source)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSuffix(strings.TrimSpace(text), "{")
}
