// Package symbols extracts symbol tables from document text with
// tree-sitter. Builds without cgo fall back to a no-op extractor.
package symbols

import "strings"

// Language identifies a supported source language.
type Language string

const (
	LangGo         Language = "go"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangJava       Language = "java"
)

// LanguageForURI maps a document URI to its language by extension.
func LanguageForURI(uri string) (Language, bool) {
	idx := strings.LastIndexByte(uri, '.')
	if idx < 0 {
		return "", false
	}
	switch strings.ToLower(uri[idx:]) {
	case ".go":
		return LangGo, true
	case ".js", ".mjs", ".cjs", ".jsx":
		return LangJavaScript, true
	case ".ts", ".mts":
		return LangTypeScript, true
	case ".tsx":
		return LangTSX, true
	case ".py":
		return LangPython, true
	case ".rs":
		return LangRust, true
	case ".java":
		return LangJava, true
	default:
		return "", false
	}
}

// Symbol is one extracted declaration.
type Symbol struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"` // "function", "method", "type"
	URI       string `json:"uri"`
	Line      int    `json:"line"`    // 1-indexed
	EndLine   int    `json:"endLine"` // 1-indexed
	Container string `json:"container,omitempty"`
	Signature string `json:"signature,omitempty"`
}
