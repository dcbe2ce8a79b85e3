//go:build !cgo

package symbols

import "context"

// Extractor is a no-op stand-in when cgo is unavailable. Documents still
// flow through the store; they just carry no extracted symbols.
type Extractor struct{}

// NewExtractor returns the no-op extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// IsAvailable reports whether real extraction is compiled in.
func IsAvailable() bool {
	return false
}

// ExtractSource returns no symbols.
func (e *Extractor) ExtractSource(ctx context.Context, uri string, source []byte) ([]Symbol, error) {
	return nil, nil
}
