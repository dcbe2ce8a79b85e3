// Package fingerprint derives stable request identities from payloads.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Of computes a hex digest of the payload that is invariant under JSON key
// ordering. Two payloads with the same fields and values always produce the
// same fingerprint regardless of how the editor serialized them.
func Of(payload []byte) (string, error) {
	if len(payload) == 0 {
		return hashBytes(nil), nil
	}

	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return "", fmt.Errorf("fingerprint payload: %w", err)
	}

	var b strings.Builder
	writeCanonical(&b, v)
	return hashBytes([]byte(b.String())), nil
}

// Key builds the cache key for a command and its payload fingerprint.
func Key(command, digest string) string {
	return command + ":" + digest
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// writeCanonical renders v with object keys sorted lexicographically so the
// digest ignores the serialization order of the source document.
func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kj, _ := json.Marshal(k)
			b.Write(kj)
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
	default:
		ej, _ := json.Marshal(t)
		b.Write(ej)
	}
}
