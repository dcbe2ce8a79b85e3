package auth

import (
	"strings"
	"testing"

	"wisp/internal/logging"
	"wisp/internal/storage"
)

func TestTokenGeneration(t *testing.T) {
	raw, prefix, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if !strings.HasPrefix(raw, TokenPrefix) {
		t.Errorf("token %q missing prefix", MaskToken(raw))
	}
	if !ValidFormat(raw) {
		t.Error("generated token fails its own format check")
	}
	if LookupPrefix(raw) != prefix {
		t.Error("lookup prefix mismatch")
	}

	other, _, _ := GenerateToken()
	if raw == other {
		t.Error("two generated tokens collided")
	}
}

func TestHashAndVerify(t *testing.T) {
	raw, _, _ := GenerateToken()

	hash, err := HashToken(raw)
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	if !VerifyToken(raw, hash) {
		t.Error("token should verify against its own hash")
	}

	wrong, _, _ := GenerateToken()
	if VerifyToken(wrong, hash) {
		t.Error("different token must not verify")
	}
}

func TestValidFormat(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"missing prefix", strings.Repeat("ab", 32), false},
		{"short secret", TokenPrefix + "abcd", false},
		{"non-hex secret", TokenPrefix + strings.Repeat("zz", 32), false},
		{"valid", TokenPrefix + strings.Repeat("ab", 32), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidFormat(tt.token); got != tt.want {
				t.Errorf("ValidFormat(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestMaskToken(t *testing.T) {
	raw, _, _ := GenerateToken()
	masked := MaskToken(raw)
	if strings.Contains(masked, raw[len(TokenPrefix)+8:]) {
		t.Error("mask leaks the secret")
	}
	if MaskToken("short") != "****" {
		t.Error("short input should mask fully")
	}
}

func newTestStore(t *testing.T) *KeyStore {
	t.Helper()
	db, err := storage.Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ks, err := NewKeyStore(db.Conn(), logging.Discard())
	if err != nil {
		t.Fatalf("NewKeyStore: %v", err)
	}
	return ks
}

func TestIssueAndVerify(t *testing.T) {
	ks := newTestStore(t)

	key, raw, err := ks.Issue("editor-a")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if key.ID == "" {
		t.Error("issued key has no id")
	}

	got, ok := ks.Verify(raw)
	if !ok {
		t.Fatal("issued token should verify")
	}
	if got.ID != key.ID {
		t.Errorf("verified key id = %s, want %s", got.ID, key.ID)
	}

	if _, ok := ks.Verify(TokenPrefix + strings.Repeat("ab", 32)); ok {
		t.Error("unknown token must not verify")
	}
	if _, ok := ks.Verify("garbage"); ok {
		t.Error("malformed token must not verify")
	}
}

func TestRevoke(t *testing.T) {
	ks := newTestStore(t)

	key, raw, _ := ks.Issue("editor-b")
	if err := ks.Revoke(key.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, ok := ks.Verify(raw); ok {
		t.Error("revoked token must not verify")
	}
	if err := ks.Revoke("missing-id"); err == nil {
		t.Error("revoking an unknown id should fail")
	}
}

func TestList(t *testing.T) {
	ks := newTestStore(t)

	ks.Issue("one")
	ks.Issue("two")

	keys, err := ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("List returned %d keys, want 2", len(keys))
	}
	for _, k := range keys {
		if k.TokenHash != "" {
			t.Error("List must not expose hashes")
		}
	}
}
