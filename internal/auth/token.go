// Package auth issues and verifies the bearer tokens required on socket
// transports. Tokens are random secrets stored only as bcrypt hashes.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// TokenPrefix marks wisp secrets so leaked strings are recognizable.
	TokenPrefix = "wisp_sk_"

	// tokenBytes is the random length of a token before hex encoding.
	tokenBytes = 32

	// lookupPrefixLen is how many leading secret characters are stored in
	// clear for hash lookup.
	lookupPrefixLen = 8

	bcryptCost = 12
)

// GenerateToken returns a fresh raw token and its lookup prefix. The raw
// token is shown once at creation; only the hash is persisted.
func GenerateToken() (string, string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating token: %w", err)
	}
	secret := hex.EncodeToString(buf)
	return TokenPrefix + secret, secret[:lookupPrefixLen], nil
}

// HashToken returns the bcrypt hash of the token's secret part.
func HashToken(token string) (string, error) {
	secret := strings.TrimPrefix(token, TokenPrefix)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing token: %w", err)
	}
	return string(hash), nil
}

// VerifyToken reports whether token matches hash.
func VerifyToken(token, hash string) bool {
	secret := strings.TrimPrefix(token, TokenPrefix)
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// LookupPrefix extracts the clear-text lookup prefix from a full token.
func LookupPrefix(token string) string {
	secret := strings.TrimPrefix(token, TokenPrefix)
	if len(secret) < lookupPrefixLen {
		return secret
	}
	return secret[:lookupPrefixLen]
}

// ValidFormat reports whether token is shaped like a wisp secret.
func ValidFormat(token string) bool {
	secret, ok := strings.CutPrefix(token, TokenPrefix)
	if !ok || len(secret) != tokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(secret)
	return err == nil
}

// MaskToken renders a token safe for logs and listings.
func MaskToken(token string) string {
	if len(token) < len(TokenPrefix)+lookupPrefixLen {
		return "****"
	}
	return token[:len(TokenPrefix)+lookupPrefixLen] + "****"
}
