package apikeys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// keyBytes is the number of random bytes in a key (256 bits).
	keyBytes = 32
	// displayPrefixLen is how much of the plaintext is kept for display.
	displayPrefixLen = 10
)

// Generator creates and hashes API keys.
type Generator struct{}

// NewGenerator creates a new key generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate creates a new key.
// Format: <prefix><base64url(32 random bytes)>, e.g. tl-env-abc123...
// Returns the plaintext, its SHA-256 hex hash, and the display prefix
// (first 10 characters plus an ellipsis).
func (g *Generator) Generate(prefix string) (plaintext, hash, displayPrefix string, err error) {
	randomBytes := make([]byte, keyBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	plaintext = prefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	hash = g.Hash(plaintext)

	displayPrefix = plaintext
	if len(plaintext) > displayPrefixLen {
		displayPrefix = plaintext[:displayPrefixLen]
	}
	displayPrefix += "..."

	return plaintext, hash, displayPrefix, nil
}

// Hash computes the SHA-256 hex digest used for storage and lookup.
func (g *Generator) Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
