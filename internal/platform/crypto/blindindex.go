package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// BlindIndexer computes deterministic keyed hashes of plaintext values so
// encrypted columns remain searchable by exact match. The index is not
// reversible and must use its own key, never the field-encryption key.
type BlindIndexer struct {
	key []byte
}

// NewBlindIndexer creates an indexer from a 32-byte key.
func NewBlindIndexer(key []byte) (*BlindIndexer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("blind index: key must be 32 bytes, got %d", len(key))
	}
	return &BlindIndexer{key: key}, nil
}

// Index returns the hex HMAC-SHA256 of the normalized plaintext. The value
// is lowercased and trimmed first so "  Bob@X.com " and "bob@x.com" collide,
// which is what equality search over user-entered data needs. Empty input
// indexes to empty.
func (b *BlindIndexer) Index(plaintext string) string {
	normalized := strings.ToLower(strings.TrimSpace(plaintext))
	if normalized == "" {
		return ""
	}

	mac := hmac.New(sha256.New, b.key)
	mac.Write([]byte(normalized))
	return hex.EncodeToString(mac.Sum(nil))
}
