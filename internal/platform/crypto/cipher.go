// Package crypto provides the field-level protection primitives for patient
// data: AES-256-GCM field encryption, deterministic blind indexing for
// equality search over encrypted columns, argon2id password hashing, and fast
// one-way hashing for opaque tokens.
//
// Key separation invariant: the field-encryption key and the blind-index key
// are independent secrets. Reusing one for both would let a holder of the
// index key correlate ciphertexts.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// cipherMarker prefixes every value produced by EncryptField. A stored value
// without this marker predates field encryption.
const cipherMarker = "cb1:"

var (
	// ErrKeySize indicates the cipher key is not 32 bytes.
	ErrKeySize = errors.New("field cipher: key must be 32 bytes")

	// ErrCiphertextFormat indicates a marked value that cannot be decoded or
	// authenticated.
	ErrCiphertextFormat = errors.New("field cipher: malformed ciphertext")

	// ErrLegacyPlaintext indicates a stored value without the encryption
	// marker while legacy passthrough is disabled.
	ErrLegacyPlaintext = errors.New("field cipher: unencrypted legacy value")
)

// Cipher encrypts and decrypts individual database fields with AES-256-GCM.
// Each call uses a fresh random nonce, prepended to the ciphertext inside the
// base64 envelope.
type Cipher struct {
	aead            cipher.AEAD
	legacyPlaintext bool
}

// Option configures a Cipher.
type Option func(*Cipher)

// WithLegacyPlaintext controls how DecryptField treats stored values that
// lack the encryption marker. When enabled, such values are returned as-is
// (pre-encryption rows during a migration window). When disabled (the
// default) they are a hard error.
func WithLegacyPlaintext(enabled bool) Option {
	return func(c *Cipher) { c.legacyPlaintext = enabled }
}

// NewCipher creates a field cipher from a 32-byte AES-256 key.
func NewCipher(key []byte, opts ...Option) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w, got %d", ErrKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("field cipher: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("field cipher: create GCM: %w", err)
	}

	c := &Cipher{aead: aead}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EncryptField encrypts a single field value. Empty input is a no-op and
// returns empty output so optional columns stay NULL-equivalent.
func (c *Cipher) EncryptField(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("field cipher: generate nonce: %w", err)
	}

	// Seal appends ciphertext to the nonce, so the envelope is nonce || ct.
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return cipherMarker + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptField reverses EncryptField. Empty input returns empty output.
// Values without the encryption marker are either returned unchanged
// (legacy passthrough enabled) or rejected with ErrLegacyPlaintext.
func (c *Cipher) DecryptField(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}

	if !strings.HasPrefix(stored, cipherMarker) {
		if c.legacyPlaintext {
			return stored, nil
		}
		return "", ErrLegacyPlaintext
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, cipherMarker))
	if err != nil {
		return "", fmt.Errorf("%w: base64: %v", ErrCiphertextFormat, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: too short", ErrCiphertextFormat)
	}

	nonce, ct := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertextFormat, err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether a stored value carries the encryption marker.
func IsEncrypted(stored string) bool {
	return strings.HasPrefix(stored, cipherMarker)
}
