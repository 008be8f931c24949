package identity

import (
	"fmt"

	"github.com/carebase/carebase/internal/platform/crypto"
)

// fieldCodec seals and opens the PII fields of a user row. Encryption and
// blind indexing use separate keys; the index is derived from the plaintext
// before sealing so lookups never need decryption.
type fieldCodec struct {
	cipher  *crypto.Cipher
	indexer *crypto.BlindIndexer
}

func newFieldCodec(cipher *crypto.Cipher, indexer *crypto.BlindIndexer) *fieldCodec {
	return &fieldCodec{cipher: cipher, indexer: indexer}
}

// seal replaces PII plaintext with ciphertext in place and fills the blind
// index. Callers that hand the user back after storage must open it again.
func (c *fieldCodec) seal(u *User) error {
	u.EmailIndex = c.indexer.Index(u.Email)

	var err error
	if u.Email, err = c.cipher.EncryptField(u.Email); err != nil {
		return fmt.Errorf("seal email: %w", err)
	}
	if u.FirstName, err = c.cipher.EncryptField(u.FirstName); err != nil {
		return fmt.Errorf("seal first name: %w", err)
	}
	if u.LastName, err = c.cipher.EncryptField(u.LastName); err != nil {
		return fmt.Errorf("seal last name: %w", err)
	}
	return nil
}

// open restores PII plaintext in place.
func (c *fieldCodec) open(u *User) error {
	var err error
	if u.Email, err = c.cipher.DecryptField(u.Email); err != nil {
		return fmt.Errorf("open email: %w", err)
	}
	if u.FirstName, err = c.cipher.DecryptField(u.FirstName); err != nil {
		return fmt.Errorf("open first name: %w", err)
	}
	if u.LastName, err = c.cipher.DecryptField(u.LastName); err != nil {
		return fmt.Errorf("open last name: %w", err)
	}
	return nil
}

// emailIndex derives the lookup key for an email without touching the row.
func (c *fieldCodec) emailIndex(email string) string {
	return c.indexer.Index(email)
}
