// Package encryption seals pages at rest with AES-GCM.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrCiphertextTooShort = errors.New("ciphertext is shorter than its nonce")

// PageCipher encrypts and authenticates page images. Each sealed image is the
// random nonce followed by the GCM output.
type PageCipher struct {
	gcm cipher.AEAD
}

// NewPageCipher selects AES-128, AES-192 or AES-256 by the key length.
func NewPageCipher(key []byte) (*PageCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &PageCipher{gcm: gcm}, nil
}

// ParseKey decodes a hex encoded key as found in configuration.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("encryption key is not hex: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, fmt.Errorf("encryption key is %d bytes, want 16, 24 or 32", len(key))
}

// Seal encrypts plaintext. aad is authenticated but not stored, so a sealed
// image only opens under the same aad; callers pass the page identity to keep
// pages from being swapped.
func (c *PageCipher) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize(), c.gcm.NonceSize()+len(plaintext)+c.gcm.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.gcm.Seal(nonce, nonce, plaintext, aad), nil
}

func (c *PageCipher) Open(sealed, aad []byte) ([]byte, error) {
	n := c.gcm.NonceSize()
	if len(sealed) < n {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := c.gcm.Open(nil, sealed[:n], sealed[n:], aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
