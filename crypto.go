package social

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenCipher seals token secrets with AES-GCM before they reach storage.
// The key comes from configuration, never from the records themselves, so
// rotating it invalidates ciphertexts without touching the schema.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher creates a cipher from a 16, 24, or 32 byte key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &TokenCipher{aead: aead}, nil
}

// Encrypt seals the plaintext and returns base64(nonce || ciphertext). Empty
// input stays empty so optional columns round-trip unchanged.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or foreign-key ciphertexts fail.
func (c *TokenCipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext shorter than nonce")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}

	return string(plaintext), nil
}

// ParseEncryptionKey decodes a configured key. Keys are standard base64; a
// raw value of a valid AES length is accepted as-is for local setups.
func ParseEncryptionKey(value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}

	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		switch len(decoded) {
		case 16, 24, 32:
			return decoded, nil
		}
	}

	switch len(value) {
	case 16, 24, 32:
		return []byte(value), nil
	}

	return nil, fmt.Errorf("encryption key must decode to 16, 24, or 32 bytes")
}
