// Package phi seals free-text health fields (patient medical history) before
// they are written to the database.
package phi

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks a column value as ciphertext. Values without it are
// treated as legacy plaintext and returned unchanged by Open.
const sealedPrefix = "enc:v1:"

// FieldCipher provides AES-256-GCM encryption for individual string columns.
// A nil *FieldCipher passes values through untouched, which is how the server
// runs in development when no key is configured.
type FieldCipher struct {
	aead cipher.AEAD
}

func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("field cipher: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("field cipher: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("field cipher: create GCM: %w", err)
	}

	return &FieldCipher{aead: aead}, nil
}

// NewFieldCipherFromHex decodes a 64 character hex key. An empty key yields
// a nil cipher and no error.
func NewFieldCipherFromHex(hexKey string) (*FieldCipher, error) {
	if hexKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("field cipher: decode key: %w", err)
	}
	return NewFieldCipher(key)
}

// Seal encrypts plaintext and returns the prefixed base64 form. Empty strings
// stay empty so optional columns remain distinguishable from set ones.
func (f *FieldCipher) Seal(plaintext string) (string, error) {
	if f == nil || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, f.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("field cipher: generate nonce: %w", err)
	}

	sealed := f.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (f *FieldCipher) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if f == nil {
		return "", fmt.Errorf("field cipher: sealed value but no key configured")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("field cipher: base64 decode: %w", err)
	}

	nonceSize := f.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("field cipher: ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := f.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("field cipher: open: %w", err)
	}
	return string(plaintext), nil
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
