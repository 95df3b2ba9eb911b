// Package secrets seals carrier account numbers at rest.
package secrets

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

const sealedPrefix = "v1:"

var (
	ErrMissingKey     = errors.New("sealing key is required")
	ErrInvalidKey     = errors.New("sealing key must be 32 bytes for AES-256")
	ErrNotSealed      = errors.New("value is not sealed")
	ErrSealedTooShort = errors.New("sealed value too short")
)

// Sealer binds each sealed value to an owner so a ciphertext copied onto another
// row fails to open.
type Sealer interface {
	Seal(owner, plaintext string) (string, error)
	Open(owner, sealed string) (string, error)
}

type accountSealer struct {
	aead cipher.AEAD
}

func NewSealer(key string) (Sealer, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &accountSealer{aead: aead}, nil
}

// Seal returns an empty string for an empty account number.
func (s *accountSealer) Seal(owner, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(owner))
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *accountSealer) Open(owner, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	encoded, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return "", ErrNotSealed
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}
	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrSealedTooShort
	}
	plaintext, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], []byte(owner))
	if err != nil {
		return "", fmt.Errorf("failed to open sealed value: %w", err)
	}
	return string(plaintext), nil
}

// Mask keeps the last four characters for logs and printed documents.
func Mask(account string) string {
	account = strings.TrimSpace(account)
	if account == "" {
		return ""
	}
	if len(account) <= 4 {
		return strings.Repeat("*", len(account))
	}
	return strings.Repeat("*", len(account)-4) + account[len(account)-4:]
}
