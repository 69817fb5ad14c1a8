package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

var ErrSecretTampered = errors.New("sealed secret could not be opened")

// SecretBox seals short secrets (gateway credentials) for storage at rest
type SecretBox struct {
	key [32]byte
}

// NewSecretBox builds a box from a base64 encoded 32 byte key
func NewSecretBox(encodedKey string) (*SecretBox, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid secret box key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secret box key must be 32 bytes, got %d", len(raw))
	}

	box := &SecretBox{}
	copy(box.key[:], raw)
	return box, nil
}

// Seal encrypts plaintext and returns nonce+ciphertext as base64
func (b *SecretBox) Seal(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal
func (b *SecretBox) Open(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(sealed) < 24 {
		return "", ErrSecretTampered
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &b.key)
	if !ok {
		return "", ErrSecretTampered
	}
	return string(plain), nil
}
