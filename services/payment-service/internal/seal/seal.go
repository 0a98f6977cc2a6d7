package seal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer encrypts provider credentials at rest with XChaCha20-Poly1305.
// The random nonce is prepended to the ciphertext.
type Sealer struct {
	key []byte
}

// NewSealer derives a sealer from a base64-encoded 32-byte key
// (CREDENTIALS_KEY). Raw 32-byte strings are accepted for dev setups.
func NewSealer(key string) (*Sealer, error) {
	if key == "" {
		return nil, errors.New("credentials key is required")
	}
	if decoded, err := base64.StdEncoding.DecodeString(key); err == nil && len(decoded) == chacha20poly1305.KeySize {
		return &Sealer{key: decoded}, nil
	}
	if len(key) == chacha20poly1305.KeySize {
		return &Sealer{key: []byte(key)}, nil
	}
	return nil, fmt.Errorf("credentials key must be %d bytes (raw or base64)", chacha20poly1305.KeySize)
}

func (s *Sealer) Seal(plaintext string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

func (s *Sealer) Open(sealed []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize() {
		return "", errors.New("sealed credential too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
