package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// SealedPrefix marks a value produced by Seal
const SealedPrefix = "enc:"

// ErrNotSealed is returned by Open for values without SealedPrefix
var ErrNotSealed = errors.New("value is not sealed")

// Sealer encrypts secrets before they are persisted in the attribute store
type Sealer struct {
	key []byte // 32 bytes for AES-256
}

// NewSealer creates a sealer with the given key
// The key should be 32 bytes for AES-256-GCM
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d", len(key))
	}
	return &Sealer{key: key}, nil
}

// NewSealerFromPassword derives the key from a password with SHA-256
func NewSealerFromPassword(password string) (*Sealer, error) {
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	hash := sha256.Sum256([]byte(password))
	return NewSealer(hash[:])
}

// LoadKeyFile reads a secret key file. A file holding the base64 encoding
// of exactly 32 bytes is used as the key; anything else is treated as a
// password.
func LoadKeyFile(path string) (*Sealer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret key file: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if raw, err := base64.StdEncoding.DecodeString(content); err == nil && len(raw) == 32 {
		return NewSealer(raw)
	}
	return NewSealerFromPassword(content)
}

func (s *Sealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext with AES-256-GCM and returns SealedPrefix
// followed by the base64 of nonce and ciphertext
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("cannot encrypt empty data")
	}
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return "", ErrNotSealed
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether value carries SealedPrefix
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}
