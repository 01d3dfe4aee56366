package security

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSealer(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{name: "valid 32-byte key", key: make([]byte, 32)},
		{name: "invalid short key", key: make([]byte, 16), wantErr: true},
		{name: "invalid long key", key: make([]byte, 64), wantErr: true},
		{name: "empty key", key: []byte{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSealer(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestSealOpen(t *testing.T) {
	s, err := NewSealerFromPassword("my-secure-password")
	require.NoError(t, err)

	key := "AQD1ZzRbAAAAABAAqS6D3ZPEaYxlZ2r8PAmtfg=="
	sealed, err := s.Seal(key)
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, key)

	again, err := s.Seal(key)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "every seal uses a fresh nonce")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, key, opened)
}

func TestOpenErrors(t *testing.T) {
	s, err := NewSealerFromPassword("one")
	require.NoError(t, err)
	other, err := NewSealerFromPassword("two")
	require.NoError(t, err)

	sealed, err := s.Seal("secret")
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.Error(t, err, "wrong key")

	_, err = s.Open("plain-value")
	assert.ErrorIs(t, err, ErrNotSealed)

	_, err = s.Open(SealedPrefix + "!!!")
	assert.Error(t, err)

	_, err = s.Open(SealedPrefix + base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)

	_, err = s.Seal("")
	assert.Error(t, err)
}

func TestLoadKeyFile(t *testing.T) {
	dir := t.TempDir()

	raw := []byte(strings.Repeat("k", 32))
	keyPath := filepath.Join(dir, "raw.key")
	require.NoError(t, os.WriteFile(keyPath, []byte(base64.StdEncoding.EncodeToString(raw)+"\n"), 0600))

	fromFile, err := LoadKeyFile(keyPath)
	require.NoError(t, err)
	direct, err := NewSealer(raw)
	require.NoError(t, err)

	sealed, err := direct.Seal("secret")
	require.NoError(t, err)
	opened, err := fromFile.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret", opened)

	pwPath := filepath.Join(dir, "password")
	require.NoError(t, os.WriteFile(pwPath, []byte("hunter2\n"), 0600))
	fromPassword, err := LoadKeyFile(pwPath)
	require.NoError(t, err)
	byPassword, err := NewSealerFromPassword("hunter2")
	require.NoError(t, err)
	sealed, err = byPassword.Seal("secret")
	require.NoError(t, err)
	opened, err = fromPassword.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret", opened)

	_, err = LoadKeyFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
