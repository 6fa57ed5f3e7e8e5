// Package auth secures the controller link: a shared password is stretched
// into a key, both ends prove they hold it, and the rest of the session is
// sealed with ChaCha20-Poly1305.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	AutoGenKeyLength = 16
	Base62Chars      = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	PBKDF2Iterations = 100000
	PBKDF2Salt       = "padbridge-link-v1"
	KeySize          = 32
	sessionInfo      = "padbridge-session-v1"
)

var ErrEmptyPassword = errors.New("password cannot be empty")

// GenerateKey creates a random base62 password.
func GenerateKey() (string, error) {
	randomBytes := make([]byte, AutoGenKeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	key := make([]byte, AutoGenKeyLength)
	for i, b := range randomBytes {
		key[i] = Base62Chars[int(b)%62]
	}
	return string(key), nil
}

// DeriveKey stretches a password to KeySize bytes with PBKDF2-SHA256.
func DeriveKey(password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	return pbkdf2.Key([]byte(password), []byte(PBKDF2Salt), PBKDF2Iterations, KeySize, sha256.New), nil
}

// DeriveSessionKey expands the long-term key and both handshake nonces into
// a per-connection key.
func DeriveSessionKey(key, serverNonce, clientNonce []byte) ([]byte, error) {
	salt := make([]byte, 0, len(clientNonce)+len(serverNonce))
	salt = append(salt, clientNonce...)
	salt = append(salt, serverNonce...)
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, salt, []byte(sessionInfo)), out); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return out, nil
}
