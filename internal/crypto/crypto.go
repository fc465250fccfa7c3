// Package crypto provides the symmetric encryption service used to seal
// auth cookie payloads.
//
// Ciphertexts are authenticated: any modification, a different key, or a
// truncated value makes Decrypt fail. Output is URL-safe base64 without
// padding so it can be used as a cookie value without quoting.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the minimum secret length accepted by NewAEAD.
const MinSecretLength = 32

// keyInfo binds derived keys to this use so the same secret can safely seed
// other keys later.
const keyInfo = "stateless auth cookie v1"

var (
	// ErrShortSecret is returned by NewAEAD for secrets under MinSecretLength bytes.
	ErrShortSecret = fmt.Errorf("crypto: secret must be at least %d bytes", MinSecretLength)

	// ErrMalformed is returned when a ciphertext is not valid base64 or too short.
	ErrMalformed = errors.New("crypto: malformed ciphertext")

	// ErrTampered is returned when authentication of a ciphertext fails.
	ErrTampered = errors.New("crypto: message authentication failed")
)

// Service encrypts and decrypts short strings.
type Service interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AEAD implements Service with XChaCha20-Poly1305 and a random 24-byte nonce
// per message. The key is derived once and never changes afterwards, so an
// AEAD is safe for concurrent use.
type AEAD struct {
	key  []byte
	rand io.Reader
}

// NewAEAD derives a 256-bit key from secret with HKDF-SHA256.
func NewAEAD(secret string) (*AEAD, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrShortSecret
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}

	return &AEAD{key: key, rand: rand.Reader}, nil
}

// Encrypt seals plaintext and returns base64url(nonce || ciphertext || tag).
func (a *AEAD) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(a.key)
	if err != nil {
		return "", fmt.Errorf("crypto: init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(a.rand, nonce); err != nil {
		return "", fmt.Errorf("crypto: generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It returns ErrMalformed or ErrTampered, never a
// partially decrypted value.
//
// Decoding is strict: non-zero trailing bits and CR/LF are rejected, so every
// distinct string maps to distinct bytes before authentication.
func (a *AEAD) Decrypt(ciphertext string) (string, error) {
	if strings.ContainsAny(ciphertext, "\r\n") {
		return "", ErrMalformed
	}
	raw, err := base64.RawURLEncoding.Strict().DecodeString(ciphertext)
	if err != nil {
		return "", ErrMalformed
	}

	aead, err := chacha20poly1305.NewX(a.key)
	if err != nil {
		return "", fmt.Errorf("crypto: init cipher: %w", err)
	}

	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrMalformed
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrTampered
	}

	return string(plaintext), nil
}

var _ Service = (*AEAD)(nil)
