package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestAEAD(t *testing.T) *AEAD {
	t.Helper()
	a, err := NewAEAD(testSecret)
	require.NoError(t, err)
	return a
}

func TestNewAEAD_RejectsShortSecret(t *testing.T) {
	_, err := NewAEAD("too-short")
	assert.ErrorIs(t, err, ErrShortSecret)
}

func TestAEAD_RoundTrip(t *testing.T) {
	a := newTestAEAD(t)

	for _, plaintext := range []string{"", "42:1700000000", strings.Repeat("x", 512)} {
		ciphertext, err := a.Encrypt(plaintext)
		require.NoError(t, err)

		got, err := a.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestAEAD_EncryptIsRandomized(t *testing.T) {
	a := newTestAEAD(t)

	first, err := a.Encrypt("7:1700000000")
	require.NoError(t, err)
	second, err := a.Encrypt("7:1700000000")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "nonce must differ per message")
}

func TestAEAD_CiphertextIsCookieSafe(t *testing.T) {
	a := newTestAEAD(t)

	ciphertext, err := a.Encrypt("123:1700000000")
	require.NoError(t, err)

	assert.NotContains(t, ciphertext, "=")
	assert.NotContains(t, ciphertext, ";")
	assert.NotContains(t, ciphertext, " ")
}

func TestAEAD_SingleBitFlipIsDetected(t *testing.T) {
	a := newTestAEAD(t)

	ciphertext, err := a.Encrypt("1:1700000000")
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	require.NoError(t, err)

	for i := 0; i < len(raw)*8; i++ {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[i/8] ^= 1 << (i % 8)

		_, err := a.Decrypt(base64.RawURLEncoding.EncodeToString(mutated))
		require.ErrorIs(t, err, ErrTampered, "bit %d", i)
	}
}

func TestAEAD_EncodedBitFlipIsDetected(t *testing.T) {
	a := newTestAEAD(t)

	// Different plaintext lengths leave different trailing bits in the last
	// base64 character.
	for _, plaintext := range []string{"1:1700000000", "12:1700000000", "123:1700000000"} {
		for n := 0; n < 8; n++ {
			ciphertext, err := a.Encrypt(plaintext)
			require.NoError(t, err)

			for i := 0; i < len(ciphertext)*8; i++ {
				mutated := []byte(ciphertext)
				mutated[i/8] ^= 1 << (i % 8)

				_, err := a.Decrypt(string(mutated))
				require.Error(t, err, "%q bit %d", ciphertext, i)
			}
		}
	}
}

func TestAEAD_RejectsNonCanonicalTrailingBits(t *testing.T) {
	a := newTestAEAD(t)

	// 13 bytes of plaintext + 40 bytes of nonce and tag = 53 bytes, which
	// encodes to 71 characters with 2 unused bits in the last one.
	ciphertext, err := a.Encrypt("1:1700000000x")
	require.NoError(t, err)
	require.Len(t, ciphertext, 71)

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	last := strings.IndexByte(alphabet, ciphertext[len(ciphertext)-1])
	require.GreaterOrEqual(t, last, 0)

	mutated := ciphertext[:len(ciphertext)-1] + string(alphabet[last^1])
	_, err = a.Decrypt(mutated)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestAEAD_RejectsLineBreaks(t *testing.T) {
	a := newTestAEAD(t)

	ciphertext, err := a.Encrypt("1:1700000000")
	require.NoError(t, err)

	for _, mutated := range []string{ciphertext + "\n", ciphertext[:10] + "\r\n" + ciphertext[10:]} {
		_, err := a.Decrypt(mutated)
		assert.ErrorIs(t, err, ErrMalformed)
	}
}

func TestAEAD_WrongKeyFails(t *testing.T) {
	a := newTestAEAD(t)
	other, err := NewAEAD(strings.Repeat("k", MinSecretLength))
	require.NoError(t, err)

	ciphertext, err := a.Encrypt("1:1700000000")
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrTampered)
}

func TestAEAD_MalformedInput(t *testing.T) {
	a := newTestAEAD(t)

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"too short", base64.RawURLEncoding.EncodeToString([]byte("short"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Decrypt(tt.input)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
