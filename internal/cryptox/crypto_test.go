package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase64RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"ascii", []byte("hello")},
		{"binary", []byte{0x00, 0xff, 0x10, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := DecodeBase64(EncodeBase64(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.data, decoded)
		})
	}
}

func TestDecodeBase64Invalid(t *testing.T) {
	_, err := DecodeBase64("not base64!!!")
	assert.Error(t, err)
}

func TestRandomBytes(t *testing.T) {
	a, err := RandomBytes(SaltLen)
	require.NoError(t, err)
	require.Len(t, a, SaltLen)

	b, err := RandomBytes(SaltLen)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")

	k1 := DeriveKey([]byte("482913"), salt)
	k2 := DeriveKey([]byte("482913"), salt)
	k3 := DeriveKey([]byte("000000"), salt)

	require.Len(t, k1, KeyLen)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestDeriveKeySaltMatters(t *testing.T) {
	k1 := DeriveKey([]byte("482913"), []byte("0123456789abcdef"))
	k2 := DeriveKey([]byte("482913"), []byte("fedcba9876543210"))
	assert.NotEqual(t, k1, k2)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := RandomBytes(KeyLen)
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"empty", ""},
		{"ascii", "session=abc123; theme=dark"},
		{"unicode", "탭 스냅샷 → ünïcode ✓"},
		{"json", `{"scroll":{"x":0,"y":1480}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := Encrypt(tt.plaintext, key)
			require.NoError(t, err)
			assert.NotEqual(t, tt.plaintext, ct)

			pt, err := Decrypt(ct, key)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, pt)
		})
	}
}

func TestEncryptNonceUnique(t *testing.T) {
	key, err := RandomBytes(KeyLen)
	require.NoError(t, err)

	a, err := Encrypt("same plaintext", key)
	require.NoError(t, err)
	b, err := Encrypt("same plaintext", key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecryptWrongKey(t *testing.T) {
	key, err := RandomBytes(KeyLen)
	require.NoError(t, err)
	other, err := RandomBytes(KeyLen)
	require.NoError(t, err)

	ct, err := Encrypt("secret", key)
	require.NoError(t, err)

	_, err = Decrypt(ct, other)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptTampered(t *testing.T) {
	key, err := RandomBytes(KeyLen)
	require.NoError(t, err)

	ct, err := Encrypt("secret", key)
	require.NoError(t, err)

	raw, err := DecodeBase64(ct)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01

	_, err = Decrypt(EncodeBase64(raw), key)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = Decrypt("%%%not-base64%%%", key)
	assert.ErrorIs(t, err, ErrDecrypt)
}
