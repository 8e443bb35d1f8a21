// Package cryptox holds the encoding and crypto primitives shared by the
// PIN and archive layers: base64/UTF-8 conversion, random byte generation,
// AES-256-GCM and Argon2id key derivation.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters used for every derivation in this project.
const (
	ArgonTime    = 3
	ArgonMemory  = 64 * 1024 // KiB
	ArgonThreads = 1
	KeyLen       = 32
	SaltLen      = 16

	gcmNonceLen = 12
)

// ErrDecrypt is returned when a ciphertext fails authentication, which
// covers both tampered data and a wrong key.
var ErrDecrypt = fmt.Errorf("decryption failed")

func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return b, nil
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("random bytes: %w", err)
	}
	return b, nil
}

// DeriveKey runs Argon2id over the given password and salt and returns
// 32 bytes of key material.
func DeriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, ArgonTime, ArgonMemory, ArgonThreads, KeyLen)
}

// Encrypt seals plaintext with AES-256-GCM under the given 32-byte key.
// A fresh 12-byte nonce is generated per call and prepended to the
// ciphertext; the result is base64 so it can travel inside JSON strings.
func Encrypt(plaintext string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}

	nonce, err := RandomBytes(gcmNonceLen)
	if err != nil {
		return "", err
	}

	sealed := aesgcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncodeBase64(sealed), nil
}

// Decrypt reverses Encrypt. Tampered ciphertext or a wrong key returns
// ErrDecrypt, never a silent wrong value.
func Decrypt(encoded string, key []byte) (string, error) {
	sealed, err := DecodeBase64(encoded)
	if err != nil {
		return "", ErrDecrypt
	}
	if len(sealed) < gcmNonceLen {
		return "", ErrDecrypt
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}

	plaintext, err := aesgcm.Open(nil, sealed[:gcmNonceLen], sealed[gcmNonceLen:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
