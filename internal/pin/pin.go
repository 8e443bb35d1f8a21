// Package pin derives archive secrets from a user PIN.
//
// The PIN itself never leaves the process: only the Argon2id output
// (secret) and the salt are stored or transmitted. Verification
// re-derives and compares in constant time.
package pin

import (
	"crypto/subtle"
	"fmt"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/cryptox"
)

// PinLen is the required PIN length in digits.
const PinLen = 6

var ErrInvalidPin = fmt.Errorf("pin must be %d digits", PinLen)

// Derived is the output of a PIN derivation: both fields are base64.
type Derived struct {
	Secret string `json:"secret"`
	Salt   string `json:"salt"`
}

// Validate checks the PIN is exactly six ASCII digits.
func Validate(p string) error {
	if len(p) != PinLen {
		return ErrInvalidPin
	}
	for i := 0; i < len(p); i++ {
		if p[i] < '0' || p[i] > '9' {
			return ErrInvalidPin
		}
	}
	return nil
}

// Generate derives a fresh secret from the PIN with a new random salt.
func Generate(p string) (*Derived, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	salt, err := cryptox.RandomBytes(cryptox.SaltLen)
	if err != nil {
		return nil, err
	}
	secret := cryptox.DeriveKey([]byte(p), salt)
	return &Derived{
		Secret: cryptox.EncodeBase64(secret),
		Salt:   cryptox.EncodeBase64(salt),
	}, nil
}

// Derive re-runs the derivation for a known salt and returns the raw key.
func Derive(p, salt string) ([]byte, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	rawSalt, err := cryptox.DecodeBase64(salt)
	if err != nil {
		return nil, err
	}
	return cryptox.DeriveKey([]byte(p), rawSalt), nil
}

// Verify reports whether the PIN reproduces the stored secret.
func Verify(p, secret, salt string) bool {
	derived, err := Derive(p, salt)
	if err != nil {
		return false
	}
	stored, err := cryptox.DecodeBase64(secret)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(derived, stored) == 1
}
