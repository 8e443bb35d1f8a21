package pin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		pin  string
		ok   bool
		name string
	}{
		{"482913", true, "six digits"},
		{"000000", true, "all zeros"},
		{"12345", false, "too short"},
		{"1234567", false, "too long"},
		{"12a456", false, "letter"},
		{"", false, "empty"},
		{"12 456", false, "space"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.pin)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPin)
			}
		})
	}
}

func TestGenerateVerifyRoundTrip(t *testing.T) {
	d, err := Generate("482913")
	require.NoError(t, err)
	require.NotEmpty(t, d.Secret)
	require.NotEmpty(t, d.Salt)

	assert.True(t, Verify("482913", d.Secret, d.Salt))
	assert.False(t, Verify("000000", d.Secret, d.Salt))
	assert.False(t, Verify("482914", d.Secret, d.Salt))
}

func TestGenerateFreshSalt(t *testing.T) {
	a, err := Generate("482913")
	require.NoError(t, err)
	b, err := Generate("482913")
	require.NoError(t, err)

	// Same PIN, different salt, different secret.
	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Secret, b.Secret)

	assert.True(t, Verify("482913", a.Secret, a.Salt))
	assert.True(t, Verify("482913", b.Secret, b.Salt))
}

func TestGenerateRejectsBadPin(t *testing.T) {
	_, err := Generate("12345")
	assert.ErrorIs(t, err, ErrInvalidPin)
}

func TestVerifyGarbageInputs(t *testing.T) {
	d, err := Generate("482913")
	require.NoError(t, err)

	assert.False(t, Verify("482913", "!!!", d.Salt))
	assert.False(t, Verify("482913", d.Secret, "!!!"))
	assert.False(t, Verify("bad", d.Secret, d.Salt))
}

func TestDeriveMatchesSecret(t *testing.T) {
	d, err := Generate("654321")
	require.NoError(t, err)

	key, err := Derive("654321", d.Salt)
	require.NoError(t, err)
	require.Len(t, key, 32)
}
