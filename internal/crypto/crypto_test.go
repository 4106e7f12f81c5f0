package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSigner(t *testing.T) {
	signer := NewValueSigner([]byte(strings.Repeat("k", 32)))

	signed := signer.Sign("session-123")
	value, err := signer.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "session-123", value)

	tests := []struct {
		name   string
		signed string
	}{
		{"empty", ""},
		{"no_separator", "session-123"},
		{"empty_signature", "session-123."},
		{"empty_value", ".abc"},
		{"tampered_value", "session-124" + signed[len("session-123"):]},
		{"tampered_signature", signed + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signer.Verify(tt.signed)
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}

	other := NewValueSigner([]byte(strings.Repeat("o", 32)))
	_, err = other.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestSealer(t *testing.T) {
	key, err := DeriveKey([]byte(strings.Repeat("s", 32)), PurposeTokenEncryption)
	require.NoError(t, err)
	sealer, err := NewSealer(key)
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte(`{"access_token":"abc"}`), []byte("session-1"))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "abc")

	plaintext, err := sealer.Open(sealed, []byte("session-1"))
	require.NoError(t, err)
	assert.Equal(t, `{"access_token":"abc"}`, string(plaintext))

	// Bound to the session it was sealed for
	_, err = sealer.Open(sealed, []byte("session-2"))
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = sealer.Open("not base64!", nil)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = sealer.Open("", nil)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDeriveKeySeparatesPurposes(t *testing.T) {
	secret := []byte(strings.Repeat("s", 32))

	signing, err := DeriveKey(secret, PurposeCookieSigning)
	require.NoError(t, err)
	encryption, err := DeriveKey(secret, PurposeTokenEncryption)
	require.NoError(t, err)

	assert.Len(t, signing, 32)
	assert.Len(t, encryption, 32)
	assert.NotEqual(t, signing, encryption)

	again, err := DeriveKey(secret, PurposeCookieSigning)
	require.NoError(t, err)
	assert.Equal(t, signing, again)
}
