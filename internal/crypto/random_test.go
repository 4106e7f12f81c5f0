package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// Each call generates a unique token
	token2, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.NotContains(t, token, "=")
}

func TestEqualTokens(t *testing.T) {
	assert.True(t, EqualTokens("abc", "abc"))
	assert.False(t, EqualTokens("abc", "abd"))
	assert.False(t, EqualTokens("abc", "abcd"))
	assert.False(t, EqualTokens("abc", ""))
}
