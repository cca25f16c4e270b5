package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerificationTokenIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateVerificationToken()
		require.NoError(t, err)
		assert.Len(t, token, 24)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestSignTokenRoundTrip(t *testing.T) {
	sig := SignToken("secret", "tok-1")
	assert.Len(t, sig, 64) // hex sha256

	assert.True(t, VerifySignature("secret", "tok-1", sig))
	assert.False(t, VerifySignature("secret", "tok-2", sig))
	assert.False(t, VerifySignature("other", "tok-1", sig))
	assert.False(t, VerifySignature("secret", "tok-1", ""))
}

func TestOperatorTokenRoundTrip(t *testing.T) {
	token, err := GenerateOperatorToken("root", "jwt-secret")
	require.NoError(t, err)

	claims, err := ValidateJWT(token, "jwt-secret")
	require.NoError(t, err)

	operator, ok := OperatorFromClaims(claims)
	assert.True(t, ok)
	assert.Equal(t, "root", operator)

	_, err = ValidateJWT(token, "wrong-secret")
	assert.Error(t, err)
}
