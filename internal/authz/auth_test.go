package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthServiceSeedsDevToken(t *testing.T) {
	auth := NewAuthService()
	assert.True(t, auth.ValidateToken(devToken))
	assert.False(t, auth.ValidateToken("invalid"))
}

func TestAuthServiceAddRemoveToken(t *testing.T) {
	auth := NewAuthService()
	auth.AddToken("test-token")
	assert.True(t, auth.ValidateToken("test-token"))

	require.NoError(t, auth.RemoveToken("test-token"))
	assert.False(t, auth.ValidateToken("test-token"))
}

func TestAuthServiceRemoveMissingTokenErrors(t *testing.T) {
	auth := NewAuthService()
	err := auth.RemoveToken("never-added")
	assert.Error(t, err)
}

func TestAuthServiceGenerateToken(t *testing.T) {
	auth := NewAuthService()
	token := auth.GenerateToken()
	assert.True(t, auth.ValidateToken(token))
}

func TestAuthServiceExtraSeedTokens(t *testing.T) {
	auth := NewAuthService("seed-a", "seed-b")
	assert.True(t, auth.ValidateToken("seed-a"))
	assert.True(t, auth.ValidateToken("seed-b"))
	assert.True(t, auth.ValidateToken(devToken))
}
