package jwt

import (
	"testing"

	"github.com/mbeoliero/vesper/pkg/errcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("alice", 5, "secret", 1)
	require.NoError(t, err)

	claims, err := ParseToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserId)
	assert.Equal(t, 5, claims.PlatformId)
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken("alice", 5, "secret", 1)
	require.NoError(t, err)

	_, err = ParseToken(token, "other-secret")
	assert.ErrorIs(t, err, errcode.ErrTokenInvalid)
}

func TestParseTokenExpired(t *testing.T) {
	token, err := GenerateToken("alice", 5, "secret", -1)
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	assert.ErrorIs(t, err, errcode.ErrTokenExpired)
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := ParseToken("not-a-token", "secret")
	assert.ErrorIs(t, err, errcode.ErrTokenInvalid)
}
