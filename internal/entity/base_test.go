package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenDirectPairKeyOrderIndependent(t *testing.T) {
	assert.Equal(t, GenDirectPairKey("alice", "bob"), GenDirectPairKey("bob", "alice"))
	assert.Equal(t, "di_alice:bob", GenDirectPairKey("bob", "alice"))
}

func TestGenDirectPairKeyUnderscoreIds(t *testing.T) {
	key := GenDirectPairKey("u___42", "u___7")
	a, b, ok := DirectPairKeyPeers(key)
	require.True(t, ok)
	assert.Equal(t, "u___42", a)
	assert.Equal(t, "u___7", b)
}

func TestDirectPairKeyPeers(t *testing.T) {
	a, b, ok := DirectPairKeyPeers("di_alice:bob")
	require.True(t, ok)
	assert.Equal(t, "alice", a)
	assert.Equal(t, "bob", b)

	_, _, ok = DirectPairKeyPeers("gr_team")
	assert.False(t, ok)

	_, _, ok = DirectPairKeyPeers("di_nocolon")
	assert.False(t, ok)
}

func TestGenGroupPairKey(t *testing.T) {
	assert.Equal(t, "gr_team-1", GenGroupPairKey("team-1"))
	assert.True(t, IsDirectPairKey("di_a:b"))
	assert.False(t, IsDirectPairKey("gr_team-1"))
}
