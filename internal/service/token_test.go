package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_IssueIsUniqueAndWellFormed(t *testing.T) {
	issuer := NewTokenIssuer(new(MockRefundRepository), 32)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, err := issuer.Issue()
		require.NoError(t, err)
		assert.Len(t, tok, 64)
		assert.True(t, issuer.WellFormed(tok))
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestTokenIssuer_WellFormed(t *testing.T) {
	issuer := NewTokenIssuer(new(MockRefundRepository), 16)

	assert.True(t, issuer.WellFormed("00112233445566778899aabbccddeeff"))
	assert.False(t, issuer.WellFormed(""))
	assert.False(t, issuer.WellFormed("00112233445566778899aabbccddeef"))
	assert.False(t, issuer.WellFormed("zz112233445566778899aabbccddeeff"))
}

func TestTokenIssuer_MinimumEntropy(t *testing.T) {
	issuer := NewTokenIssuer(new(MockRefundRepository), 4)

	tok, err := issuer.Issue()
	require.NoError(t, err)
	assert.Len(t, tok, 32)
}
