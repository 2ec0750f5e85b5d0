package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePIN_ReturnsSixDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		pin, err := GeneratePIN()
		require.NoError(t, err)
		require.Len(t, pin, 6)
		for _, c := range pin {
			assert.True(t, c >= '0' && c <= '9', "non-digit %q in %s", c, pin)
		}
	}
}

func TestGeneratePIN_UsesEveryDigit(t *testing.T) {
	seen := make(map[rune]bool)
	for i := 0; i < 200; i++ {
		pin, err := GeneratePIN()
		require.NoError(t, err)
		for _, c := range pin {
			seen[c] = true
		}
	}
	assert.Len(t, seen, 10)
}

func TestGenerateSalt_LengthAndUniqueness(t *testing.T) {
	a, err := GenerateSalt()
	require.NoError(t, err)
	b, err := GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestHashPIN_Consistent(t *testing.T) {
	h := HashPIN("123456", "abc")
	assert.Equal(t, h, HashPIN("123456", "abc"))
	assert.Len(t, h, 64)
	assert.NotEqual(t, h, HashPIN("123456", "abd"))
}

func TestVerify_MatchesOnlyCorrectPIN(t *testing.T) {
	svc := NewPINService(nil, "")
	hash := HashPIN("123456", "abc")

	assert.True(t, svc.Verify("123456", "abc", hash))
	assert.False(t, svc.Verify("654321", "abc", hash))
	assert.False(t, svc.Verify("123456", "xyz", hash))
	assert.False(t, svc.Verify("", "abc", hash))
	assert.False(t, svc.Verify("123456", "abc", ""))
}

func TestVerify_OverrideCredential(t *testing.T) {
	hasher := NewHasher(4)
	override, err := hasher.Hash([]byte("000000"))
	require.NoError(t, err)
	svc := NewPINService(hasher, override)

	hash := HashPIN("123456", "abc")
	assert.True(t, svc.Verify("000000", "abc", hash))
	assert.True(t, svc.Verify("000000", "other-salt", ""))
	assert.True(t, svc.Verify("123456", "abc", hash))
	assert.False(t, svc.Verify("111111", "abc", hash))
}

func TestMint_FreshSaltEveryTime(t *testing.T) {
	svc := NewPINService(nil, "")
	a, err := svc.Mint()
	require.NoError(t, err)
	b, err := svc.Mint()
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.True(t, svc.Verify(a.PIN, a.Salt, a.Hash))
	assert.Equal(t, HashPIN(b.PIN, b.Salt), b.Hash)
}
