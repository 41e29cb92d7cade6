package security

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	DefaultParams.Memory = 1024
	DefaultParams.Iterations = 1
	os.Exit(m.Run())
}

func TestHashAndComparePassword(t *testing.T) {
	hash, err := HashPassword("Valid123!")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	ok, err := ComparePassword("Valid123!", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ComparePassword("Valid123?", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPassword_SaltsDiffer(t *testing.T) {
	a, err := HashPassword("same")
	require.NoError(t, err)
	b, err := HashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestComparePassword_LegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := ComparePassword("admin123", string(legacy))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ComparePassword("admin124", string(legacy))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestComparePassword_MalformedHash(t *testing.T) {
	for _, h := range []string{"", "plain", "$argon2i$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA", "$argon2id$v=1$m=1,t=1,p=1$c2FsdA$aGFzaA"} {
		ok, err := ComparePassword("x", h)
		assert.False(t, ok, h)
		assert.Error(t, err, h)
	}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	tok, err := GenerateAccessToken("acc-1", "admin", "sess-1", "secret", time.Minute)
	require.NoError(t, err)

	claims, err := ValidateToken(tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "sess-1", claims.ID)

	_, err = ValidateToken(tok, "other-secret")
	assert.Error(t, err)
}

func TestAccessToken_Expired(t *testing.T) {
	tok, err := GenerateAccessToken("acc-1", "user", "sess-1", "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(tok, "secret")
	assert.Error(t, err)
}

func TestSealer(t *testing.T) {
	s := NewSealer("k1")
	seal := s.Seal("a", "b", "c")
	assert.True(t, s.Verify(seal, "a", "b", "c"))
	assert.False(t, s.Verify(seal, "a", "b", "d"))
	assert.False(t, s.Verify(seal, "ab", "", "c"))
	assert.False(t, NewSealer("k2").Verify(seal, "a", "b", "c"))
	assert.False(t, s.Verify("not-hex", "a", "b", "c"))
}
