package utils

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$"))

	ok, err := VerifyPassword("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("battery staple", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyPassword("x", "plain")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestCipherRoundTrip(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	c, err := NewCipher(key)
	require.NoError(t, err)

	sealed, err := c.Encrypt("0123456789")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "0123456789")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", plain)

	empty, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	_, err := NewCipher("")
	assert.Error(t, err)
	_, err = NewCipher("not base64!")
	assert.Error(t, err)
	_, err = NewCipher(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "******7890", Mask("1234567890"))
	assert.Equal(t, "123", Mask("123"))
}

func TestValidation(t *testing.T) {
	assert.NoError(t, ValidateEmail("ann@example.com"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("Ann <ann@example.com>"))
	assert.Error(t, ValidateEmail("nobody"))

	assert.NoError(t, ValidatePassword("longenough"))
	var verr *ValidationError
	require.ErrorAs(t, ValidatePassword("short"), &verr)
	assert.Equal(t, "password", verr.Field)

	assert.NoError(t, ValidateDisplayName(""))
	assert.Error(t, ValidateDisplayName(strings.Repeat("a", 61)))
	assert.Equal(t, "ann@example.com", NormalizeEmail("  Ann@Example.COM "))
}
