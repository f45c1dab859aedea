package auth

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

func TestGenerateNumericCode_Format(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code, err := GenerateNumericCode()
		require.NoError(t, err)
		assert.Regexp(t, sixDigits, code)
		seen[code] = struct{}{}
	}

	// 50 draws from a million values should almost never collide
	assert.Greater(t, len(seen), 45)
}

func TestHashCode_SaltedAndDeterministic(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	otherSalt, err := NewSalt()
	require.NoError(t, err)

	assert.Equal(t, HashCode("123456", salt), HashCode("123456", salt))
	assert.NotEqual(t, HashCode("123456", salt), HashCode("123456", otherSalt))
	assert.NotContains(t, HashCode("123456", salt), "123456")
}

func TestCompareCode(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	hash := HashCode("042917", salt)

	assert.True(t, CompareCode("042917", salt, hash))
	assert.False(t, CompareCode("042918", salt, hash))
	assert.False(t, CompareCode("042917", "other", hash))
	assert.False(t, CompareCode("", salt, hash))
}
