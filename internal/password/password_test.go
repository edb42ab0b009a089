package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	stored, err := Hash("student123")
	require.NoError(t, err)

	digest, salt, ok := strings.Cut(stored, ".")
	require.True(t, ok)
	assert.Len(t, digest, keyLen*2)
	assert.Len(t, salt, saltBytes*2)

	ok, err = Verify(stored, "student123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(stored, "student124")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashUsesFreshSalt(t *testing.T) {
	a, err := Hash("same")
	require.NoError(t, err)
	b, err := Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyMalformed(t *testing.T) {
	for _, stored := range []string{
		"",
		"nodot",
		".salt",
		"abcd.",
		"zz.salt",
		"abcd.salt",
	} {
		_, err := Verify(stored, "x")
		assert.ErrorIs(t, err, ErrMalformedHash, "stored=%q", stored)
	}
}
