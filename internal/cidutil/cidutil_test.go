package cidutil

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCIDv1RawSHA256(t *testing.T) {
	a := CIDv1RawSHA256([]byte("pixels"))
	b := CIDv1RawSHA256([]byte("pixels"))
	c := CIDv1RawSHA256([]byte("pixels!"))

	assert.True(t, strings.HasPrefix(a, "bafk"), a)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDigestMatchesSHA256(t *testing.T) {
	data := []byte("relay payload")
	got, err := Digest(data)
	require.NoError(t, err)

	want := sha256.Sum256(data)
	assert.Equal(t, want[:], got)
}

func TestVerify(t *testing.T) {
	data := []byte("image bytes")
	id := CIDv1RawSHA256(data)

	ok, err := Verify(id, data)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(id, []byte("other bytes"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Verify("not-a-cid", data)
	assert.Error(t, err)
}
