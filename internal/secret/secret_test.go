package secret

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	s, err := NewSealer("passphrase", []byte("0123456789abcdef"))
	require.NoError(t, err)

	sealed, err := s.Seal("ghp_token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "ghp_token")

	again, err := s.Seal("ghp_token")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce is random")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ghp_token", plain)

	empty, err := s.Seal("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	salt := []byte("0123456789abcdef")
	a, err := NewSealer("one", salt)
	require.NoError(t, err)
	b, err := NewSealer("two", salt)
	require.NoError(t, err)

	sealed, err := a.Seal("token")
	require.NoError(t, err)
	_, err = b.Open(sealed)
	assert.Error(t, err)

	_, err = a.Open("plaintext")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLoadOrCreateSalt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pixrepo.salt")
	first, err := LoadOrCreateSalt(path)
	require.NoError(t, err)
	assert.Len(t, first, saltLength)

	second, err := LoadOrCreateSalt(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
