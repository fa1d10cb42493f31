package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useArrayKeyring(t *testing.T) {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	prev := open
	open = func() (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { open = prev })
}

func TestSetGetDelete(t *testing.T) {
	useArrayKeyring(t)

	_, err := Get(TokenKey)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Set(TokenKey, "s3cret"))
	got, err := Get(TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	require.NoError(t, Delete(TokenKey))
	require.NoError(t, Delete(TokenKey), "second delete is a no-op")

	_, err = Get(TokenKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToken(t *testing.T) {
	useArrayKeyring(t)
	t.Setenv(TokenEnv, "")

	tok, err := Token()
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, Set(TokenKey, "from-keyring"))
	tok, err = Token()
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", tok)

	t.Setenv(TokenEnv, "from-env")
	tok, err = Token()
	require.NoError(t, err)
	assert.Equal(t, "from-env", tok)
}
