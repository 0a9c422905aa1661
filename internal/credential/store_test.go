package credential

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	store := NewFileStore(path)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoCredential)

	expiry := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	require.NoError(t, store.Persist(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1", TokenType: "Bearer", Expiry: expiry}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	token, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "a1", token.AccessToken)
	assert.Equal(t, "r1", token.RefreshToken)
	assert.True(t, expiry.Equal(token.Expiry))
}

func TestFileStoreReadsAuthorizedUserLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	content := `{"token": "ya29.abc", "refresh_token": "1//r", "client_id": "id", "expiry": "2024-05-01T12:00:00.123456Z"}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	token, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "ya29.abc", token.AccessToken)
	assert.Equal(t, "1//r", token.RefreshToken)
	assert.Equal(t, 2024, token.Expiry.Year())
}

func TestKeyringStoreRoundTrip(t *testing.T) {
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, store.Persist(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1"}))

	token, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "a1", token.AccessToken)
	assert.Equal(t, "r1", token.RefreshToken)
}
