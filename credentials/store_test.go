package credentials

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	s := NewKeyringStore()

	_, err := s.Get()
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, s.Set("rdr_live_abc"))
	got, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, "rdr_live_abc", got)

	require.NoError(t, s.Delete())
	require.NoError(t, s.Delete(), "deleting twice is fine")
	_, err = s.Get()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestFileStore(t *testing.T) {
	t.Setenv("TEST_FILE_KEY", testKeyHex)
	dir := t.TempDir()
	s := NewFileStore(dir, NewEnvKeyProvider("TEST_FILE_KEY"))

	_, err := s.Get()
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, s.Set("rdr_live_secret_token"))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "rdr_live_secret_token", "token must be encrypted at rest")

	got, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, "rdr_live_secret_token", got)
	assert.True(t, strings.HasPrefix(s.Description(), s.Path()))

	require.NoError(t, s.Delete())
	require.NoError(t, s.Delete())
	_, err = s.Get()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestFileStore_WrongKey(t *testing.T) {
	dir := t.TempDir()
	salt, err := LoadOrCreateSalt(dir)
	require.NoError(t, err)

	require.NoError(t, NewFileStore(dir, NewPassphraseKeyProvider("right", salt)).Set("tok"))

	_, err = NewFileStore(dir, NewPassphraseKeyProvider("wrong", salt)).Get()
	assert.ErrorIs(t, err, ErrEncryptionFailed)
}

func TestPassphraseStore(t *testing.T) {
	t.Setenv(TokenEnv, "")
	dir := t.TempDir()

	s, err := PassphraseStore(dir, "correct horse")
	require.NoError(t, err)
	require.NoError(t, s.Set("tok-123"))

	again, err := PassphraseStore(dir, "correct horse")
	require.NoError(t, err)
	got, err := again.Get()
	require.NoError(t, err)
	assert.Equal(t, "tok-123", got)
}

type memStore struct {
	token string
}

func (m *memStore) Get() (string, error) {
	if m.token == "" {
		return "", ErrNoToken
	}
	return m.token, nil
}
func (m *memStore) Set(token string) error { m.token = token; return nil }
func (m *memStore) Delete() error          { m.token = ""; return nil }
func (m *memStore) Description() string    { return "memory" }

func TestEnvStore(t *testing.T) {
	t.Run("env wins", func(t *testing.T) {
		t.Setenv(TokenEnv, "from-env")
		s := &EnvStore{Base: &memStore{token: "stored"}}

		got, err := s.Get()
		require.NoError(t, err)
		assert.Equal(t, "from-env", got)
		assert.True(t, errors.Is(s.Set("x"), ErrReadOnly))
		assert.Contains(t, s.Description(), TokenEnv)
	})

	t.Run("falls back to base", func(t *testing.T) {
		t.Setenv(TokenEnv, "")
		base := &memStore{}
		s := &EnvStore{Base: base}

		require.NoError(t, s.Set("stored"))
		got, err := s.Get()
		require.NoError(t, err)
		assert.Equal(t, "stored", got)
		assert.Equal(t, "memory", s.Description())

		require.NoError(t, s.Delete())
		_, err = s.Get()
		assert.ErrorIs(t, err, ErrNoToken)
	})

	t.Run("no base", func(t *testing.T) {
		t.Setenv(TokenEnv, "")
		s := &EnvStore{}
		_, err := s.Get()
		assert.ErrorIs(t, err, ErrNoToken)
		assert.ErrorIs(t, s.Set("x"), ErrReadOnly)
		assert.NoError(t, s.Delete())
	})
}

func TestDefaultStore_UsesKeyring(t *testing.T) {
	keyring.MockInit()
	t.Setenv(TokenEnv, "")

	s, err := DefaultStore(t.TempDir())
	require.NoError(t, err)
	env, ok := s.(*EnvStore)
	require.True(t, ok)
	_, ok = env.Base.(*KeyringStore)
	assert.True(t, ok)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", MaskToken("abcd"))
	assert.Equal(t, "rdr_********wxyz", MaskToken("rdr_live_0123456789wxyz"))
}
