// Package credentials stores the RedoraAI API token used by the CLI.
//
// The token lives in the system keyring when one is available and in an
// AES-GCM encrypted file under ~/.redora otherwise. REDORA_API_TOKEN always
// wins over anything stored.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	// TokenEnv overrides any stored token.
	TokenEnv = "REDORA_API_TOKEN"
	// DefaultCredentialsFile is the encrypted fallback file name.
	DefaultCredentialsFile = "credentials.yaml"

	keyringTokenUser = "api-token"
)

var (
	// ErrNoToken is returned when no token is stored.
	ErrNoToken = errors.New("no API token stored")
	// ErrEncryptionFailed is returned when encryption or decryption fails.
	ErrEncryptionFailed = errors.New("encryption failed")
	// ErrReadOnly is returned when writing to the environment override.
	ErrReadOnly = errors.New("token comes from " + TokenEnv + " and cannot be changed here")
)

// TokenStore persists a single API token.
type TokenStore interface {
	Get() (string, error)
	Set(token string) error
	Delete() error
	Description() string
}

// KeyringStore keeps the token in the system keyring.
type KeyringStore struct {
	user string
}

// NewKeyringStore creates a KeyringStore under the redora-cli service.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{user: keyringTokenUser}
}

// Get returns the stored token.
func (s *KeyringStore) Get() (string, error) {
	token, err := keyring.Get(KeyringService, s.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return token, nil
}

// Set stores token.
func (s *KeyringStore) Set(token string) error {
	if err := keyring.Set(KeyringService, s.user, token); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Delete removes the token. Deleting a missing token is not an error.
func (s *KeyringStore) Delete() error {
	err := keyring.Delete(KeyringService, s.user)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Description names the backing keyring.
func (s *KeyringStore) Description() string {
	return NewKeyringKeyProvider().Description()
}

// tokenFile is the on-disk layout of the fallback store.
type tokenFile struct {
	Token       string    `yaml:"token"`
	LastUpdated time.Time `yaml:"last_updated"`
}

// FileStore keeps the token encrypted in a YAML file.
type FileStore struct {
	dir  string
	keys KeyProvider
}

// NewFileStore creates a FileStore in dir using keys for encryption.
func NewFileStore(dir string, keys KeyProvider) *FileStore {
	return &FileStore{dir: dir, keys: keys}
}

// Path returns the credentials file path.
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, DefaultCredentialsFile)
}

// Get decrypts and returns the stored token.
func (s *FileStore) Get() (string, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("reading credentials file: %w", err)
	}

	var tf tokenFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return "", fmt.Errorf("parsing credentials: %w", err)
	}
	if tf.Token == "" {
		return "", ErrNoToken
	}

	key, err := s.keys.GetKey()
	if err != nil {
		return "", fmt.Errorf("getting encryption key: %w", err)
	}
	return decrypt(tf.Token, key)
}

// Set encrypts and writes token with 0600 permissions.
func (s *FileStore) Set(token string) error {
	key, err := s.keys.GetKey()
	if err != nil {
		return fmt.Errorf("getting encryption key: %w", err)
	}
	sealed, err := encrypt(token, key)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(&tokenFile{Token: sealed, LastUpdated: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}
	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}
	return nil
}

// Delete removes the credentials file.
func (s *FileStore) Delete() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing credentials file: %w", err)
	}
	return nil
}

// Description names the file and the key source.
func (s *FileStore) Description() string {
	return fmt.Sprintf("%s (%s)", s.Path(), s.keys.Description())
}

// EnvStore returns REDORA_API_TOKEN when set and delegates to Base otherwise.
type EnvStore struct {
	Base TokenStore
}

// Get returns the environment token or the base store's token.
func (s *EnvStore) Get() (string, error) {
	if token := os.Getenv(TokenEnv); token != "" {
		return token, nil
	}
	if s.Base == nil {
		return "", ErrNoToken
	}
	return s.Base.Get()
}

// Set writes to the base store unless the environment override is active.
func (s *EnvStore) Set(token string) error {
	if os.Getenv(TokenEnv) != "" {
		return ErrReadOnly
	}
	if s.Base == nil {
		return ErrReadOnly
	}
	return s.Base.Set(token)
}

// Delete clears the base store.
func (s *EnvStore) Delete() error {
	if s.Base == nil {
		return nil
	}
	return s.Base.Delete()
}

// Description reports where Get reads from.
func (s *EnvStore) Description() string {
	if os.Getenv(TokenEnv) != "" {
		return "Environment variable (" + TokenEnv + ")"
	}
	if s.Base == nil {
		return "none"
	}
	return s.Base.Description()
}

// DefaultStore picks the keyring when it is reachable and the encrypted file
// in dir otherwise, wrapped in the environment override.
func DefaultStore(dir string) (TokenStore, error) {
	if IsKeyringAvailable() {
		return &EnvStore{Base: NewKeyringStore()}, nil
	}
	keys, err := DefaultKeyProvider()
	if err != nil {
		if os.Getenv(TokenEnv) != "" {
			return &EnvStore{}, nil
		}
		return nil, err
	}
	return &EnvStore{Base: NewFileStore(dir, keys)}, nil
}

// PassphraseStore returns a file store keyed by passphrase.
func PassphraseStore(dir, passphrase string) (TokenStore, error) {
	salt, err := LoadOrCreateSalt(dir)
	if err != nil {
		return nil, err
	}
	return &EnvStore{Base: NewFileStore(dir, NewPassphraseKeyProvider(passphrase, salt))}, nil
}

// MaskToken shows only the first and last four characters of token.
func MaskToken(token string) string {
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", 8) + token[len(token)-4:]
}

func encrypt(plaintext string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: generating nonce: %v", ErrEncryptionFailed, err)
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func decrypt(ciphertext string, key []byte) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decoding base64: %v", ErrEncryptionFailed, err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	n := gcm.NonceSize()
	if len(data) < n {
		return "", fmt.Errorf("%w: ciphertext too short", ErrEncryptionFailed)
	}
	plaintext, err := gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: creating cipher: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: creating GCM: %v", ErrEncryptionFailed, err)
	}
	return gcm, nil
}
