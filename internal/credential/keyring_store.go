package credential

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

const (
	serviceName = "mailagent"
	tokenKey    = "gmail-oauth-token"
)

// KeyringStore keeps the token in the OS keyring
type KeyringStore struct {
	ring keyring.Keyring
}

// OpenKeyringStore opens the system keyring. fileDir is used by the
// encrypted file backend when no native keyring is available.
func OpenKeyringStore(fileDir, filePassword string) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(filePassword),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewKeyringStore(ring), nil
}

// NewKeyringStore wraps an already opened keyring
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// Load reads the token from the keyring
func (s *KeyringStore) Load() (*oauth2.Token, error) {
	item, err := s.ring.Get(tokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("getting credential %q: %w", tokenKey, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(item.Data, &token); err != nil {
		return nil, fmt.Errorf("decoding credential %q: %w", tokenKey, err)
	}
	return &token, nil
}

// Persist stores the token in the keyring
func (s *KeyringStore) Persist(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding credential %q: %w", tokenKey, err)
	}

	err = s.ring.Set(keyring.Item{
		Key:         tokenKey,
		Data:        data,
		Label:       "Mail agent OAuth token",
		Description: "OAuth token used to read the monitored mailbox",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", tokenKey, err)
	}
	return nil
}
