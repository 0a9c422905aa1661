package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// fileToken accepts both the oauth2.Token layout and the authorized-user
// layout written by Google's Python client ("token", "expiry")
type fileToken struct {
	AccessToken  string    `json:"access_token,omitempty"`
	Token        string    `json:"token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// FileStore keeps the token in a JSON file
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the token file
func (s *FileStore) Load() (*oauth2.Token, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var stored fileToken
	if err := json.NewDecoder(f).Decode(&stored); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	access := stored.AccessToken
	if access == "" {
		access = stored.Token
	}
	if access == "" && stored.RefreshToken == "" {
		return nil, ErrNoCredential
	}

	return &oauth2.Token{
		AccessToken:  access,
		TokenType:    stored.TokenType,
		RefreshToken: stored.RefreshToken,
		Expiry:       stored.Expiry,
	}, nil
}

// Persist writes the token atomically with restricted permissions
func (s *FileStore) Persist(token *oauth2.Token) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to restrict token file: %w", err)
	}

	stored := fileToken{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	if err := json.NewEncoder(tmp).Encode(stored); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}
