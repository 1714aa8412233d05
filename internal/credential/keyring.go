package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore keeps the key in the operating system keychain (macOS
// Keychain, Secret Service, Windows Credential Manager).
type KeyringStore struct {
	service string
	account string
}

var _ Store = (*KeyringStore)(nil)

// NewKeyringStore returns a store for [Service]/[Account].
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: Service, account: Account}
}

func (s *KeyringStore) Get(_ context.Context) (string, error) {
	key, err := keyring.Get(s.service, s.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("credential: keyring get: %w", err)
	}
	return key, nil
}

func (s *KeyringStore) Set(_ context.Context, key string) error {
	key, err := normalise(key)
	if err != nil {
		return err
	}
	if err := keyring.Set(s.service, s.account, key); err != nil {
		return fmt.Errorf("credential: keyring set: %w", err)
	}
	return nil
}

func (s *KeyringStore) Delete(_ context.Context) error {
	err := keyring.Delete(s.service, s.account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("credential: keyring delete: %w", err)
	}
	return nil
}
