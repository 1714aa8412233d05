// Package credential stores the OpenAI API key used for enhancement and
// batch transcription.
//
// The key lives under a fixed account name in a service namespace shared by
// every Codiris Voice component on the machine, so the CLI and any other
// client read the same entry.
package credential

import (
	"context"
	"errors"
	"strings"
)

const (
	// Service is the keychain service (access group) shared by all clients.
	Service = "group.com.codiris.voice"

	// Account is the entry name holding the OpenAI API key.
	Account = "openai_api_key"
)

// ErrNotFound is returned by [Store.Get] when no key is stored.
var ErrNotFound = errors.New("credential: not found")

// ErrEmptyKey is returned by [Store.Set] for a blank key.
var ErrEmptyKey = errors.New("credential: key must not be empty")

// Store is the secure key-value port for the API key.
type Store interface {
	// Get returns the stored key or ErrNotFound.
	Get(ctx context.Context) (string, error)

	// Set stores key, replacing any previous value.
	Set(ctx context.Context, key string) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context) error
}

// Present reports whether s holds a non-empty key. Lookup errors count as
// absent.
func Present(ctx context.Context, s Store) bool {
	key, err := s.Get(ctx)
	return err == nil && key != ""
}

// Mask renders key for display: all but the last four characters replaced
// by '*'. Keys of eight characters or fewer, and absent keys, show as
// "Not set".
func Mask(key string) string {
	r := []rune(key)
	if len(r) <= 8 {
		return "Not set"
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}

func normalise(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}
