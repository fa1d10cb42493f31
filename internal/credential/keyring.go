// Package credential stores the remote access token in the system keyring.
package credential

import (
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const (
	// TokenKey is the keyring entry holding the sync backend access token.
	TokenKey = "remote-token"
	// TokenEnv overrides the keyring when set.
	TokenEnv = "PLANNER_REMOTE_TOKEN"

	service = "weekplanner"
)

// ErrNotFound is returned when no credential is stored under a key.
var ErrNotFound = errors.New("credential not found")

// open is swapped out in tests.
var open = func() (keyring.Keyring, error) {
	return keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		KeychainTrustApplication: true,
		// Headless machines fall through to an encrypted file.
		FileDir:          "~/.config/" + service + "/credentials",
		FilePasswordFunc: keyring.FixedStringPrompt(service + "-file-key"),
	})
}

func withRing(op, key string, fn func(keyring.Keyring) error) error {
	ring, err := open()
	if err != nil {
		return fmt.Errorf("opening keyring: %w", err)
	}
	if err := fn(ring); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			err = ErrNotFound
		}
		return fmt.Errorf("%s credential %q: %w", op, key, err)
	}
	return nil
}

// Get returns the credential stored under key, or ErrNotFound.
func Get(key string) (string, error) {
	var value string
	err := withRing("reading", key, func(ring keyring.Keyring) error {
		item, err := ring.Get(key)
		if err != nil {
			return err
		}
		value = string(item.Data)
		return nil
	})
	return value, err
}

// Set stores value under key, replacing any previous value.
func Set(key, value string) error {
	return withRing("saving", key, func(ring keyring.Keyring) error {
		return ring.Set(keyring.Item{
			Key:   key,
			Data:  []byte(value),
			Label: service + " " + key,
		})
	})
}

// Delete removes key. Deleting a missing key is not an error.
func Delete(key string) error {
	err := withRing("deleting", key, func(ring keyring.Keyring) error {
		return ring.Remove(key)
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Token returns the remote access token, preferring the environment over
// the keyring. An empty token with a nil error means none is configured.
func Token() (string, error) {
	if tok := os.Getenv(TokenEnv); tok != "" {
		return tok, nil
	}
	tok, err := Get(TokenKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return tok, err
}
