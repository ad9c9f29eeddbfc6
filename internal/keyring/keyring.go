// Package keyring stores salonbot secrets in the OS keyring.
package keyring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/salonbot/internal/constants"
)

var (
	// ErrNotFound is returned when no secret is stored under the requested name
	ErrNotFound = errors.New("secret not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Secret names a value salonbot keeps in the keyring.
type Secret string

const (
	ConnectionString Secret = constants.DefaultKeyringUser
	BotToken         Secret = constants.TokenKeyringUser
)

func (s Secret) String() string {
	switch s {
	case ConnectionString:
		return "database connection string"
	case BotToken:
		return "Telegram bot token"
	default:
		return string(s)
	}
}

// Get returns the stored value, or ErrNotFound.
func Get(s Secret) (string, error) {
	v, err := keyring.Get(constants.AppName, string(s))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return v, nil
}

func Set(s Secret, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s cannot be empty", s)
	}
	if err := keyring.Set(constants.AppName, string(s), value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", s, err)
	}
	return nil
}

func Delete(s Secret) error {
	if err := keyring.Delete(constants.AppName, string(s)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s from keyring: %w", s, err)
	}
	return nil
}

// GetConnectionString is Get(ConnectionString).
func GetConnectionString() (string, error) { return Get(ConnectionString) }

// SetConnectionString is Set(ConnectionString, connStr).
func SetConnectionString(connStr string) error { return Set(ConnectionString, connStr) }

// DeleteConnectionString is Delete(ConnectionString).
func DeleteConnectionString() error { return Delete(ConnectionString) }

// IsAvailable is a best-effort probe: a not-found answer still means the
// keyring responded.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, "test-availability")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
