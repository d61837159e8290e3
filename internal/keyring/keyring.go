package keyring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/habitsync/internal/constants"
)

var (
	// ErrNotFound is returned when no remote connection string is stored
	ErrNotFound = errors.New("remote connection not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring cannot be used
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Credentials stores the remote store connection string under one
// keyring service/account pair.
type Credentials struct {
	Service string
	Account string
}

// Default returns the habitsync entry used by the CLI.
func Default() Credentials {
	return Credentials{Service: constants.AppName, Account: constants.DefaultKeyringUser}
}

func (c Credentials) Get() (string, error) {
	connStr, err := keyring.Get(c.Service, c.Account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return connStr, nil
}

func (c Credentials) Set(connStr string) error {
	connStr = strings.TrimSpace(connStr)
	if connStr == "" {
		return errors.New("connection string cannot be empty")
	}
	if err := keyring.Set(c.Service, c.Account, connStr); err != nil {
		return fmt.Errorf("failed to store remote connection in keyring: %w", err)
	}
	return nil
}

func (c Credentials) Delete() error {
	err := keyring.Delete(c.Service, c.Account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete remote connection from keyring: %w", err)
	}
	return nil
}

// IsAvailable reports whether the OS keyring answers a lookup. A missing
// entry still counts as available.
func (c Credentials) IsAvailable() bool {
	_, err := keyring.Get(c.Service, "availability-probe")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
