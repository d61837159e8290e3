package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a habit does not exist for the user
	ErrNotFound = errors.New("habit not found")
	// ErrStoreUnavailable is returned when the underlying medium cannot be opened or reached
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotLoaded is returned when a store is used before Init or Load
	ErrNotLoaded = fmt.Errorf("%w: storage not loaded", ErrStoreUnavailable)
)

// Unavailable wraps err so that it matches ErrStoreUnavailable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
