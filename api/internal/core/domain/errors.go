package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUpdateFailed marks a structural validation error: an update's
	// preconditions do not hold against the target. The target is left unchanged.
	ErrUpdateFailed = errors.New("update failed")

	// ErrConfiguration is returned when a server model cannot be composed
	// from the domain and host layers.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound is returned for lookups of unknown hosts, servers or snapshots.
	ErrNotFound = errors.New("not found")

	// ErrConcurrencyConflict is returned when Optimistic Locking detects that a
	// stored snapshot moved on since it was loaded.
	ErrConcurrencyConflict = errors.New("optimistic lock failure: the model was updated by another writer")
)

// UpdateFailed builds an error wrapping ErrUpdateFailed.
func UpdateFailed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUpdateFailed, fmt.Sprintf(format, args...))
}

// ConfigurationFailed builds an error wrapping ErrConfiguration.
func ConfigurationFailed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
