package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested object doesn't exist.
	ErrNotFound = errors.New("object not found")

	// ErrKeyExists is returned by Put when overwrite is disabled.
	ErrKeyExists = errors.New("object already exists at this key")

	// ErrInvalidKey is returned for empty or path-traversing keys.
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrTooLarge is returned when an object exceeds PutOptions.MaxSize.
	ErrTooLarge = errors.New("object exceeds maximum size")

	// ErrAccessDenied is returned when the provider rejects the credentials.
	ErrAccessDenied = errors.New("access denied")
)

// StorageError wraps storage operation errors with the operation and key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsKeyExists reports whether err is or wraps ErrKeyExists.
func IsKeyExists(err error) bool {
	return errors.Is(err, ErrKeyExists)
}
