package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when no recipient row has the requested id.
	ErrNotFound = errors.New("recipient not found")

	// ErrUniqueness is returned when a write would give two rows the same
	// number, ACI or PNI.
	ErrUniqueness = errors.New("uniqueness violation")

	// ErrStorage wraps every other database failure.
	ErrStorage = errors.New("storage error")
)

// wrapErr classifies a database error and prefixes it with the operation.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%s: %w: %w", op, ErrUniqueness, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
