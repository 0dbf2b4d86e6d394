package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned by FindOne when no document matches.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicateKey is returned when a write violates a UNIQUE index,
	// including the per-collection uniqueness of _id.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidField is returned for field names that cannot be used in a
	// filter, sort or index.
	ErrInvalidField = errors.New("invalid field name")

	// ErrMissingID is returned when a replacement document has no _id.
	ErrMissingID = errors.New("document has no _id")

	// ErrSchemaVersion is returned by Open for a database stamped with a
	// newer layout than this package writes.
	ErrSchemaVersion = errors.New("unsupported schema version")
)

// classify maps driver constraint errors onto ErrDuplicateKey. Other errors
// are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
		}
	}
	return err
}

// IsDuplicateKey reports whether err is a uniqueness violation.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}
