package document

import "errors"

var (
	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("field not present")

	// ErrNotInteger is returned when a field does not hold an integer.
	ErrNotInteger = errors.New("field is not an integer")
)
