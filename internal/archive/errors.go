package archive

import (
	"errors"
	"fmt"
)

// Error is returned by archive operations.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Kind is the entity kind involved, if any.
	Kind string

	// Identity is the live identity involved, if any.
	Identity any

	// Version is the version involved. Only meaningful for NOT_FOUND and
	// CONCURRENCY errors.
	Version int64

	// Err is the underlying cause.
	Err error
}

// Code categorizes archive errors.
type Code string

const (
	// CodeConfiguration indicates an invalid archive declaration. Fatal to
	// archiving of that kind.
	CodeConfiguration Code = "CONFIGURATION"

	// CodeNotFound indicates no snapshot exists at the requested version.
	CodeNotFound Code = "NOT_FOUND"

	// CodeConcurrency indicates the live document moved on between the read
	// and the conditional write. Callers re-read and retry.
	CodeConcurrency Code = "CONCURRENCY"

	// CodeSchema indicates a document without a usable identity or version.
	CodeSchema Code = "SCHEMA"

	// CodeDuplicateArchive indicates a snapshot for the same (identity,
	// version) already exists. Recovered internally; only surfaces in logs.
	CodeDuplicateArchive Code = "DUPLICATE_ARCHIVE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Kind != "" && e.Identity != nil {
		msg = fmt.Sprintf("%s (kind=%s, identity=%v)", msg, e.Kind, e.Identity)
	} else if e.Kind != "" {
		msg = fmt.Sprintf("%s (kind=%s)", msg, e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code Code) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return hasCode(err, CodeConfiguration) }

// IsNotFound reports whether err means no snapshot exists at the requested
// version.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsConcurrency reports whether err is a lost optimistic-concurrency race.
func IsConcurrency(err error) bool { return hasCode(err, CodeConcurrency) }

// IsSchema reports whether err is a schema error.
func IsSchema(err error) bool { return hasCode(err, CodeSchema) }

// IsDuplicateArchive reports whether err is a duplicate snapshot.
func IsDuplicateArchive(err error) bool { return hasCode(err, CodeDuplicateArchive) }

func configError(kind, format string, args ...any) *Error {
	return &Error{Code: CodeConfiguration, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(kind string, identity any, version int64) *Error {
	return &Error{
		Code:     CodeNotFound,
		Message:  fmt.Sprintf("no archived snapshot at version %d", version),
		Kind:     kind,
		Identity: identity,
		Version:  version,
	}
}

func concurrencyError(kind string, identity any, version int64) *Error {
	return &Error{
		Code:     CodeConcurrency,
		Message:  fmt.Sprintf("live document is no longer at version %d", version),
		Kind:     kind,
		Identity: identity,
		Version:  version,
	}
}
