package share

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocation means two consecutive generated slugs collided.
	ErrAllocation = errors.New("slug allocation failed")
	// ErrSlugTaken is returned by Store.Create when the key already exists.
	ErrSlugTaken = errors.New("slug already taken")
	// ErrTooLarge means an upload exceeded the configured limit.
	ErrTooLarge = errors.New("payload too large")
)

// NotFoundError reports a record that is absent, expired or exhausted.
type NotFoundError struct {
	Slug string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %q not found", e.Slug)
}

// ValidationError reports caller input that cannot be accepted.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// StorageError wraps a backing store failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SerializationError reports a record that cannot be encoded or decoded.
type SerializationError struct {
	Slug string
	Msg  string
	Err  error
}

func (e *SerializationError) Error() string {
	msg := "serialization: " + e.Msg
	if e.Slug != "" {
		msg += " (slug " + e.Slug + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SerializationError) Unwrap() error { return e.Err }

// IOError wraps a filesystem failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("io %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("io %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
