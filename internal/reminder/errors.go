package reminder

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a reminder or guild setting is absent.
var ErrNotFound = errors.New("not found")

var (
	ErrInvalidIndex        = &ValidationError{Msg: "invalid reminder number"}
	ErrConfirmationExpired = errors.New("confirmation expired or not yours")
)

// ValidationError is a malformed user input. Msg is safe to show to the user.
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

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a backend failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
