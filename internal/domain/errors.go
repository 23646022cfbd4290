package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to classify an error.
var (
	ErrInput        = errors.New("invalid input")
	ErrEngine       = errors.New("engine failed")
	ErrEmptyContent = errors.New("empty content")
	ErrStorage      = errors.New("storage failure")

	ErrJobNotFound  = errors.New("job not found")
	ErrNotCompleted = errors.New("conversion not completed")
)

// AppError carries an error kind, a human-readable message and the root cause.
type AppError struct {
	Kind    error
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// InputError reports a rejected submission; no job is created for it.
func InputError(message string) error {
	return &AppError{Kind: ErrInput, Message: message}
}

// EngineError reports a single engine failure. The pipeline recovers from it locally.
func EngineError(engine string, cause error) error {
	return &AppError{Kind: ErrEngine, Message: "engine " + engine, Cause: cause}
}

// EmptyContentError reports that the fallback chain produced no usable text.
func EmptyContentError(message string, cause error) error {
	return &AppError{Kind: ErrEmptyContent, Message: message, Cause: cause}
}

// StorageError reports a failed filesystem or object-store write/delete.
func StorageError(message string, cause error) error {
	return &AppError{Kind: ErrStorage, Message: message, Cause: cause}
}
