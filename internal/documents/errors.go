package documents

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidInput indicates validation or bad input. Returned before any side effect.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTemplateNotFound indicates the renderer could not resolve the template.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrNotFound indicates the document row or its blob is absent.
	ErrNotFound = errors.New("document not found")

	// ErrForbidden indicates the document exists but belongs to another owner.
	ErrForbidden = errors.New("forbidden")

	// ErrStoreUnavailable indicates a blob or metadata backend failure.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConflict indicates the row changed since it was read.
	ErrConflict = errors.New("document was modified concurrently")

	// ErrUnknownOwner indicates an insert referenced an owner that does not exist.
	ErrUnknownOwner = &ValidationError{Problems: []string{"owner does not exist"}}
)

// ValidationError carries the individual problems found in a request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return ErrInvalidInput.Error()
	}
	return ErrInvalidInput.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(problems ...string) error {
	return &ValidationError{Problems: problems}
}
