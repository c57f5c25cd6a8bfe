package alert

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by NotFoundError through errors.Is.
	ErrNotFound = errors.New("alert not found")
	// ErrValidation is matched by ValidationError through errors.Is.
	ErrValidation = errors.New("invalid alert")
)

// NotFoundError reports an operation on an unknown alert id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("alert %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError reports a malformed alert definition or patch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid alert: " + e.Reason
	}
	return fmt.Sprintf("invalid alert %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
