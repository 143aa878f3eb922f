package core

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrHasChildren       = errors.New("category has children")
	ErrInUse             = errors.New("category in use")
	ErrCircularReference = errors.New("circular reference")
)

// ValidationError reports a blank name, a missing required parent or another
// malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports an unknown id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// HasChildrenError is returned when deleting a category that still has children.
type HasChildrenError struct {
	ID       string
	Children int
}

func (e *HasChildrenError) Error() string {
	return fmt.Sprintf("category %q has %d child categories", e.ID, e.Children)
}

func (e *HasChildrenError) Is(target error) bool { return target == ErrHasChildren }

// InUseError is returned when deleting a category referenced by transactions.
type InUseError struct {
	ID           string
	Transactions int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("category %q is referenced by %d transactions", e.ID, e.Transactions)
}

func (e *InUseError) Is(target error) bool { return target == ErrInUse }

// CircularReferenceError is returned when a move would make a category its
// own ancestor.
type CircularReferenceError struct {
	ID       string
	ParentID string
}

func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("cannot move category %q under %q: would create a cycle", e.ID, e.ParentID)
}

func (e *CircularReferenceError) Is(target error) bool { return target == ErrCircularReference }
