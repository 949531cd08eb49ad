package database

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/R3E-Network/renkonet/supabase/client"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConflict      = errors.New("conflict")
	ErrDatabaseError = errors.New("database error")
)

// NotFoundError names the missing row.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFound reports whether err means a missing row.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports a uniqueness violation such as a duplicate like.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// classify maps gateway failures onto the package sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsNotFound():
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		case apiErr.IsConflict():
			return fmt.Errorf("%s: %w: %s", op, ErrConflict, apiErr.Message)
		case apiErr.StatusCode == http.StatusBadRequest:
			return fmt.Errorf("%s: %w: %s", op, ErrInvalidInput, apiErr.Message)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, ErrDatabaseError, err)
}
