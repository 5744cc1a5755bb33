package tracking

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the task or user is unknown. Retrying does not help.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument means a required identifier was empty.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTransient means the store failed. Start, Stop and Reset are safe to retry.
	ErrTransient = errors.New("temporarily unavailable")
)

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
