package listing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no row carries the requested listing id.
	ErrNotFound = errors.New("listing not found")

	// ErrTransport is returned when the row store cannot be reached or
	// does not answer within the remote timeout.
	ErrTransport = errors.New("row store unavailable")
)

// ValidationError lists the fields that made a listing unacceptable.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid listing: %s", strings.Join(e.Fields, ", "))
}

func transportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
}
