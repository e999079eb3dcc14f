package expense

import (
	"errors"
	"fmt"
)

// Kind classifies caller-visible failures.
type Kind int

const (
	// KindInternal is the default for unexpected downstream failures.
	KindInternal Kind = iota
	// KindInvalidArgument means malformed or missing required input.
	KindInvalidArgument
	// KindUnauthenticated means a caller identity was required but absent.
	KindUnauthenticated
	// KindNotFound means the referenced record does not exist.
	KindNotFound
)

// ErrNotFound is returned by DB implementations when a record is absent.
var ErrNotFound = errors.New("not found")

// Error carries a stable kind plus a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalidArgument(message string) error {
	return &Error{Kind: KindInvalidArgument, Message: message}
}

func unauthenticated(message string) error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

func notFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func internal(message string, err error) error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf extracts the kind of err, defaulting to KindInternal for errors
// that did not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
