package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist at the requested path.
var ErrNotFound = errors.New("not found")

// AppendError reports a write rejected by the remote log. A failed append
// leaves no partial state: the caller must treat the message as not sent.
// For media placeholders it triggers rollback.
type AppendError struct {
	Path string
	Err  error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("append %s: %v", e.Path, e.Err)
}

func (e *AppendError) Unwrap() error { return e.Err }

// TransientError reports a network/availability failure. Safe to retry at the
// caller's discretion; the engine does not retry automatically.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// DecodeError reports a remote record that failed schema validation. The
// deserialization layer fails closed: list operations skip such records under
// an explicit, logged fallback policy instead of silently dropping them.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
