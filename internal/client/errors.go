package client

import (
	"errors"
	"fmt"
)

// NetworkError is returned when the request never produced an HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: network error: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// NotFoundError is returned for 404 responses. Views render it as "content
// unavailable" instead of a generic failure.
type NotFoundError struct {
	Op      string
	Message string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s: not found: %s", e.Op, e.Message) }

// ConflictError is returned for 409 responses, which the server sends when an
// If-Match version no longer matches the stored flag.
type ConflictError struct {
	Op      string
	Message string
}

func (e *ConflictError) Error() string { return fmt.Sprintf("%s: conflict: %s", e.Op, e.Message) }

// ServerError covers every other non-2xx response as well as 2xx responses
// whose payload could not be decoded, including unknown status values.
type ServerError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ServerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: server error (%d): %s: %v", e.Op, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: server error (%d): %s", e.Op, e.StatusCode, e.Message)
}

func (e *ServerError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is, or wraps, a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
