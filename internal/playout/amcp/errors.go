package amcp

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by ConnectionError.
var (
	// ErrMalformedResponse is returned when a status line is empty or does
	// not start with a known code.
	ErrMalformedResponse = errors.New("amcp: malformed response")

	// ErrClosed is returned by Query after Close.
	ErrClosed = errors.New("amcp: client closed")
)

// ConnectionError reports that a command could not be confirmed because the
// connection failed. The connection has been dropped; the next Query
// reconnects.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("amcp: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError reports that the server rejected a command.
type ProtocolError struct {
	Code    int
	Message string
	Command string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("amcp: %s rejected with %d %s", e.Command, e.Code, e.Message)
}

// IsConnectionError reports whether err is, or wraps, a *ConnectionError.
func IsConnectionError(err error) bool {
	var cerr *ConnectionError
	return errors.As(err, &cerr)
}

// IsProtocolError reports whether err is, or wraps, a *ProtocolError.
func IsProtocolError(err error) bool {
	var perr *ProtocolError
	return errors.As(err, &perr)
}
