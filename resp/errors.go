package resp

import (
	"errors"
	"fmt"
)

// Error types for RESP operations.
// These errors help clients decide whether a connection can be reused.

// ServerError represents an error reply ("-ERR ...", "-WRONGTYPE ...").
// It concerns one request only. The protocol state is still valid.
//
// Connection handling: Connection can be REUSED
type ServerError struct {
	Kind    string
	Message string
}

func (e *ServerError) Error() string {
	switch {
	case e.Kind == "":
		return e.Message
	case e.Message == "":
		return e.Kind
	default:
		return e.Kind + " " + e.Message
	}
}

// ShouldCloseConnection returns false - error replies don't corrupt protocol state
func (e *ServerError) ShouldCloseConnection() bool {
	return false
}

// IsWrongType reports whether the store rejected the request because the key
// holds a value of another type.
func (e *ServerError) IsWrongType() bool {
	return e.Kind == ErrKindWrongType
}

// ParseError represents a client-side parsing error.
// Indicates a malformed reply, either a store bug or a desynchronized stream.
//
// Connection handling: Connection should be CLOSED as state is uncertain
type ParseError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse error: " + e.Message + ": " + e.Err.Error()
	}
	return "parse error: " + e.Message
}

// Unwrap returns the underlying error for error chain inspection
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - parse errors indicate corrupted state
func (e *ParseError) ShouldCloseConnection() bool {
	return true
}

// ProtocolError is returned by ReadRequest when a peer sends a frame that is
// not an array of bulk strings.
//
// Connection handling: CLOSE connection
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Message
}

// ShouldCloseConnection returns true - the request stream cannot be resynchronized
func (e *ProtocolError) ShouldCloseConnection() bool {
	return true
}

// ConnectionError wraps underlying I/O errors from connection operations.
//
// Connection handling: Connection is already broken, CLOSE and potentially RECONNECT
type ConnectionError struct {
	Op  string // Operation that failed (read, write, etc.)
	Err error  // Underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - connection errors mean connection is broken
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// UnexpectedKindError is returned by the Reply accessors when the reply is
// not of the requested kind.
type UnexpectedKindError struct {
	Want Kind
	Got  Kind
}

func (e *UnexpectedKindError) Error() string {
	return fmt.Sprintf("unexpected reply kind: want %s, got %s", e.Want, e.Got)
}

// ShouldCloseConnection returns false - the frame was read completely
func (e *UnexpectedKindError) ShouldCloseConnection() bool {
	return false
}

// ErrorWithConnectionState is an interface for errors that indicate
// whether the connection should be closed.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection is a helper function to determine if an error
// requires closing the connection.
//
// Returns true for:
//   - ParseError
//   - ProtocolError
//   - ConnectionError
//   - unknown error types
//
// Returns false for:
//   - ServerError
//   - UnexpectedKindError
//   - nil
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	// Unknown error type - be conservative and close connection
	return true
}
