package setstream

import (
	"errors"
	"fmt"

	"github.com/pior/setstream/resp"
)

var (
	// ErrInvalidArgument is wrapped by every error reporting a missing or
	// malformed caller-supplied field. Test with errors.Is.
	ErrInvalidArgument = errors.New("setstream: invalid argument")

	// ErrNoResponse is returned by single-value calls when the batch ended
	// without producing a response for the submitted command.
	ErrNoResponse = errors.New("setstream: no response")
)

// InvalidArgumentError names the field that failed validation.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("setstream: invalid argument: %s %s", e.Field, e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

func missing(field string) error {
	return &InvalidArgumentError{Field: field, Reason: "must not be nil"}
}

func empty(field string) error {
	return &InvalidArgumentError{Field: field, Reason: "must not be empty"}
}

// ResponseError is attached to a response when the store answered with a
// reply that cannot be decoded into the operation's output.
type ResponseError struct {
	Command string
	Reply   *resp.Reply
	Err     error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("setstream: %s: cannot decode reply %s: %v", e.Command, e.Reply, e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}
