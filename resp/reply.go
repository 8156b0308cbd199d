package resp

import (
	"fmt"
	"strconv"
)

// Reply represents a parsed RESP reply.
// Fields map directly to protocol elements.
type Reply struct {
	// Kind is the RESP type of the reply
	Kind Kind

	// Str holds the payload of status and bulk replies.
	// For bulk replies, nil means a null bulk string ($-1).
	Str []byte

	// Int holds the value of integer replies
	Int int64

	// Elems holds array elements. Nil with Null set means a null array (*-1).
	Elems []*Reply

	// Null is set for null bulk strings and null arrays
	Null bool

	// Err is set for error replies. The connection remains usable.
	Err error
}

// Status creates a status reply.
func Status(s string) *Reply {
	return &Reply{Kind: KindStatus, Str: []byte(s)}
}

// Integer creates an integer reply.
func Integer(n int64) *Reply {
	return &Reply{Kind: KindInteger, Int: n}
}

// Bool creates an integer reply of 1 or 0.
func Bool(b bool) *Reply {
	if b {
		return Integer(1)
	}
	return Integer(0)
}

// Bulk creates a bulk string reply. A nil slice yields a null bulk string.
func Bulk(b []byte) *Reply {
	if b == nil {
		return NullBulk()
	}
	return &Reply{Kind: KindBulk, Str: b}
}

// NullBulk creates a null bulk string reply.
func NullBulk() *Reply {
	return &Reply{Kind: KindBulk, Null: true}
}

// Array creates an array reply from bulk strings.
func Array(items [][]byte) *Reply {
	elems := make([]*Reply, len(items))
	for i, item := range items {
		elems[i] = Bulk(item)
	}
	return &Reply{Kind: KindArray, Elems: elems}
}

// Error creates an error reply. kind is the leading word (ERR, WRONGTYPE).
func Error(kind, message string) *Reply {
	return &Reply{Kind: KindError, Err: &ServerError{Kind: kind, Message: message}}
}

// Errorf creates a generic ERR reply with a formatted message.
func Errorf(format string, args ...any) *Reply {
	return Error(ErrKindGeneric, fmt.Sprintf(format, args...))
}

// HasError returns true if the reply is an error reply.
func (r *Reply) HasError() bool {
	return r.Err != nil
}

// IsNull returns true for null bulk strings and null arrays.
func (r *Reply) IsNull() bool {
	return r.Null
}

// Integer returns the value of an integer reply.
func (r *Reply) Integer() (int64, error) {
	if r.Kind != KindInteger {
		return 0, &UnexpectedKindError{Want: KindInteger, Got: r.Kind}
	}
	return r.Int, nil
}

// Bool returns true for an integer reply of 1.
func (r *Reply) Bool() (bool, error) {
	n, err := r.Integer()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Bytes returns the payload of a bulk reply, nil for a null bulk string.
// Status replies are accepted too.
func (r *Reply) Bytes() ([]byte, error) {
	switch r.Kind {
	case KindBulk, KindStatus:
		if r.Null {
			return nil, nil
		}
		return r.Str, nil
	default:
		return nil, &UnexpectedKindError{Want: KindBulk, Got: r.Kind}
	}
}

// List returns the payloads of an array of bulk strings.
// A null array yields an empty, non-nil list.
func (r *Reply) List() ([][]byte, error) {
	if r.Kind != KindArray {
		return nil, &UnexpectedKindError{Want: KindArray, Got: r.Kind}
	}
	out := make([][]byte, 0, len(r.Elems))
	for _, elem := range r.Elems {
		b, err := elem.Bytes()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// String renders the reply for logs and debugging.
func (r *Reply) String() string {
	switch r.Kind {
	case KindStatus:
		return string(r.Str)
	case KindError:
		return r.Err.Error()
	case KindInteger:
		return strconv.FormatInt(r.Int, 10)
	case KindBulk:
		if r.Null {
			return "(nil)"
		}
		return strconv.Quote(string(r.Str))
	case KindArray:
		if r.Null {
			return "(nil array)"
		}
		return fmt.Sprintf("array(%d)", len(r.Elems))
	default:
		return r.Kind.String()
	}
}
