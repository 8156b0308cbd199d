package store

import "errors"

// ValueKind is the type of the value stored under a key.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindSet
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindString:
		return "string"
	default:
		return "none"
	}
}

// ErrClosed is returned by a backend after Close.
var ErrClosed = errors.New("store: backend closed")

var errReadOnly = errors.New("store: write in read-only transaction")

// Tx is a view of the keyspace inside one backend transaction.
//
// Byte slices passed in are not retained. Byte slices returned are owned by
// the caller.
type Tx interface {
	Kind(key []byte) (ValueKind, error)

	// Members returns the members of the set at key, or nil when the key is
	// absent. The order is unspecified.
	Members(key []byte) ([][]byte, error)
	IsMember(key, member []byte) (bool, error)
	Card(key []byte) (int64, error)

	// Add reports whether member was newly inserted.
	Add(key, member []byte) (bool, error)

	// Remove reports whether member was present. Removing the last member
	// deletes the key.
	Remove(key, member []byte) (bool, error)

	GetString(key []byte) ([]byte, error)
	PutString(key, value []byte) error

	// Delete removes the key whatever its kind and reports whether it existed.
	Delete(key []byte) (bool, error)
}

// Backend holds the keyspace. Update runs fn with exclusive write access;
// View runs fn with read access. A backend must be safe for concurrent use.
type Backend interface {
	Update(fn func(Tx) error) error
	View(fn func(Tx) error) error
	Close() error
}
