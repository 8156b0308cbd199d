package setstream

import (
	"bytes"

	"github.com/zeebo/xxh3"

	"github.com/pior/setstream/internal"
)

// ServerSelector picks the index of the server owning key among serverCount
// servers.
type ServerSelector func(key []byte, serverCount int) int

// DefaultServerSelector hashes the key with xxh3 and maps it with jump hash, so
// adding a server moves only about 1/n of the keys. Only the hash tag of the
// key is hashed.
func DefaultServerSelector(key []byte, serverCount int) int {
	return internal.JumpHash(xxh3.Hash(HashTag(key)), serverCount)
}

// HashTag returns the non-empty part of key between its first '{' and the
// following '}', or key itself. Keys sharing a hash tag live on the same
// server: "{user1}:friends" and "{user1}:follows".
func HashTag(key []byte) []byte {
	_, rest, found := bytes.Cut(key, []byte("{"))
	if !found {
		return key
	}
	tag, _, found := bytes.Cut(rest, []byte("}"))
	if !found || len(tag) == 0 {
		return key
	}
	return tag
}

// staticSelector always selects the same server. Used in tests.
func staticSelector(index int) ServerSelector {
	return func(_ []byte, serverCount int) int {
		return index % serverCount
	}
}
