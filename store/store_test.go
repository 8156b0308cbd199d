package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jackc/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/setstream/resp"
)

func backends(t *testing.T) map[string]func() Backend {
	t.Helper()
	return map[string]func() Backend{
		"memory": func() Backend { return NewMemory() },
		"bolt": func() Backend {
			b, err := OpenBolt(filepath.Join(t.TempDir(), "sets.db"))
			require.NoError(t, err)
			return b
		},
	}
}

// forEachBackend runs fn against a fresh Store on every backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, s *Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(open(), Options{})
			defer s.Close()
			fn(t, s)
		})
	}
}

func do(t *testing.T, s *Store, cmd string, args ...string) *resp.Reply {
	t.Helper()
	req := resp.NewRequest(cmd)
	for _, a := range args {
		req.AddArg([]byte(a))
	}
	reply, err := s.Execute(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, reply)
	return reply
}

func integer(t *testing.T, reply *resp.Reply) int64 {
	t.Helper()
	n, err := reply.Integer()
	require.NoError(t, err)
	return n
}

func members(t *testing.T, reply *resp.Reply) []string {
	t.Helper()
	list, err := reply.List()
	require.NoError(t, err)
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = string(m)
	}
	return out
}

func TestStore_AddAndCard(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		assert.Equal(t, int64(2), integer(t, do(t, s, "SADD", "k", "a", "b")))
		assert.Equal(t, int64(0), integer(t, do(t, s, "SADD", "k", "a")))
		assert.Equal(t, int64(2), integer(t, do(t, s, "SCARD", "k")))
		assert.Equal(t, int64(0), integer(t, do(t, s, "SCARD", "missing")))
	})
}

func TestStore_AddManyFakeMembers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		want := make([]string, 50)
		args := []string{"words"}
		for i := range want {
			want[i] = fmt.Sprintf("%s-%d", fake.WordsN(2), i)
			args = append(args, want[i])
		}

		assert.Equal(t, int64(50), integer(t, do(t, s, "SADD", args...)))
		assert.ElementsMatch(t, want, members(t, do(t, s, "SMEMBERS", "words")))
	})
}

func TestStore_EmptyMember(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		assert.Equal(t, int64(1), integer(t, do(t, s, "SADD", "", "")))
		assert.Equal(t, int64(1), integer(t, do(t, s, "SISMEMBER", "", "")))
		assert.Equal(t, []string{""}, members(t, do(t, s, "SMEMBERS", "")))
	})
}

func TestStore_RemoveDeletesEmptySet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		do(t, s, "SADD", "k", "a", "b")
		assert.Equal(t, int64(1), integer(t, do(t, s, "SREM", "k", "a", "zzz")))
		assert.Equal(t, int64(1), integer(t, do(t, s, "SREM", "k", "b")))
		assert.Equal(t, int64(0), integer(t, do(t, s, "DEL", "k")))

		// the key is gone, so it may now hold a string
		assert.Equal(t, resp.StatusOK, do(t, s, "SET", "k", "v").String())
	})
}

func TestStore_Pop(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		assert.True(t, do(t, s, "SPOP", "k").IsNull())

		do(t, s, "SADD", "k", "a", "b")
		popped := map[string]bool{}
		for range 2 {
			b, err := do(t, s, "SPOP", "k").Bytes()
			require.NoError(t, err)
			popped[string(b)] = true
		}
		assert.Equal(t, map[string]bool{"a": true, "b": true}, popped)
		assert.True(t, do(t, s, "SPOP", "k").IsNull())
	})
}

func TestStore_Move(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		do(t, s, "SADD", "src", "a", "b")

		assert.Equal(t, int64(1), integer(t, do(t, s, "SMOVE", "src", "dst", "a")))
		assert.Equal(t, []string{"b"}, members(t, do(t, s, "SMEMBERS", "src")))
		assert.Equal(t, []string{"a"}, members(t, do(t, s, "SMEMBERS", "dst")))

		assert.Equal(t, int64(0), integer(t, do(t, s, "SMOVE", "src", "dst", "zzz")))
		assert.Equal(t, int64(0), integer(t, do(t, s, "SMOVE", "missing", "dst", "a")))

		// moving onto itself keeps the member
		assert.Equal(t, int64(1), integer(t, do(t, s, "SMOVE", "dst", "dst", "a")))
		assert.Equal(t, int64(1), integer(t, do(t, s, "SISMEMBER", "dst", "a")))
	})
}

func TestStore_IsMember(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		do(t, s, "SADD", "k", "a")
		assert.Equal(t, int64(1), integer(t, do(t, s, "SISMEMBER", "k", "a")))
		assert.Equal(t, int64(0), integer(t, do(t, s, "SISMEMBER", "k", "b")))
		assert.Equal(t, int64(0), integer(t, do(t, s, "SISMEMBER", "missing", "a")))
	})
}

func TestStore_Algebra(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		do(t, s, "SADD", "k1", "a", "b")
		do(t, s, "SADD", "k2", "b", "c")

		assert.ElementsMatch(t, []string{"b"}, members(t, do(t, s, "SINTER", "k1", "k2")))
		assert.ElementsMatch(t, []string{"a", "b", "c"}, members(t, do(t, s, "SUNION", "k1", "k2")))
		assert.ElementsMatch(t, []string{"a"}, members(t, do(t, s, "SDIFF", "k1", "k2")))

		assert.Empty(t, members(t, do(t, s, "SINTER", "k1", "missing")))
		assert.ElementsMatch(t, []string{"a", "b"}, members(t, do(t, s, "SUNION", "k1", "missing")))
		assert.Empty(t, members(t, do(t, s, "SDIFF", "missing", "k1")))
		assert.ElementsMatch(t, []string{"a", "b"}, members(t, do(t, s, "SINTER", "k1")))
	})
}

func TestStore_AlgebraStore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		do(t, s, "SADD", "k1", "a", "b")
		do(t, s, "SADD", "k2", "b", "c")
		do(t, s, "SADD", "dst", "old")

		assert.Equal(t, int64(1), integer(t, do(t, s, "SINTERSTORE", "dst", "k1", "k2")))
		assert.Equal(t, []string{"b"}, members(t, do(t, s, "SMEMBERS", "dst")))

		assert.Equal(t, int64(3), integer(t, do(t, s, "SUNIONSTORE", "dst", "k1", "k2")))
		assert.ElementsMatch(t, []string{"a", "b", "c"}, members(t, do(t, s, "SMEMBERS", "dst")))

		assert.Equal(t, int64(1), integer(t, do(t, s, "SDIFFSTORE", "dst", "k1", "k2")))
		assert.Equal(t, []string{"a"}, members(t, do(t, s, "SMEMBERS", "dst")))

		// destination may be one of the sources
		assert.Equal(t, int64(2), integer(t, do(t, s, "SUNIONSTORE", "k1", "k1", "dst")))
		assert.ElementsMatch(t, []string{"a", "b"}, members(t, do(t, s, "SMEMBERS", "k1")))
	})
}

func TestStore_AlgebraStoreOverwritesString(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		do(t, s, "SET", "dst", "value")
		do(t, s, "SADD", "k1", "a")

		assert.Equal(t, int64(1), integer(t, do(t, s, "SUNIONSTORE", "dst", "k1")))
		assert.Equal(t, []string{"a"}, members(t, do(t, s, "SMEMBERS", "dst")))
	})
}

func TestStore_AlgebraStoreEmptyResultDeletesDestination(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		do(t, s, "SADD", "dst", "old")
		assert.Equal(t, int64(0), integer(t, do(t, s, "SINTERSTORE", "dst", "missing")))
		assert.Equal(t, int64(0), integer(t, do(t, s, "DEL", "dst")))
	})
}

func TestStore_RandMember(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		assert.True(t, do(t, s, "SRANDMEMBER", "k").IsNull())
		assert.Empty(t, members(t, do(t, s, "SRANDMEMBER", "k", "3")))

		do(t, s, "SADD", "k", "a", "b", "c")

		b, err := do(t, s, "SRANDMEMBER", "k").Bytes()
		require.NoError(t, err)
		assert.Contains(t, []string{"a", "b", "c"}, string(b))

		got := members(t, do(t, s, "SRANDMEMBER", "k", "2"))
		assert.Len(t, got, 2)
		assert.NotEqual(t, got[0], got[1])

		assert.ElementsMatch(t, []string{"a", "b", "c"}, members(t, do(t, s, "SRANDMEMBER", "k", "10")))
		assert.Empty(t, members(t, do(t, s, "SRANDMEMBER", "k", "0")))

		repeated := members(t, do(t, s, "SRANDMEMBER", "k", "-7"))
		assert.Len(t, repeated, 7)
		for _, m := range repeated {
			assert.Contains(t, []string{"a", "b", "c"}, m)
		}

		// read-only
		assert.Equal(t, int64(3), integer(t, do(t, s, "SCARD", "k")))

		reply := do(t, s, "SRANDMEMBER", "k", "many")
		assert.True(t, reply.HasError())
	})
}

func TestStore_WrongType(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		do(t, s, "SET", "str", "v")
		do(t, s, "SADD", "set", "a")

		for _, args := range [][]string{
			{"SADD", "str", "a"},
			{"SREM", "str", "a"},
			{"SPOP", "str"},
			{"SCARD", "str"},
			{"SISMEMBER", "str", "a"},
			{"SMEMBERS", "str"},
			{"SRANDMEMBER", "str"},
			{"SMOVE", "set", "str", "a"},
			{"SINTER", "set", "str"},
			{"SUNIONSTORE", "dst", "set", "str"},
			{"GET", "set"},
		} {
			reply := do(t, s, args[0], args[1:]...)
			require.True(t, reply.HasError(), "%v", args)

			var serr *resp.ServerError
			require.ErrorAs(t, reply.Err, &serr)
			assert.True(t, serr.IsWrongType(), "%v", args)
		}

		// a failed SMOVE leaves the source untouched
		assert.Equal(t, int64(1), integer(t, do(t, s, "SISMEMBER", "set", "a")))
	})
}

func TestStore_Arity(t *testing.T) {
	s := New(NewMemory(), Options{})

	for _, args := range [][]string{
		{"SADD", "k"},
		{"SPOP"},
		{"SPOP", "k", "1"},
		{"SMOVE", "a", "b"},
		{"SINTERSTORE", "dst"},
		{"SRANDMEMBER", "k", "1", "2"},
		{"GET"},
	} {
		reply := do(t, s, args[0], args[1:]...)
		require.True(t, reply.HasError(), "%v", args)
		assert.Contains(t, reply.Err.Error(), "wrong number of arguments")
	}
}

func TestStore_UnknownCommand(t *testing.T) {
	s := New(NewMemory(), Options{})
	reply := do(t, s, "FLUSHALL")
	require.True(t, reply.HasError())
	assert.Contains(t, reply.Err.Error(), "unknown command")
}

func TestStore_LowercaseCommand(t *testing.T) {
	s := New(NewMemory(), Options{})
	assert.Equal(t, int64(1), integer(t, do(t, s, "sadd", "k", "a")))
}

func TestStore_Strings(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		assert.True(t, do(t, s, "GET", "k").IsNull())
		do(t, s, "SET", "k", "")
		b, err := do(t, s, "GET", "k").Bytes()
		require.NoError(t, err)
		assert.NotNil(t, b)
		assert.Empty(t, b)

		do(t, s, "SET", "k", "v")
		assert.Equal(t, int64(1), integer(t, do(t, s, "DEL", "k", "missing")))
	})
}

func TestStore_Ping(t *testing.T) {
	s := New(NewMemory(), Options{})
	assert.Equal(t, resp.StatusPong, do(t, s, "PING").String())

	b, err := do(t, s, "PING", "hello").Bytes()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestStore_CancelledContext(t *testing.T) {
	s := New(NewMemory(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Execute(ctx, resp.NewRequest("PING"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_ClosedBackend(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(open(), Options{})
			require.NoError(t, s.Close())

			_, err := s.Execute(context.Background(), resp.NewRequest("SCARD", []byte("k")))
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestBolt_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sets.db")

	b, err := OpenBolt(path)
	require.NoError(t, err)
	s := New(b, Options{})
	do(t, s, "SADD", "k", "a", "b")
	require.NoError(t, s.Close())

	b, err = OpenBolt(path)
	require.NoError(t, err)
	s = New(b, Options{})
	defer s.Close()
	assert.ElementsMatch(t, []string{"a", "b"}, members(t, do(t, s, "SMEMBERS", "k")))
}

func TestOpenBolt_EmptyPath(t *testing.T) {
	_, err := OpenBolt("  ")
	assert.Error(t, err)
}

func TestMemory_ViewIsReadOnly(t *testing.T) {
	m := NewMemory()
	err := m.View(func(tx Tx) error {
		_, err := tx.Add([]byte("k"), []byte("a"))
		return err
	})
	assert.ErrorIs(t, err, errReadOnly)
}
