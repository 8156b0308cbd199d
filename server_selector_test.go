package setstream

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultServerSelector(t *testing.T) {
	t.Run("consistency", func(t *testing.T) {
		key := []byte("users:active")
		first := DefaultServerSelector(key, 10)
		for range 4 {
			require.Equal(t, first, DefaultServerSelector(key, 10))
		}
	})

	t.Run("bounds", func(t *testing.T) {
		keys := [][]byte{[]byte("k1"), []byte("k2"), []byte(""), []byte("long-key-with-many-characters")}
		serverCounts := []int{1, 2, 5, 10, 100}

		for _, key := range keys {
			for _, count := range serverCounts {
				result := DefaultServerSelector(key, count)
				require.True(t, result >= 0 && result < count, "out of bounds: key=%q, serverCount=%d, result=%d", key, count, result)
			}
		}
	})

	t.Run("hash tags colocate keys", func(t *testing.T) {
		for i := range 50 {
			tag := fmt.Sprintf("user%d", i)
			require.Equal(t,
				DefaultServerSelector(fmt.Appendf(nil, "{%s}:friends", tag), 10),
				DefaultServerSelector(fmt.Appendf(nil, "{%s}:follows", tag), 10),
			)
		}
	})

	t.Run("distribution", func(t *testing.T) {
		serverCount := 10
		distribution := make(map[int]int)

		for i := range 100 {
			server := DefaultServerSelector(fmt.Appendf(nil, "set-%d", i), serverCount)
			distribution[server]++
		}

		require.True(t, len(distribution) >= 5, "poor distribution: only %d servers used out of %d", len(distribution), serverCount)
		for server, count := range distribution {
			require.True(t, count <= 30, "unbalanced distribution: server %d has %d%% of keys", server, count)
		}
	})
}

func TestHashTag(t *testing.T) {
	tests := []struct {
		key, want string
	}{
		{"plain", "plain"},
		{"{user1}:friends", "user1"},
		{"a{b}c{d}", "b"},
		{"{}:empty", "{}:empty"},
		{"open{only", "open{only"},
		{"close}{x}", "x"},
	}
	for _, tt := range tests {
		require.Equal(t, []byte(tt.want), HashTag([]byte(tt.key)), "key %q", tt.key)
	}
}

func TestStaticSelector(t *testing.T) {
	sel := staticSelector(3)
	require.Equal(t, 3, sel([]byte("a"), 5))
	require.Equal(t, 1, sel([]byte("a"), 2))
}

func BenchmarkDefaultServerSelector(b *testing.B) {
	key := []byte("benchmark-key-123")

	for b.Loop() {
		DefaultServerSelector(key, 10)
	}
}
