package setstream

import (
	"context"
	"fmt"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/setstream/resp"
	"github.com/pior/setstream/store"
)

func startStoreServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := store.NewServer(store.New(store.NewMemory(), store.Options{}), nil)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	return ln.Addr().String()
}

func newTestClient(t *testing.T, config Config, addrs ...string) *Client {
	t.Helper()
	client, err := NewClient(NewStaticServers(addrs...), config)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestClient_ScalarCommands(t *testing.T) {
	client := newTestClient(t, Config{}, startStoreServer(t))
	ctx := context.Background()

	added, err := client.SAdd(ctx, b("k1"), b("a"), b("b"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), added)

	card, err := client.SCard(ctx, b("k1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), card)

	_, err = client.SAdd(ctx, b("k2"), b("b"), b("c"))
	require.NoError(t, err)

	inter, err := client.SInter(ctx, b("k1"), b("k2"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{b("b")}, inter)

	moved, err := client.SMove(ctx, b("k1"), b("k2"), b("a"))
	require.NoError(t, err)
	assert.True(t, moved)

	members, err := client.SMembers(ctx, b("k2"))
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]byte{b("a"), b("b"), b("c")}, members)

	member, err := client.SRandMember(ctx, b("missing"))
	require.NoError(t, err)
	assert.Nil(t, member)
}

func TestClient_Batch(t *testing.T) {
	client := newTestClient(t, Config{BatchConcurrency: 4}, startStoreServer(t))
	ctx := context.Background()

	cmds := make([]SAddCommand, 50)
	for i := range cmds {
		cmds[i] = SAddValues(b("a"), b("b"), fmt.Appendf(nil, "member-%d", i)).To(fmt.Appendf(nil, "set-%d", i))
	}

	count := 0
	for r, err := range client.Batch().SAdd(ctx, slices.Values(cmds)) {
		require.NoError(t, err)
		require.NoError(t, r.Err)
		assert.Equal(t, int64(3), r.Output)
		count++
	}
	assert.Equal(t, len(cmds), count)

	stats := client.Stats()
	assert.Equal(t, uint64(50), stats.Requests)
	assert.Zero(t, stats.Errors)
}

func TestClient_MultipleServers(t *testing.T) {
	addrs := []string{startStoreServer(t), startStoreServer(t), startStoreServer(t)}
	client := newTestClient(t, Config{}, addrs...)
	ctx := context.Background()

	for i := range 100 {
		key := fmt.Appendf(nil, "key-%d", i)
		_, err := client.SAdd(ctx, key, b("v"))
		require.NoError(t, err)

		member, err := client.SIsMember(ctx, key, b("v"))
		require.NoError(t, err)
		assert.True(t, member, "key %s", key)
	}

	stats := client.AllPoolStats()
	require.Len(t, stats, 3)
	slices.Sort(addrs)
	for i, s := range stats {
		assert.Equal(t, addrs[i], s.Addr)
		assert.Positive(t, s.PoolStats.AcquireCount)
	}
}

func TestClient_ErrorReplyStats(t *testing.T) {
	addr := startStoreServer(t)
	client := newTestClient(t, Config{}, addr)
	ctx := context.Background()

	netConn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	conn := NewConnection(netConn)
	defer conn.Close()
	_, err = conn.Send(ctx, resp.NewRequest(resp.CmdSet, b("str"), b("value")))
	require.NoError(t, err)

	var failed, succeeded int
	cmds := []KeyCommand{NewKeyCommand(b("str")), NewKeyCommand(nil), NewKeyCommand(b("set"))}
	for r, err := range client.Batch().SCard(ctx, slices.Values(cmds)) {
		require.NoError(t, err)
		if r.Failed() {
			failed++
		} else {
			succeeded++
		}
	}
	assert.Equal(t, 2, failed)
	assert.Equal(t, 1, succeeded)

	// the invalid command is never sent
	stats := client.Stats()
	assert.Equal(t, uint64(2), stats.Requests)
	assert.Equal(t, uint64(1), stats.ReplyErrors)
	assert.Zero(t, stats.Errors)
}

func TestClient_Closed(t *testing.T) {
	client := newTestClient(t, Config{}, startStoreServer(t))
	client.Close()
	client.Close()

	_, err := client.SCard(context.Background(), b("k"))
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.Equal(t, uint64(1), client.Stats().Errors)
}

func TestClient_NoServers(t *testing.T) {
	_, err := NewClient(NewStaticServers(), Config{})
	assert.ErrorIs(t, err, ErrNoServers)
}

func TestClient_HealthCheckEvictsOldConnections(t *testing.T) {
	client := newTestClient(t, Config{
		MaxConnLifetime:     time.Millisecond,
		HealthCheckInterval: 10 * time.Millisecond,
	}, startStoreServer(t))

	_, err := client.SCard(context.Background(), b("k"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		stats := client.AllPoolStats()
		return len(stats) == 1 && stats[0].PoolStats.DestroyedConns == 1 && stats[0].PoolStats.TotalConns == 0
	}, time.Second, 10*time.Millisecond)
}

func TestClient_HealthCheckKeepsHealthyConnections(t *testing.T) {
	client := newTestClient(t, Config{}, startStoreServer(t))

	_, err := client.SCard(context.Background(), b("k"))
	require.NoError(t, err)

	client.checkAllPools()

	stats := client.AllPoolStats()
	require.Len(t, stats, 1)
	assert.Equal(t, int32(1), stats[0].PoolStats.IdleConns)
	assert.Zero(t, stats[0].PoolStats.DestroyedConns)
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	// reserve a port nobody listens on
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := newTestClient(t, Config{
		CircuitBreaker:            true,
		CircuitBreakerMaxRequests: 1,
		CircuitBreakerInterval:    time.Minute,
		CircuitBreakerTimeout:     time.Minute,
		DialTimeout:               100 * time.Millisecond,
	}, addr)
	ctx := context.Background()

	for range 3 {
		_, err := client.SCard(ctx, b("k"))
		require.Error(t, err)
	}

	_, err = client.SCard(ctx, b("k"))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	stats := client.AllPoolStats()
	require.Len(t, stats, 1)
	assert.Equal(t, gobreaker.StateOpen, stats[0].CircuitBreakerState)
	assert.Equal(t, uint64(4), client.Stats().Errors)
}

func TestClient_Collector(t *testing.T) {
	client := newTestClient(t, Config{}, startStoreServer(t))

	_, err := client.SAdd(context.Background(), b("k"), b("a"))
	require.NoError(t, err)

	families := gather(t, NewCollector(client))
	assert.Equal(t, 1.0, families["setstream_client_requests_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, families["setstream_pool_connections_created_total"].GetMetric()[0].GetCounter().GetValue())
}

// prefixSelector sends keys starting with 'b' to the second server and every
// other key to the first.
func prefixSelector(key []byte, serverCount int) int {
	if len(key) > 0 && key[0] == 'b' {
		return 1 % serverCount
	}
	return 0
}

func TestClient_CrossServerKeysAreRejected(t *testing.T) {
	client := newTestClient(t, Config{SelectServer: prefixSelector}, startStoreServer(t), startStoreServer(t))
	ctx := context.Background()

	_, err := client.SAdd(ctx, b("a1"), b("x"), b("shared"))
	require.NoError(t, err)
	_, err = client.SAdd(ctx, b("b1"), b("shared"))
	require.NoError(t, err)

	assertCrossSlot := func(t *testing.T, err error) {
		t.Helper()
		var serr *resp.ServerError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, resp.ErrKindCrossSlot, serr.Kind)
	}

	_, err = client.SMove(ctx, b("a1"), b("b1"), b("x"))
	assertCrossSlot(t, err)
	_, err = client.SInter(ctx, b("a1"), b("b1"))
	assertCrossSlot(t, err)
	_, err = client.SUnion(ctx, b("a1"), b("b1"))
	assertCrossSlot(t, err)
	_, err = client.SDiff(ctx, b("a1"), b("b1"))
	assertCrossSlot(t, err)
	_, err = client.SInterStore(ctx, b("a2"), b("a1"), b("b1"))
	assertCrossSlot(t, err)
	_, err = client.SDiffStore(ctx, b("b2"), b("b1"), b("a1"))
	assertCrossSlot(t, err)

	members, err := client.SMembers(ctx, b("a1"))
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]byte{b("x"), b("shared")}, members, "rejected SMOVE left the source untouched")

	moved, err := client.SMove(ctx, b("a1"), b("a2"), b("x"))
	require.NoError(t, err)
	assert.True(t, moved)

	members, err = client.SMembers(ctx, b("a2"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{b("x")}, members)

	_, err = client.SAdd(ctx, b("b2"), b("shared"), b("y"))
	require.NoError(t, err)
	inter, err := client.SInter(ctx, b("b1"), b("b2"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{b("shared")}, inter)

	assert.Equal(t, uint64(6), client.Stats().ReplyErrors)
}

func TestClient_HashTagsColocateKeys(t *testing.T) {
	addrs := []string{startStoreServer(t), startStoreServer(t), startStoreServer(t)}
	client := newTestClient(t, Config{}, addrs...)
	ctx := context.Background()

	for i := range 20 {
		src := fmt.Appendf(nil, "{user%d}:pending", i)
		dst := fmt.Appendf(nil, "{user%d}:done", i)

		_, err := client.SAdd(ctx, src, b("task"))
		require.NoError(t, err)

		moved, err := client.SMove(ctx, src, dst, b("task"))
		require.NoError(t, err)
		assert.True(t, moved)

		isMember, err := client.SIsMember(ctx, dst, b("task"))
		require.NoError(t, err)
		assert.True(t, isMember)
	}
}

func TestClient_BatchAcrossServers(t *testing.T) {
	client := newTestClient(t, Config{SelectServer: prefixSelector}, startStoreServer(t), startStoreServer(t))
	ctx := context.Background()

	var cmds []SAddCommand
	for i := range 30 {
		prefix := "a"
		if i%2 == 1 {
			prefix = "b"
		}
		cmds = append(cmds, SAddValues(b("m"), fmt.Appendf(nil, "m%d", i)).To(fmt.Appendf(nil, "%s-%d", prefix, i)))
	}

	count := 0
	for r, err := range client.Batch().SAdd(ctx, slices.Values(cmds)) {
		require.NoError(t, err)
		require.NoError(t, r.Err)
		assert.Equal(t, int64(2), r.Output)
		count++
	}
	assert.Equal(t, len(cmds), count)

	stats := client.AllPoolStats()
	require.Len(t, stats, 2)
	for _, s := range stats {
		assert.Positive(t, s.PoolStats.AcquireCount)
		assert.LessOrEqual(t, s.PoolStats.CreatedConns, uint64(DefaultConcurrency))
	}

	var inter []SInterCommand
	for i := range 4 {
		inter = append(inter, SInterKeys(fmt.Appendf(nil, "a-%d", 2*i), fmt.Appendf(nil, "b-%d", 2*i+1)))
	}
	for r, err := range client.Batch().SInter(ctx, slices.Values(inter)) {
		require.NoError(t, err)
		var serr *resp.ServerError
		require.ErrorAs(t, r.Err, &serr)
		assert.Equal(t, resp.ErrKindCrossSlot, serr.Kind)
	}
}

func TestClient_ExecuteBatchPipelines(t *testing.T) {
	client := newTestClient(t, Config{}, startStoreServer(t))
	ctx := context.Background()

	reqs := []*resp.Request{
		resp.NewRequest(resp.CmdSAdd, b("k"), b("a"), b("b")),
		resp.NewRequest(resp.CmdSCard, b("k")),
		resp.NewRequest(resp.CmdSIsMember, b("k"), b("c")),
		resp.NewRequest(resp.CmdSMembers, b("k")),
	}
	replies, err := client.ExecuteBatch(ctx, reqs)
	require.NoError(t, err)
	require.Len(t, replies, len(reqs))

	assert.Equal(t, int64(2), replies[0].Int)
	assert.Equal(t, int64(2), replies[1].Int)
	assert.Equal(t, int64(0), replies[2].Int)
	assert.Len(t, replies[3].Elems, 2)

	stats := client.AllPoolStats()
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(1), stats[0].PoolStats.AcquireCount, "one connection round trip")
	assert.Equal(t, uint64(4), client.Stats().Requests)
}
