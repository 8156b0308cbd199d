package workload

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/setstream"
	"github.com/pior/setstream/store"
)

func newClient(t *testing.T, servers int) *setstream.Client {
	t.Helper()

	addrs := make([]string, servers)
	for i := range addrs {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		srv := store.NewServer(store.New(store.NewMemory(), store.Options{}), nil)
		go func() { _ = srv.Serve(ln) }()
		t.Cleanup(func() { _ = srv.Close() })
		addrs[i] = ln.Addr().String()
	}

	client, err := setstream.NewClient(setstream.NewStaticServers(addrs...), setstream.Config{MaxSize: 4})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"batch-heavy", "mixed", "read-heavy"}, Names())

	w, err := Get("mixed")
	require.NoError(t, err)
	assert.Equal(t, "mixed", w.Name())

	_, err = Get("missing")
	assert.Error(t, err)
}

func TestWorkloads(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			w, err := Get(name)
			require.NoError(t, err)

			client := newClient(t, 2)
			runner := NewRunner(client, w, 4)

			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			require.NoError(t, runner.Run(ctx))

			stats := runner.Stats()
			assert.Positive(t, stats.TotalOps)
			assert.Zero(t, stats.FailedOps, stats.String())
			assert.Zero(t, stats.ErrorRate)
		})
	}
}

func TestRunner_CountsFailures(t *testing.T) {
	client := newClient(t, 1)
	client.Close()

	runner := NewRunner(client, &ReadHeavyWorkload{}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, runner.Run(ctx))

	stats := runner.Stats()
	assert.Positive(t, stats.FailedOps)
	assert.Zero(t, stats.SuccessOps)
	assert.InDelta(t, 1.0, stats.ErrorRate, 0.001)
}
