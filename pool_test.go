package setstream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var poolFactories = map[string]PoolFactory{
	"puddle":  NewPuddlePool,
	"channel": NewChannelPool,
}

func forEachPool(t *testing.T, maxSize int32, fn func(t *testing.T, pool Pool)) {
	for name, factory := range poolFactories {
		t.Run(name, func(t *testing.T) {
			pool, err := factory(mockConstructor(), maxSize)
			require.NoError(t, err)
			t.Cleanup(pool.Close)
			fn(t, pool)
		})
	}
}

func TestPool_ReusesReleasedConnection(t *testing.T) {
	forEachPool(t, 2, func(t *testing.T, pool Pool) {
		ctx := context.Background()

		res, err := pool.Acquire(ctx)
		require.NoError(t, err)
		conn := res.Value()
		res.Release()

		res, err = pool.Acquire(ctx)
		require.NoError(t, err)
		assert.Same(t, conn, res.Value())
		res.Release()

		stats := pool.Stats()
		assert.Equal(t, uint64(2), stats.AcquireCount)
		assert.Equal(t, uint64(1), stats.CreatedConns)
		assert.Equal(t, int32(1), stats.TotalConns)
		assert.Equal(t, int32(1), stats.IdleConns)
		assert.Zero(t, stats.ActiveConns)
	})
}

func TestPool_MaxSizeBlocks(t *testing.T) {
	forEachPool(t, 1, func(t *testing.T, pool Pool) {
		res, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		defer res.Release()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err = pool.Acquire(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, int32(1), pool.Stats().ActiveConns)
	})
}

func TestPool_WaiterGetsReleasedConnection(t *testing.T) {
	forEachPool(t, 1, func(t *testing.T, pool Pool) {
		res, err := pool.Acquire(context.Background())
		require.NoError(t, err)

		time.AfterFunc(10*time.Millisecond, res.Release)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		next, err := pool.Acquire(ctx)
		require.NoError(t, err)
		next.Release()
	})
}

func TestPool_DestroyFreesSlot(t *testing.T) {
	forEachPool(t, 1, func(t *testing.T, pool Pool) {
		res, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		first := res.Value()
		res.Destroy()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		res, err = pool.Acquire(ctx)
		require.NoError(t, err)
		assert.NotSame(t, first, res.Value())
		res.Release()

		assert.Eventually(t, func() bool {
			return pool.Stats().DestroyedConns == 1
		}, time.Second, time.Millisecond)
	})
}

func TestPool_AcquireAllIdle(t *testing.T) {
	forEachPool(t, 3, func(t *testing.T, pool Pool) {
		ctx := context.Background()

		var held []Resource
		for range 3 {
			res, err := pool.Acquire(ctx)
			require.NoError(t, err)
			held = append(held, res)
		}
		for _, res := range held {
			res.Release()
		}

		idle := pool.AcquireAllIdle()
		require.Len(t, idle, 3)
		for _, res := range idle {
			assert.False(t, res.CreationTime().IsZero())
			assert.GreaterOrEqual(t, res.IdleDuration(), time.Duration(0))
			res.ReleaseUnused()
		}
		assert.Equal(t, int32(3), pool.Stats().IdleConns)
	})
}

func TestPool_ConstructorError(t *testing.T) {
	for name, factory := range poolFactories {
		t.Run(name, func(t *testing.T) {
			pool, err := factory(func(ctx context.Context) (*Connection, error) {
				return nil, errors.New("dial failed")
			}, 1)
			require.NoError(t, err)
			defer pool.Close()

			_, err = pool.Acquire(context.Background())
			assert.ErrorContains(t, err, "dial failed")
			assert.Zero(t, pool.Stats().TotalConns)
		})
	}
}

func TestChannelPool_Close(t *testing.T) {
	pool, err := NewChannelPool(mockConstructor(), 2)
	require.NoError(t, err)

	idle, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	inUse, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	idle.Release()

	pool.Close()
	pool.Close()

	assert.True(t, idle.Value().closed)
	assert.False(t, inUse.Value().closed)

	inUse.Release()
	assert.True(t, inUse.Value().closed)

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	stats := pool.Stats()
	assert.Zero(t, stats.TotalConns)
	assert.Equal(t, uint64(2), stats.DestroyedConns)
}

func TestChannelPool_WaiterDoesNotDialAfterClose(t *testing.T) {
	var dials atomic.Int64
	constructor := mockConstructor()
	pool, err := NewChannelPool(func(ctx context.Context) (*Connection, error) {
		dials.Add(1)
		return constructor(ctx)
	}, 1)
	require.NoError(t, err)

	res, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	waiter := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(context.Background())
		waiter <- err
	}()
	require.Eventually(t, func() bool { return pool.Stats().AcquireWaitCount == 1 }, time.Second, time.Millisecond)

	pool.Close()
	res.Destroy()

	select {
	case err := <-waiter:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter still blocked")
	}
	assert.Equal(t, int64(1), dials.Load())
	assert.Zero(t, pool.Stats().TotalConns)
}

func TestChannelPool_InvalidSize(t *testing.T) {
	_, err := NewChannelPool(mockConstructor(), 0)
	assert.Error(t, err)
}
