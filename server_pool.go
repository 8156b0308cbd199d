package setstream

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/setstream/resp"
)

// NewServerPool creates the pool and circuit breaker for one server address.
func NewServerPool(addr string, config Config) (*ServerPool, error) {
	constructor := config.constructor
	if constructor == nil {
		dialer := config.dialer()
		constructor = func(ctx context.Context) (*Connection, error) {
			netConn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				return nil, err
			}
			return NewConnection(netConn), nil
		}
	}

	newPool := config.Pool
	if newPool == nil {
		newPool = NewPuddlePool
	}
	pool, err := newPool(constructor, config.MaxSize)
	if err != nil {
		return nil, err
	}

	sp := &ServerPool{
		addr:   addr,
		pool:   pool,
		logger: config.logger().With().Str("server", addr).Logger(),
	}
	if config.NewCircuitBreaker != nil {
		sp.circuitBreaker = config.NewCircuitBreaker(addr)
	}
	return sp, nil
}

// ServerPool wraps a pool and an optional circuit breaker with its server
// address.
type ServerPool struct {
	addr           string
	pool           Pool
	circuitBreaker *CircuitBreaker
	logger         zerolog.Logger
}

func (sp *ServerPool) Address() string {
	return sp.addr
}

// ServerPoolStats contains stats for a single server pool.
type ServerPoolStats struct {
	Addr                 string
	PoolStats            PoolStats
	CircuitBreakerState  gobreaker.State
	CircuitBreakerCounts gobreaker.Counts
}

func (sp *ServerPool) Stats() ServerPoolStats {
	stats := ServerPoolStats{
		Addr:      sp.addr,
		PoolStats: sp.pool.Stats(),
	}
	if sp.circuitBreaker != nil {
		stats.CircuitBreakerState = sp.circuitBreaker.State()
		stats.CircuitBreakerCounts = sp.circuitBreaker.Counts()
	}
	return stats
}

// Execute sends req on a pooled connection, through the circuit breaker when
// one is configured. Error replies are returned on Reply.Err; a non-nil error
// means no reply was received.
func (sp *ServerPool) Execute(ctx context.Context, req *resp.Request) (*resp.Reply, error) {
	if sp.circuitBreaker == nil {
		return sp.execRequestDirect(ctx, req)
	}

	return sp.circuitBreaker.Execute(func() (*resp.Reply, error) {
		return sp.execRequestDirect(ctx, req)
	})
}

func (sp *ServerPool) execRequestDirect(ctx context.Context, req *resp.Request) (*resp.Reply, error) {
	replies, err := sp.execBatchDirect(ctx, []*resp.Request{req})
	if err != nil {
		return nil, err
	}
	return replies[0], nil
}

// ExecuteBatch pipelines reqs on one pooled connection and returns the replies
// in request order. Error replies stay on their Reply; a non-nil error means
// no reply of the batch can be trusted. The whole batch counts as one request
// for the circuit breaker.
func (sp *ServerPool) ExecuteBatch(ctx context.Context, reqs []*resp.Request) ([]*resp.Reply, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	if sp.circuitBreaker == nil {
		return sp.execBatchDirect(ctx, reqs)
	}

	var replies []*resp.Reply
	_, err := sp.circuitBreaker.Execute(func() (*resp.Reply, error) {
		var err error
		replies, err = sp.execBatchDirect(ctx, reqs)
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	return replies, nil
}

func (sp *ServerPool) execBatchDirect(ctx context.Context, reqs []*resp.Request) ([]*resp.Reply, error) {
	resource, err := sp.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	replies, err := resource.Value().SendBatch(ctx, reqs)
	if err != nil {
		if resp.ShouldCloseConnection(err) {
			sp.logger.Debug().Err(err).Str("command", reqs[0].Command).Int("requests", len(reqs)).Msg("destroying connection")
			resource.Destroy()
		} else {
			resource.Release()
		}
		return nil, err
	}

	resource.Release()
	return replies, nil
}

func (sp *ServerPool) Close() {
	sp.pool.Close()
}
