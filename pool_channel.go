package setstream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/setstream/internal/coarsetime"
)

var ErrPoolClosed = errors.New("setstream: pool closed")

// NewChannelPool creates a pool holding idle connections in a buffered
// channel. It is a lighter alternative to NewPuddlePool and satisfies
// PoolFactory.
func NewChannelPool(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error) {
	if maxSize < 1 {
		return nil, errors.New("setstream: pool max size must be at least 1")
	}
	return &channelPool{
		constructor: constructor,
		idle:        make(chan *channelResource, maxSize),
		slots:       make(chan struct{}, maxSize),
	}, nil
}

type channelResource struct {
	conn     *Connection
	pool     *channelPool
	created  time.Time
	lastUsed time.Time
}

func (r *channelResource) Value() *Connection { return r.conn }

func (r *channelResource) Release() {
	r.lastUsed = coarsetime.Now()
	r.pool.put(r)
}

// ReleaseUnused returns the connection without refreshing its idle time.
func (r *channelResource) ReleaseUnused() {
	r.pool.put(r)
}

func (r *channelResource) Destroy() {
	r.pool.destroy(r)
}

func (r *channelResource) CreationTime() time.Time { return r.created }

func (r *channelResource) IdleDuration() time.Duration {
	return coarsetime.Since(r.lastUsed)
}

// channelPool bounds open connections with slots: a connection holds one slot
// from creation until destruction.
type channelPool struct {
	constructor func(ctx context.Context) (*Connection, error)

	idle  chan *channelResource
	slots chan struct{}

	mu     sync.Mutex
	closed bool

	acquireCount     atomic.Uint64
	acquireWaitCount atomic.Uint64
	acquireWaitNs    atomic.Uint64
	acquireErrors    atomic.Uint64
	createdConns     atomic.Uint64
	destroyedConns   atomic.Uint64
}

func (p *channelPool) Acquire(ctx context.Context) (Resource, error) {
	p.acquireCount.Add(1)

	select {
	case res, ok := <-p.idle:
		return p.acquired(res, ok)
	default:
	}

	if p.isClosed() {
		p.acquireErrors.Add(1)
		return nil, ErrPoolClosed
	}

	select {
	case p.slots <- struct{}{}:
		return p.create(ctx)
	default:
	}

	// every slot is taken: wait for a release or a destroy
	p.acquireWaitCount.Add(1)
	waitStart := time.Now()
	defer func() { p.acquireWaitNs.Add(uint64(time.Since(waitStart))) }()

	select {
	case res, ok := <-p.idle:
		return p.acquired(res, ok)
	case p.slots <- struct{}{}:
		return p.create(ctx)
	case <-ctx.Done():
		p.acquireErrors.Add(1)
		return nil, ctx.Err()
	}
}

func (p *channelPool) acquired(res *channelResource, ok bool) (Resource, error) {
	if !ok {
		p.acquireErrors.Add(1)
		return nil, ErrPoolClosed
	}
	return res, nil
}

// create runs with a slot already taken. The slot may have been freed by a
// Destroy after Close, so the pool is checked again.
func (p *channelPool) create(ctx context.Context) (Resource, error) {
	if p.isClosed() {
		<-p.slots
		p.acquireErrors.Add(1)
		return nil, ErrPoolClosed
	}

	conn, err := p.constructor(ctx)
	if err != nil {
		<-p.slots
		p.acquireErrors.Add(1)
		return nil, err
	}
	p.createdConns.Add(1)

	now := coarsetime.Now()
	return &channelResource{conn: conn, pool: p, created: now, lastUsed: now}, nil
}

func (p *channelPool) put(res *channelResource) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		select {
		case p.idle <- res:
			return
		default:
		}
	}
	p.destroyLocked(res)
}

func (p *channelPool) destroy(res *channelResource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroyLocked(res)
}

func (p *channelPool) destroyLocked(res *channelResource) {
	_ = res.conn.Close()
	<-p.slots
	p.destroyedConns.Add(1)
}

func (p *channelPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *channelPool) AcquireAllIdle() []Resource {
	var idle []Resource
	for {
		select {
		case res, ok := <-p.idle:
			if !ok {
				return idle
			}
			idle = append(idle, res)
		default:
			return idle
		}
	}
}

// Close destroys idle connections. Connections in use are destroyed when
// released.
func (p *channelPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.idle)
	p.mu.Unlock()

	for res := range p.idle {
		p.destroy(res)
	}
}

func (p *channelPool) Stats() PoolStats {
	total := int32(len(p.slots))
	idle := int32(len(p.idle))
	return PoolStats{
		AcquireCount:      p.acquireCount.Load(),
		AcquireWaitCount:  p.acquireWaitCount.Load(),
		CreatedConns:      p.createdConns.Load(),
		DestroyedConns:    p.destroyedConns.Load(),
		AcquireErrors:     p.acquireErrors.Load(),
		AcquireWaitTimeNs: p.acquireWaitNs.Load(),
		TotalConns:        total,
		IdleConns:         idle,
		ActiveConns:       total - idle,
	}
}
