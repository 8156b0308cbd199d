package setstream

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pior/setstream/resp"
)

var ErrClientClosed = errors.New("setstream: client closed")

var errCrossServer = errors.New("keys in request don't hash to the same server")

// crossServerReply answers a multi-key request whose keys live on different
// servers. It is never sent.
func crossServerReply() *resp.Reply {
	return resp.Error(resp.ErrKindCrossSlot, errCrossServer.Error())
}

// Client executes set commands against one or more RESP servers. Keys are
// spread across servers with ServerSelector; each server gets its own pool
// and optional circuit breaker.
//
// Every key of a multi-key command (SMOVE, SINTER, SUNIONSTORE...) must live
// on the same server, otherwise the command gets a CROSSSLOT error reply and
// is not sent. Hash tags ("{user1}:friends") colocate related keys.
//
// The scalar methods of Commands are available directly on the Client;
// Batch returns the streaming API.
type Client struct {
	*Commands

	servers      Servers
	selectServer ServerSelector
	config       Config
	logger       zerolog.Logger

	mu     sync.RWMutex
	pools  map[string]*ServerPool
	closed bool

	stopHealthCheck chan struct{}
	closeOnce       sync.Once

	stats *clientStatsCollector
}

var _ BatchExecutor = (*Client)(nil)

// NewClient creates a client for servers. Connections are opened lazily on
// first use of each server.
func NewClient(servers Servers, config Config) (*Client, error) {
	if len(servers.List()) == 0 {
		return nil, ErrNoServers
	}

	config = config.withDefaults()

	selectServer := config.SelectServer
	if selectServer == nil {
		selectServer = DefaultServerSelector
	}

	client := &Client{
		servers:         servers,
		selectServer:    selectServer,
		config:          config,
		logger:          config.logger(),
		pools:           make(map[string]*ServerPool),
		stopHealthCheck: make(chan struct{}),
		stats:           newClientStatsCollector(),
	}

	client.Commands = NewCommands(NewBatchCommands(client, BatchOptions{
		Concurrency: config.BatchConcurrency,
		Pipeline:    config.BatchPipeline,
		Logger:      config.Logger,
	}))

	if config.HealthCheckInterval > 0 {
		go client.healthCheckLoop()
	}

	return client, nil
}

// Execute sends req to the server owning its keys.
func (c *Client) Execute(ctx context.Context, req *resp.Request) (*resp.Reply, error) {
	addr, err := c.serverFor(req)
	if errors.Is(err, errCrossServer) {
		c.stats.recordReply(true)
		return crossServerReply(), nil
	}
	if err != nil {
		c.stats.recordError()
		return nil, err
	}

	sp, err := c.getOrCreatePool(addr)
	if err != nil {
		c.stats.recordError()
		return nil, err
	}

	reply, err := sp.Execute(ctx, req)
	if err != nil {
		c.stats.recordError()
		return nil, err
	}

	c.stats.recordReply(reply.HasError())
	return reply, nil
}

// ExecuteBatch groups reqs by server and pipelines each group on one
// connection, servers in parallel. Replies are in request order. A transport
// failure on any server fails the whole call.
func (c *Client) ExecuteBatch(ctx context.Context, reqs []*resp.Request) ([]*resp.Reply, error) {
	replies := make([]*resp.Reply, len(reqs))
	groups := make(map[string][]int)

	for i, req := range reqs {
		addr, err := c.serverFor(req)
		if errors.Is(err, errCrossServer) {
			replies[i] = crossServerReply()
			continue
		}
		if err != nil {
			c.stats.recordErrors(len(reqs))
			return nil, err
		}
		groups[addr] = append(groups[addr], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	for addr, indexes := range groups {
		g.Go(func() error {
			sp, err := c.getOrCreatePool(addr)
			if err != nil {
				return err
			}

			group := make([]*resp.Request, len(indexes))
			for j, i := range indexes {
				group[j] = reqs[i]
			}
			got, err := sp.ExecuteBatch(gctx, group)
			if err != nil {
				return err
			}
			for j, i := range indexes {
				replies[i] = got[j]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.stats.recordErrors(len(reqs))
		return nil, err
	}

	for _, reply := range replies {
		c.stats.recordReply(reply.HasError())
	}
	return replies, nil
}

// Close stops health checks and closes every pool. It is safe to call more
// than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.stopHealthCheck)

		c.mu.Lock()
		defer c.mu.Unlock()

		c.closed = true
		for _, sp := range c.pools {
			sp.Close()
		}
	})
}

// serverFor returns the address of the server owning every key of req.
func (c *Client) serverFor(req *resp.Request) (string, error) {
	servers := c.servers.List()
	if len(servers) == 0 {
		return "", ErrNoServers
	}

	keys := req.Keys()
	if len(keys) == 0 {
		return servers[c.selectServer(nil, len(servers))], nil
	}

	index := c.selectServer(keys[0], len(servers))
	for _, key := range keys[1:] {
		if c.selectServer(key, len(servers)) != index {
			return "", errCrossServer
		}
	}
	return servers[index], nil
}

func (c *Client) getOrCreatePool(addr string) (*ServerPool, error) {
	c.mu.RLock()
	sp, exists := c.pools[addr]
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClientClosed
	}
	if exists {
		return sp, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if sp, exists := c.pools[addr]; exists {
		return sp, nil
	}

	sp, err := NewServerPool(addr, c.config)
	if err != nil {
		return nil, err
	}
	c.pools[addr] = sp
	c.logger.Debug().Str("server", addr).Msg("server pool created")
	return sp, nil
}

func (c *Client) healthCheckLoop() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealthCheck:
			return
		case <-ticker.C:
			c.checkAllPools()
		}
	}
}

func (c *Client) checkAllPools() {
	c.mu.RLock()
	pools := make([]*ServerPool, 0, len(c.pools))
	for _, sp := range c.pools {
		pools = append(pools, sp)
	}
	c.mu.RUnlock()

	for _, sp := range pools {
		c.checkPoolConnections(sp)
	}
}

// checkPoolConnections destroys idle connections that are too old, idle for
// too long or fail a PING.
func (c *Client) checkPoolConnections(sp *ServerPool) {
	now := time.Now()

	for _, res := range sp.pool.AcquireAllIdle() {
		if c.config.MaxConnLifetime > 0 && now.Sub(res.CreationTime()) > c.config.MaxConnLifetime {
			c.evict(sp, res, "max lifetime reached", nil)
			continue
		}

		if c.config.MaxConnIdleTime > 0 && res.IdleDuration() > c.config.MaxConnIdleTime {
			c.evict(sp, res, "max idle time reached", nil)
			continue
		}

		if err := c.healthCheck(res.Value()); err != nil {
			c.evict(sp, res, "health check failed", err)
			continue
		}

		res.ReleaseUnused()
	}
}

func (c *Client) evict(sp *ServerPool, res Resource, reason string, err error) {
	c.logger.Debug().Err(err).Str("server", sp.Address()).Str("reason", reason).Msg("evicting connection")
	res.Destroy()
}

func (c *Client) healthCheck(conn *Connection) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.DialTimeout)
	defer cancel()
	return conn.Ping(ctx)
}

// Stats returns a snapshot of client statistics.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// AllPoolStats returns stats for every server pool, sorted by address.
func (c *Client) AllPoolStats() []ServerPoolStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make([]ServerPoolStats, 0, len(c.pools))
	for _, sp := range c.pools {
		stats = append(stats, sp.Stats())
	}
	slices.SortFunc(stats, func(a, b ServerPoolStats) int {
		return strings.Compare(a.Addr, b.Addr)
	})
	return stats
}
