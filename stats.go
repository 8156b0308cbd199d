package setstream

import "sync/atomic"

// PoolStats is a snapshot of a connection pool.
//
// For Prometheus, TotalConns, IdleConns and ActiveConns are gauges; the
// uint64 fields are counters.
type PoolStats struct {
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait
	CreatedConns      uint64 // Total connections created
	DestroyedConns    uint64 // Total connections destroyed
	AcquireErrors     uint64 // Cancelled acquire attempts
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting

	TotalConns  int32 // Total connections in pool (active + idle)
	IdleConns   int32 // Idle connections available
	ActiveConns int32 // Connections currently in use
}

// ClientStats counts requests executed by a Client.
type ClientStats struct {
	Requests    uint64 // Requests sent to a server
	ReplyErrors uint64 // Requests answered with an error reply
	Errors      uint64 // Requests that failed without a reply
}

type clientStatsCollector struct {
	requests    atomic.Uint64
	replyErrors atomic.Uint64
	errors      atomic.Uint64
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{}
}

func (c *clientStatsCollector) recordReply(isError bool) {
	c.requests.Add(1)
	if isError {
		c.replyErrors.Add(1)
	}
}

func (c *clientStatsCollector) recordError() {
	c.requests.Add(1)
	c.errors.Add(1)
}

func (c *clientStatsCollector) recordErrors(n int) {
	c.requests.Add(uint64(n))
	c.errors.Add(uint64(n))
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Requests:    c.requests.Load(),
		ReplyErrors: c.replyErrors.Load(),
		Errors:      c.errors.Load(),
	}
}
