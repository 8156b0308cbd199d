package metrics

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pior/setstream"
	"github.com/pior/setstream/tests/workload"
)

// Snapshot is the state of the workload and the client at one instant.
type Snapshot struct {
	Timestamp     time.Time
	WorkloadStats workload.WorkloadStats
	ClientStats   setstream.ClientStats
	PoolStats     []PoolSnapshot
}

// PoolSnapshot is the state of one server pool and its circuit breaker.
type PoolSnapshot struct {
	ServerAddr          string
	TotalConns          int32
	IdleConns           int32
	ActiveConns         int32
	CreatedConns        uint64
	DestroyedConns      uint64
	AcquireErrors       uint64
	CircuitBreakerState string
	Requests            uint32
	TotalFailures       uint32
	ConsecutiveFailures uint32
}

// CircuitBreakerChange records one breaker transition.
type CircuitBreakerChange struct {
	Timestamp  time.Time
	ServerAddr string
	OldState   string
	NewState   string
}

// Rate is the activity between two snapshots.
type Rate struct {
	OpsPerSec             float64
	ErrorRate             float64 // failed / total operations in the interval
	RequestsPerSec        float64
	TransportErrorsPerSec float64
}

// Between computes the rates from prev to next. Zero when no time elapsed.
func Between(prev, next Snapshot) Rate {
	elapsed := next.Timestamp.Sub(prev.Timestamp).Seconds()
	if elapsed <= 0 {
		return Rate{}
	}

	ops := next.WorkloadStats.TotalOps - prev.WorkloadStats.TotalOps
	failed := next.WorkloadStats.FailedOps - prev.WorkloadStats.FailedOps

	r := Rate{
		OpsPerSec:             float64(ops) / elapsed,
		RequestsPerSec:        float64(next.ClientStats.Requests-prev.ClientStats.Requests) / elapsed,
		TransportErrorsPerSec: float64(next.ClientStats.Errors-prev.ClientStats.Errors) / elapsed,
	}
	if ops > 0 {
		r.ErrorRate = float64(failed) / float64(ops)
	}
	return r
}

// Collector samples a client and a workload runner at a fixed interval.
type Collector struct {
	client   *setstream.Client
	runner   *workload.Runner
	interval time.Duration

	mu             sync.Mutex
	snapshots      []Snapshot
	circuitChanges []CircuitBreakerChange
}

// NewCollector creates a collector. Nothing is sampled before Start.
func NewCollector(client *setstream.Client, runner *workload.Runner, interval time.Duration) *Collector {
	return &Collector{
		client:   client,
		runner:   runner,
		interval: interval,
	}
}

// Start samples until ctx is done.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.record(c.sample())
		}
	}
}

func (c *Collector) sample() Snapshot {
	snapshot := Snapshot{
		Timestamp:     time.Now(),
		WorkloadStats: c.runner.Stats(),
		ClientStats:   c.client.Stats(),
	}

	for _, server := range c.client.AllPoolStats() {
		snapshot.PoolStats = append(snapshot.PoolStats, PoolSnapshot{
			ServerAddr:          server.Addr,
			TotalConns:          server.PoolStats.TotalConns,
			IdleConns:           server.PoolStats.IdleConns,
			ActiveConns:         server.PoolStats.ActiveConns,
			CreatedConns:        server.PoolStats.CreatedConns,
			DestroyedConns:      server.PoolStats.DestroyedConns,
			AcquireErrors:       server.PoolStats.AcquireErrors,
			CircuitBreakerState: server.CircuitBreakerState.String(),
			Requests:            server.CircuitBreakerCounts.Requests,
			TotalFailures:       server.CircuitBreakerCounts.TotalFailures,
			ConsecutiveFailures: server.CircuitBreakerCounts.ConsecutiveFailures,
		})
	}
	return snapshot
}

func (c *Collector) record(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, s)
}

// GetSnapshots returns a copy of every snapshot taken so far.
func (c *Collector) GetSnapshots() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.snapshots)
}

// GetCircuitChanges returns a copy of the recorded breaker transitions.
func (c *Collector) GetCircuitChanges() []CircuitBreakerChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.circuitChanges)
}

// RecordCircuitBreakerChange is meant for gobreaker's OnStateChange.
func (c *Collector) RecordCircuitBreakerChange(serverAddr, oldState, newState string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.circuitChanges = append(c.circuitChanges, CircuitBreakerChange{
		Timestamp:  time.Now(),
		ServerAddr: serverAddr,
		OldState:   oldState,
		NewState:   newState,
	})
}

func (c *Collector) latest() (prev, last Snapshot, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n = len(c.snapshots)
	switch n {
	case 0:
	case 1:
		last = c.snapshots[0]
		prev = last
	default:
		prev, last = c.snapshots[n-2], c.snapshots[n-1]
	}
	return prev, last, n
}

// PrintLatest prints the most recent snapshot.
func (c *Collector) PrintLatest() {
	prev, last, n := c.latest()
	if n == 0 {
		fmt.Println("[Metrics] No data collected yet")
		return
	}
	rate := Between(prev, last)

	fmt.Printf("\n[Metrics] %s\n", last.Timestamp.Format("15:04:05"))
	fmt.Printf("  Workload: %s\n", last.WorkloadStats)
	fmt.Printf("  Interval: %.0f ops/sec, %.2f%% errors, %.1f transport errors/sec\n",
		rate.OpsPerSec, rate.ErrorRate*100, rate.TransportErrorsPerSec)

	for _, pool := range last.PoolStats {
		fmt.Printf("  Server %s:\n", pool.ServerAddr)
		fmt.Printf("    Connections: %d total, %d active, %d idle\n",
			pool.TotalConns, pool.ActiveConns, pool.IdleConns)
		fmt.Printf("    Circuit: %s (requests: %d, failures: %d, consecutive: %d)\n",
			pool.CircuitBreakerState, pool.Requests, pool.TotalFailures, pool.ConsecutiveFailures)
	}
}

// PrintSummary prints totals over the whole run.
func (c *Collector) PrintSummary() {
	snapshots := c.GetSnapshots()
	changes := c.GetCircuitChanges()

	if len(snapshots) == 0 {
		fmt.Println("[Summary] No data collected")
		return
	}

	first, last := snapshots[0], snapshots[len(snapshots)-1]
	duration := last.Timestamp.Sub(first.Timestamp)
	work := last.WorkloadStats

	fmt.Println("\n========================================")
	fmt.Println("          TEST SUMMARY")
	fmt.Println("========================================")
	fmt.Printf("Duration: %s\n", duration.Round(time.Second))
	fmt.Printf("Snapshots: %d\n", len(snapshots))

	fmt.Println("\nWorkload:")
	fmt.Printf("  Operations: %d (%d ok, %d failed)\n", work.TotalOps, work.SuccessOps, work.FailedOps)
	fmt.Printf("  Error rate: %.2f%%\n", work.ErrorRate*100)
	fmt.Printf("  Avg latency: %s\n", work.AvgLatency.Round(time.Microsecond))
	if duration > 0 {
		fmt.Printf("  Throughput: %.0f ops/sec\n", float64(work.TotalOps)/duration.Seconds())
	}

	fmt.Println("\nClient:")
	fmt.Printf("  Requests: %d\n", last.ClientStats.Requests)
	fmt.Printf("  Reply errors: %d\n", last.ClientStats.ReplyErrors)
	fmt.Printf("  Transport errors: %d\n", last.ClientStats.Errors)

	if len(changes) == 0 {
		fmt.Println("\nCircuit Breaker: No state changes")
	} else {
		fmt.Println("\nCircuit Breaker State Changes:")
		for _, change := range changes {
			fmt.Printf("  [%s] %s: %s -> %s\n",
				change.Timestamp.Format("15:04:05"), change.ServerAddr, change.OldState, change.NewState)
		}
	}

	fmt.Println("\nFinal Pool States:")
	for _, pool := range last.PoolStats {
		fmt.Printf("  %s: %d conns (%d active, %d idle), created %d, destroyed %d, acquire errors %d, circuit %s\n",
			pool.ServerAddr, pool.TotalConns, pool.ActiveConns, pool.IdleConns,
			pool.CreatedConns, pool.DestroyedConns, pool.AcquireErrors, pool.CircuitBreakerState)
	}

	fmt.Println("========================================")
}
