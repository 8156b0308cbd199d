package main

import (
	"context"
	"flag"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/setstream"
	"github.com/pior/setstream/internal/logger"
)

type OperationType string

const (
	Add       OperationType = "sadd"
	IsMember  OperationType = "sismember"
	BatchCard OperationType = "batch-scard"
	Intersect OperationType = "sinter"
	All       OperationType = "all"
)

const membersSize = 100

// the hash tag keeps both seeded sets on one server for SINTER
var (
	benchSet  = []byte("{bench}:set")
	benchCopy = []byte("{bench}:copy")
)

type BenchmarkResult struct {
	Operation    OperationType
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	Correctness  bool
	ErrorMessage string
}

// counters are shared by the workers of one run.
type counters struct {
	ops, successes, failures, latency atomic.Int64
	mu                                sync.Mutex
	mismatch                          string
}

func (c *counters) record(latency time.Duration, ok bool) {
	c.ops.Add(1)
	c.latency.Add(int64(latency))
	if ok {
		c.successes.Add(1)
	} else {
		c.failures.Add(1)
	}
}

func (c *counters) fail(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mismatch = msg
}

func main() {
	var (
		operation   = flag.String("operation", "all", "Operation type: sadd, sismember, batch-scard, sinter, or all")
		duration    = flag.Duration("duration", 5*time.Second, "Duration to run benchmarks")
		concurrency = flag.Int("concurrency", 1, "Number of concurrent workers")
		servers     = flag.String("servers", "127.0.0.1:6379", "Comma-separated list of servers")
		batchSize   = flag.Int("batch-size", 50, "Commands per batch for batch-scard")
	)
	flag.Parse()

	fmt.Printf("Setstream Benchmark Tool\n")
	fmt.Printf("========================\n")
	fmt.Printf("Operation: %s\n", *operation)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Servers: %s\n", *servers)
	fmt.Println()

	log := logger.NewLogger()

	client, err := setstream.NewClient(setstream.NewStaticServers(strings.Split(*servers, ",")...), setstream.Config{
		MaxSize:          int32(*concurrency) + 2,
		BatchConcurrency: *batchSize,
		Logger:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create client")
	}
	defer client.Close()

	fmt.Print("Testing connection...")
	seed := make([][]byte, membersSize)
	for i := range seed {
		seed[i] = fmt.Appendf(nil, "member-%d", i)
	}
	_, err = client.SAdd(context.Background(), benchSet, seed...)
	if err == nil {
		_, err = client.SAdd(context.Background(), benchCopy, seed...)
	}
	if err != nil {
		fmt.Printf(" failed: %v\n", err)
		fmt.Printf("Make sure setstream-server is running on %s\n", *servers)
		return
	}
	fmt.Println(" success!")
	fmt.Println()

	ops := []OperationType{OperationType(*operation)}
	if ops[0] == All {
		ops = []OperationType{Add, IsMember, BatchCard, Intersect}
	}
	for _, op := range ops {
		fmt.Printf("\n--- Running %s benchmark ---\n", op)
		printResult(runOperation(client, op, *duration, *concurrency, *batchSize))
	}
}

func runOperation(client *setstream.Client, op OperationType, duration time.Duration, concurrency, batchSize int) *BenchmarkResult {
	var step func(ctx context.Context, c *counters, worker, n int)

	switch op {
	case Add:
		step = func(ctx context.Context, c *counters, worker, n int) {
			start := time.Now()
			added, err := client.SAdd(ctx, fmt.Appendf(nil, "bench-add-%d", worker), fmt.Appendf(nil, "%d", n))
			c.record(time.Since(start), err == nil)
			if err == nil && added != 1 {
				c.fail(fmt.Sprintf("expected 1 member added, got %d", added))
			}
		}
	case IsMember:
		step = func(ctx context.Context, c *counters, worker, n int) {
			start := time.Now()
			ok, err := client.SIsMember(ctx, benchSet, fmt.Appendf(nil, "member-%d", n%membersSize))
			c.record(time.Since(start), err == nil)
			if err == nil && !ok {
				c.fail("member not found")
			}
		}
	case BatchCard:
		step = func(ctx context.Context, c *counters, worker, n int) {
			start := time.Now()
			for r, err := range client.Batch().SCard(ctx, repeat(setstream.NewKeyCommand(benchSet), batchSize)) {
				if err != nil {
					c.record(time.Since(start), false)
					return
				}
				c.record(time.Since(start), r.Err == nil)
				if r.Err == nil && r.Output != membersSize {
					c.fail(fmt.Sprintf("expected %d members, got %d", membersSize, r.Output))
				}
			}
		}
	case Intersect:
		step = func(ctx context.Context, c *counters, worker, n int) {
			start := time.Now()
			members, err := client.SInter(ctx, benchSet, benchCopy)
			c.record(time.Since(start), err == nil)
			if err == nil && len(members) != membersSize {
				c.fail(fmt.Sprintf("expected %d members, got %d", membersSize, len(members)))
			}
		}
	default:
		return &BenchmarkResult{
			Operation:    op,
			ErrorMessage: fmt.Sprintf("Unknown operation: %s", op),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var c counters
	startTime := time.Now()
	var wg sync.WaitGroup
	for worker := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; ctx.Err() == nil; n++ {
				step(ctx, &c, worker, n)
			}
		}()
	}
	wg.Wait()

	result := &BenchmarkResult{
		Operation:    op,
		Duration:     time.Since(startTime),
		TotalOps:     c.ops.Load(),
		Successes:    c.successes.Load(),
		Failures:     c.failures.Load(),
		Correctness:  c.mismatch == "",
		ErrorMessage: c.mismatch,
	}
	if result.TotalOps > 0 {
		result.AvgLatency = time.Duration(c.latency.Load() / result.TotalOps)
		result.OpsPerSecond = float64(result.TotalOps) / result.Duration.Seconds()
	}
	return result
}

func repeat[T any](v T, n int) iter.Seq[T] {
	return func(yield func(T) bool) {
		for range n {
			if !yield(v) {
				return
			}
		}
	}
}

func printResult(result *BenchmarkResult) {
	fmt.Printf("Operation: %s\n", result.Operation)
	if result.ErrorMessage != "" && result.TotalOps == 0 {
		fmt.Printf("  Error: %s\n", result.ErrorMessage)
		return
	}
	fmt.Printf("  Duration: %v\n", result.Duration)
	fmt.Printf("  Total operations: %d\n", result.TotalOps)
	fmt.Printf("  Successes: %d\n", result.Successes)
	fmt.Printf("  Failures: %d\n", result.Failures)
	fmt.Printf("  Average latency: %v\n", result.AvgLatency)
	fmt.Printf("  Ops/sec: %.2f\n", result.OpsPerSecond)
	if result.Correctness {
		fmt.Printf("  Correctness: ok\n")
	} else {
		fmt.Printf("  Correctness: FAILED (%s)\n", result.ErrorMessage)
	}
}
