package workload

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/setstream"
)

// Workload is a pattern of set operations run by concurrent workers.
type Workload interface {
	Name() string
	Description() string

	// Execute runs one unit of work. Called concurrently by every worker.
	Execute(ctx context.Context, client *setstream.Client, workerID int) error
}

// Runner runs a workload with a fixed number of workers until its context
// is done.
type Runner struct {
	client      *setstream.Client
	workload    Workload
	concurrency int

	success atomic.Int64
	failed  atomic.Int64
	latency atomic.Int64 // total nanoseconds
}

func NewRunner(client *setstream.Client, workload Workload, concurrency int) *Runner {
	return &Runner{
		client:      client,
		workload:    workload,
		concurrency: concurrency,
	}
}

// Run blocks until ctx is done and every worker returned.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for id := range r.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				r.step(ctx, id)
			}
		}()
	}
	wg.Wait()
	return nil
}

func (r *Runner) step(ctx context.Context, workerID int) {
	start := time.Now()
	err := r.workload.Execute(ctx, r.client, workerID)
	if ctx.Err() != nil {
		// interrupted by shutdown
		return
	}

	r.latency.Add(int64(time.Since(start)))
	if err != nil {
		r.failed.Add(1)
	} else {
		r.success.Add(1)
	}
}

// WorkloadStats counts completed units of work.
type WorkloadStats struct {
	TotalOps   int64
	SuccessOps int64
	FailedOps  int64
	ErrorRate  float64
	AvgLatency time.Duration
}

func (r *Runner) Stats() WorkloadStats {
	s := WorkloadStats{
		SuccessOps: r.success.Load(),
		FailedOps:  r.failed.Load(),
	}
	s.TotalOps = s.SuccessOps + s.FailedOps
	if s.TotalOps > 0 {
		s.ErrorRate = float64(s.FailedOps) / float64(s.TotalOps)
		s.AvgLatency = time.Duration(r.latency.Load() / s.TotalOps)
	}
	return s
}

func (s WorkloadStats) String() string {
	return fmt.Sprintf("Total: %d, Success: %d, Failed: %d, Error Rate: %.2f%%, Avg latency: %s",
		s.TotalOps, s.SuccessOps, s.FailedOps, s.ErrorRate*100, s.AvgLatency.Round(time.Microsecond))
}

var registry = make(map[string]Workload)

// Register adds w to the registry under its name.
func Register(w Workload) {
	registry[w.Name()] = w
}

func Get(name string) (Workload, error) {
	w, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("workload not found: %s", name)
	}
	return w, nil
}

func All() map[string]Workload {
	return registry
}

// Names returns the registered workload names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func init() {
	Register(&MixedWorkload{})
	Register(&ReadHeavyWorkload{})
	Register(&BatchHeavyWorkload{})
}
