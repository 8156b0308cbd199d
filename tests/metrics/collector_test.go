package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pior/setstream"
	"github.com/pior/setstream/tests/workload"
)

func TestBetween(t *testing.T) {
	start := time.Now()
	prev := Snapshot{
		Timestamp:     start,
		WorkloadStats: workload.WorkloadStats{TotalOps: 100, FailedOps: 10},
		ClientStats:   setstream.ClientStats{Requests: 200, Errors: 4},
	}
	next := Snapshot{
		Timestamp:     start.Add(2 * time.Second),
		WorkloadStats: workload.WorkloadStats{TotalOps: 300, FailedOps: 30},
		ClientStats:   setstream.ClientStats{Requests: 600, Errors: 10},
	}

	rate := Between(prev, next)
	assert.InDelta(t, 100.0, rate.OpsPerSec, 0.001)
	assert.InDelta(t, 0.1, rate.ErrorRate, 0.001)
	assert.InDelta(t, 200.0, rate.RequestsPerSec, 0.001)
	assert.InDelta(t, 3.0, rate.TransportErrorsPerSec, 0.001)
}

func TestBetween_NoElapsedTime(t *testing.T) {
	s := Snapshot{Timestamp: time.Now(), WorkloadStats: workload.WorkloadStats{TotalOps: 5}}
	assert.Equal(t, Rate{}, Between(s, s))
}

func TestCollector_RecordCircuitBreakerChange(t *testing.T) {
	c := NewCollector(nil, nil, time.Second)
	c.RecordCircuitBreakerChange("127.0.0.1:26381", "closed", "open")

	changes := c.GetCircuitChanges()
	if assert.Len(t, changes, 1) {
		assert.Equal(t, "open", changes[0].NewState)
	}
	assert.Empty(t, c.GetSnapshots())
}
