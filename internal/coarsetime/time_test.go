package coarsetime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNow(t *testing.T) {
	assert.WithinDuration(t, time.Now(), Now(), 2*tick)

	first := Now()
	assert.Eventually(t, func() bool {
		return Now().After(first)
	}, 10*tick, tick/5)
}

func TestSince(t *testing.T) {
	assert.InDelta(t, time.Minute, Since(time.Now().Add(-time.Minute)), float64(2*tick))
}

func BenchmarkTimeNow(b *testing.B) {
	var t time.Time

	b.Run("time", func(b *testing.B) {
		for b.Loop() {
			t = time.Now()
		}
	})

	b.Run("coarsetime", func(b *testing.B) {
		for b.Loop() {
			t = Now()
		}
	})

	_ = t
}
