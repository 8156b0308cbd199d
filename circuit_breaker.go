package setstream

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/setstream/resp"
)

// CircuitBreaker guards one server. Error replies count as successes: only
// transport failures trip the breaker.
type CircuitBreaker = gobreaker.CircuitBreaker[*resp.Reply]

// NewCircuitBreakerConfig returns a factory creating one breaker per server
// address. The breaker opens once at least 3 requests were seen in the
// interval and 60% of them failed. State changes are logged at warn level.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration, logger zerolog.Logger) func(addr string) *CircuitBreaker {
	return func(addr string) *CircuitBreaker {
		settings := gobreaker.Settings{
			Name:        addr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				// the caller gave up, the server did not fail
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().
					Str("server", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state changed")
			},
		}
		return gobreaker.NewCircuitBreaker[*resp.Reply](settings)
	}
}
