package setstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

const metricsNamespace = "setstream"

// statsSource is what the collector reads; *Client implements it.
type statsSource interface {
	Stats() ClientStats
	AllPoolStats() []ServerPoolStats
}

// Collector exports client and pool statistics to Prometheus. Values are read
// from the client on every scrape.
type Collector struct {
	source statsSource

	requests       *prometheus.Desc
	replyErrors    *prometheus.Desc
	errors         *prometheus.Desc
	poolConns      *prometheus.Desc
	poolCreated    *prometheus.Desc
	poolDestroyed  *prometheus.Desc
	poolAcquires   *prometheus.Desc
	poolAcqErrors  *prometheus.Desc
	poolWaitTime   *prometheus.Desc
	circuitState   *prometheus.Desc
	circuitFailure *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for client. Register it with
// prometheus.MustRegister or a custom registry.
func NewCollector(client *Client) *Collector {
	return newCollector(client)
}

func newCollector(source statsSource) *Collector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, subsystem, name), help, labels, nil)
	}
	return &Collector{
		source:         source,
		requests:       desc("client", "requests_total", "Requests sent to a server"),
		replyErrors:    desc("client", "reply_errors_total", "Requests answered with an error reply"),
		errors:         desc("client", "errors_total", "Requests that failed without a reply"),
		poolConns:      desc("pool", "connections", "Connections in the pool", "server", "state"),
		poolCreated:    desc("pool", "connections_created_total", "Connections created", "server"),
		poolDestroyed:  desc("pool", "connections_destroyed_total", "Connections destroyed", "server"),
		poolAcquires:   desc("pool", "acquires_total", "Connection acquire attempts", "server"),
		poolAcqErrors:  desc("pool", "acquire_errors_total", "Cancelled connection acquires", "server"),
		poolWaitTime:   desc("pool", "acquire_wait_seconds_total", "Time spent waiting for a connection", "server"),
		circuitState:   desc("circuit_breaker", "state", "Circuit breaker state (0=closed, 1=half-open, 2=open)", "server"),
		circuitFailure: desc("circuit_breaker", "failures", "Circuit breaker failure counts in the current interval", "server", "type"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.requests, c.replyErrors, c.errors,
		c.poolConns, c.poolCreated, c.poolDestroyed, c.poolAcquires, c.poolAcqErrors, c.poolWaitTime,
		c.circuitState, c.circuitFailure,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(stats.Requests))
	ch <- prometheus.MustNewConstMetric(c.replyErrors, prometheus.CounterValue, float64(stats.ReplyErrors))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(stats.Errors))

	for _, sp := range c.source.AllPoolStats() {
		p := sp.PoolStats
		ch <- prometheus.MustNewConstMetric(c.poolConns, prometheus.GaugeValue, float64(p.TotalConns), sp.Addr, "total")
		ch <- prometheus.MustNewConstMetric(c.poolConns, prometheus.GaugeValue, float64(p.ActiveConns), sp.Addr, "active")
		ch <- prometheus.MustNewConstMetric(c.poolConns, prometheus.GaugeValue, float64(p.IdleConns), sp.Addr, "idle")
		ch <- prometheus.MustNewConstMetric(c.poolCreated, prometheus.CounterValue, float64(p.CreatedConns), sp.Addr)
		ch <- prometheus.MustNewConstMetric(c.poolDestroyed, prometheus.CounterValue, float64(p.DestroyedConns), sp.Addr)
		ch <- prometheus.MustNewConstMetric(c.poolAcquires, prometheus.CounterValue, float64(p.AcquireCount), sp.Addr)
		ch <- prometheus.MustNewConstMetric(c.poolAcqErrors, prometheus.CounterValue, float64(p.AcquireErrors), sp.Addr)
		ch <- prometheus.MustNewConstMetric(c.poolWaitTime, prometheus.CounterValue, float64(p.AcquireWaitTimeNs)/1e9, sp.Addr)

		ch <- prometheus.MustNewConstMetric(c.circuitState, prometheus.GaugeValue, circuitStateValue(sp.CircuitBreakerState), sp.Addr)
		ch <- prometheus.MustNewConstMetric(c.circuitFailure, prometheus.GaugeValue, float64(sp.CircuitBreakerCounts.TotalFailures), sp.Addr, "total")
		ch <- prometheus.MustNewConstMetric(c.circuitFailure, prometheus.GaugeValue, float64(sp.CircuitBreakerCounts.ConsecutiveFailures), sp.Addr, "consecutive")
	}
}

func circuitStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
