package scenarios

import (
	"context"
	"fmt"
	"time"

	toxiproxy "github.com/Shopify/toxiproxy/v2/client"
)

// LatencyScenario simulates slow network with high latency
type LatencyScenario struct{}

func (s *LatencyScenario) Name() string {
	return "latency"
}

func (s *LatencyScenario) Description() string {
	return "500ms latency (+/- 50ms jitter) on all nodes - simulates slow network"
}

func (s *LatencyScenario) Run(ctx context.Context, proxies []*toxiproxy.Proxy) error {
	fmt.Printf("[Scenario] Injecting 500ms latency with 50ms jitter on all nodes for 30s\n")

	err := withToxic(ctx, proxies, "high_latency", "latency", 1.0,
		toxiproxy.Attributes{"latency": 500, "jitter": 50}, 30*time.Second)
	if err != nil {
		return err
	}

	fmt.Printf("[Scenario] Allowing 5s recovery time\n")
	return hold(ctx, 5*time.Second)
}
