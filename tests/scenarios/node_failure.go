package scenarios

import (
	"context"
	"fmt"
	"time"

	toxiproxy "github.com/Shopify/toxiproxy/v2/client"
)

// SingleNodeFailureScenario simulates one node going down
type SingleNodeFailureScenario struct{}

func (s *SingleNodeFailureScenario) Name() string {
	return "single-node-failure"
}

func (s *SingleNodeFailureScenario) Description() string {
	return "Single node failure (1 of 3) for 15s - simulates partial availability"
}

func (s *SingleNodeFailureScenario) Run(ctx context.Context, proxies []*toxiproxy.Proxy) error {
	if len(proxies) < 3 {
		return fmt.Errorf("need at least 3 proxies, got %d", len(proxies))
	}

	if err := withDisabled(ctx, proxies[:1], 15*time.Second); err != nil {
		return err
	}

	fmt.Printf("[Scenario] Allowing 10s recovery time\n")
	return hold(ctx, 10*time.Second)
}

// MajorityNodeFailureScenario simulates majority of nodes failing
type MajorityNodeFailureScenario struct{}

func (s *MajorityNodeFailureScenario) Name() string {
	return "majority-node-failure"
}

func (s *MajorityNodeFailureScenario) Description() string {
	return "Majority node failure (2 of 3) for 10s"
}

func (s *MajorityNodeFailureScenario) Run(ctx context.Context, proxies []*toxiproxy.Proxy) error {
	if len(proxies) < 3 {
		return fmt.Errorf("need at least 3 proxies, got %d", len(proxies))
	}

	if err := withDisabled(ctx, proxies[:2], 10*time.Second); err != nil {
		return err
	}

	fmt.Printf("[Scenario] Allowing 15s recovery time\n")
	return hold(ctx, 15*time.Second)
}

// FlappingNodeScenario simulates a node going up and down repeatedly
type FlappingNodeScenario struct{}

func (s *FlappingNodeScenario) Name() string {
	return "flapping-node"
}

func (s *FlappingNodeScenario) Description() string {
	return "Node flapping (up/down every 10s) - simulates unstable node"
}

func (s *FlappingNodeScenario) Run(ctx context.Context, proxies []*toxiproxy.Proxy) error {
	if len(proxies) == 0 {
		return fmt.Errorf("no proxies available")
	}

	fmt.Printf("[Scenario] Node %s flapping (5 cycles of 10s down, 10s up)\n", proxies[0].Name)

	for range 5 {
		if err := withDisabled(ctx, proxies[:1], 10*time.Second); err != nil {
			return err
		}
		if err := hold(ctx, 10*time.Second); err != nil {
			return err
		}
	}

	fmt.Printf("[Scenario] Allowing 10s final recovery time\n")
	return hold(ctx, 10*time.Second)
}
