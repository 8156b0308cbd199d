package scenarios

import (
	"context"
	"fmt"
	"time"

	toxiproxy "github.com/Shopify/toxiproxy/v2/client"
)

// PacketLossScenario simulates degraded network with packet loss
type PacketLossScenario struct{}

func (s *PacketLossScenario) Name() string {
	return "packet-loss"
}

func (s *PacketLossScenario) Description() string {
	return "5% packet loss on all nodes - simulates degraded network quality"
}

func (s *PacketLossScenario) Run(ctx context.Context, proxies []*toxiproxy.Proxy) error {
	fmt.Printf("[Scenario] Injecting 5%% packet loss on all nodes for 20s\n")

	// a zero-rate bandwidth toxic on 5% of connections stalls them
	err := withToxic(ctx, proxies, "packet_loss", "bandwidth", 0.05,
		toxiproxy.Attributes{"rate": 0}, 20*time.Second)
	if err != nil {
		return err
	}

	fmt.Printf("[Scenario] Allowing 5s recovery time\n")
	return hold(ctx, 5*time.Second)
}

// TotalPacketDropScenario blackholes every node for a few seconds.
type TotalPacketDropScenario struct{}

func (s *TotalPacketDropScenario) Name() string {
	return "total-packet-drop"
}

func (s *TotalPacketDropScenario) Description() string {
	return "All traffic dropped on all nodes for 5s - simulates a network partition"
}

func (s *TotalPacketDropScenario) Run(ctx context.Context, proxies []*toxiproxy.Proxy) error {
	fmt.Printf("[Scenario] Dropping all traffic for 5s\n")

	err := withToxic(ctx, proxies, "blackhole", "timeout", 1.0,
		toxiproxy.Attributes{"timeout": 0}, 5*time.Second)
	if err != nil {
		return err
	}

	fmt.Printf("[Scenario] Allowing 10s recovery time\n")
	return hold(ctx, 10*time.Second)
}
