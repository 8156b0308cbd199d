package scenarios

import (
	"context"
	"fmt"
	"slices"
	"time"

	toxiproxy "github.com/Shopify/toxiproxy/v2/client"
)

// Scenario is a failure injected through toxiproxy while a workload runs.
type Scenario interface {
	Name() string
	Description() string

	// Run applies the failure, holds it, reverts it and waits for recovery.
	// It blocks for the whole scenario.
	Run(ctx context.Context, proxies []*toxiproxy.Proxy) error
}

var registry = make(map[string]Scenario)

// Register adds a scenario to the registry
func Register(s Scenario) {
	registry[s.Name()] = s
}

// Get retrieves a scenario by name
func Get(name string) (Scenario, error) {
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("scenario not found: %s", name)
	}
	return s, nil
}

// All returns all registered scenarios
func All() map[string]Scenario {
	return registry
}

// Names returns the registered scenario names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func init() {
	Register(&LatencyScenario{})
	Register(&PacketLossScenario{})
	Register(&TotalPacketDropScenario{})
	Register(&SingleNodeFailureScenario{})
	Register(&MajorityNodeFailureScenario{})
	Register(&FlappingNodeScenario{})
}

// hold blocks for d or until ctx is done.
func hold(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// withToxic adds the same toxic to every proxy, holds it for d and removes it.
func withToxic(ctx context.Context, proxies []*toxiproxy.Proxy, name, typeName string, toxicity float32, attrs toxiproxy.Attributes, d time.Duration) error {
	added := make([]*toxiproxy.Proxy, 0, len(proxies))
	defer func() {
		for _, proxy := range added {
			_ = proxy.RemoveToxic(name)
		}
	}()

	for _, proxy := range proxies {
		if _, err := proxy.AddToxic(name, typeName, "downstream", toxicity, attrs); err != nil {
			return fmt.Errorf("failed to add toxic to %s: %w", proxy.Name, err)
		}
		added = append(added, proxy)
	}

	return hold(ctx, d)
}

// withDisabled disables proxies, holds for d and enables them again.
func withDisabled(ctx context.Context, proxies []*toxiproxy.Proxy, d time.Duration) error {
	for _, proxy := range proxies {
		fmt.Printf("[Scenario] Disabling %s\n", proxy.Name)
		if err := proxy.Disable(); err != nil {
			return fmt.Errorf("failed to disable %s: %w", proxy.Name, err)
		}
	}

	err := hold(ctx, d)

	for _, proxy := range proxies {
		fmt.Printf("[Scenario] Enabling %s\n", proxy.Name)
		if enableErr := proxy.Enable(); enableErr != nil && err == nil {
			err = fmt.Errorf("failed to enable %s: %w", proxy.Name, enableErr)
		}
	}
	return err
}
