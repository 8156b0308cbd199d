package testutils

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	toxiproxy "github.com/Shopify/toxiproxy/v2/client"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/setstream"
	"github.com/pior/setstream/resp"
)

// ToxiproxyConfig holds toxiproxy setup configuration
type ToxiproxyConfig struct {
	APIAddr string
	Proxies []ProxyConfig
}

// ProxyConfig defines a single proxy
type ProxyConfig struct {
	Name     string
	Listen   string
	Upstream string
}

// DefaultToxiproxyConfig returns the standard 3-node setup: three
// setstream-server instances on ports 6381-6383 proxied on 26381-26383.
//
// SETSTREAM_HOST points the upstreams at a remote host (default: the docker
// network names).
func DefaultToxiproxyConfig(logger zerolog.Logger) ToxiproxyConfig {
	host := ""
	if h := os.Getenv("SETSTREAM_HOST"); h != "" {
		// docker containers cannot resolve mDNS names
		if ip := resolveHostToIP(h); ip != "" {
			logger.Info().Str("host", h).Str("ip", ip).Msg("resolved toxiproxy upstream host")
			host = ip
		} else {
			host = h
		}
	}

	proxies := make([]ProxyConfig, 3)
	for i := range proxies {
		name := fmt.Sprintf("setstream%d", i+1)
		upstream := fmt.Sprintf("%s:6379", name)
		if host != "" {
			upstream = fmt.Sprintf("%s:%d", host, 6381+i)
		}
		proxies[i] = ProxyConfig{
			Name:     name,
			Listen:   fmt.Sprintf("0.0.0.0:%d", 26381+i),
			Upstream: upstream,
		}
	}

	return ToxiproxyConfig{APIAddr: "http://localhost:8474", Proxies: proxies}
}

// ClientAddrs returns the proxied addresses the client should dial.
func (c ToxiproxyConfig) ClientAddrs() []string {
	addrs := make([]string, len(c.Proxies))
	for i, p := range c.Proxies {
		_, port, _ := net.SplitHostPort(p.Listen)
		addrs[i] = net.JoinHostPort("127.0.0.1", port)
	}
	return addrs
}

func resolveHostToIP(hostname string) string {
	if net.ParseIP(hostname) != nil {
		return hostname
	}

	addrs, err := net.LookupHost(hostname)
	if err != nil || len(addrs) == 0 {
		return ""
	}
	for _, addr := range addrs {
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			return ip.String()
		}
	}
	return addrs[0]
}

// SetupToxiproxy waits for the toxiproxy API, removes stale proxies and
// creates the configured ones.
func SetupToxiproxy(config ToxiproxyConfig) (*toxiproxy.Client, []*toxiproxy.Proxy, error) {
	client := toxiproxy.NewClient(config.APIAddr)

	if err := waitFor(30*time.Second, func() error {
		existing, err := client.Proxies()
		if err != nil {
			return err
		}
		for _, proxy := range existing {
			_ = proxy.Delete()
		}
		return nil
	}); err != nil {
		return nil, nil, fmt.Errorf("toxiproxy not ready: %w", err)
	}

	proxies := make([]*toxiproxy.Proxy, 0, len(config.Proxies))
	for _, pc := range config.Proxies {
		proxy, err := client.CreateProxy(pc.Name, pc.Listen, pc.Upstream)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create proxy %s: %w", pc.Name, err)
		}
		if err := proxy.Enable(); err != nil {
			return nil, nil, fmt.Errorf("failed to enable proxy %s: %w", pc.Name, err)
		}
		proxies = append(proxies, proxy)
		fmt.Printf("[Setup] Created proxy: %s (%s -> %s)\n", pc.Name, pc.Listen, pc.Upstream)
	}

	return client, proxies, nil
}

// CleanupToxiproxy removes all toxics and re-enables every proxy.
func CleanupToxiproxy(proxies []*toxiproxy.Proxy) error {
	for _, proxy := range proxies {
		toxics, err := proxy.Toxics()
		if err != nil {
			continue
		}
		for _, toxic := range toxics {
			_ = proxy.RemoveToxic(toxic.Name)
		}
		_ = proxy.Enable()
	}
	return nil
}

// DefaultClientConfig returns the client configuration used under fault
// injection. onStateChange receives every circuit breaker transition.
func DefaultClientConfig(logger zerolog.Logger, onStateChange func(name string, from, to gobreaker.State)) setstream.Config {
	return setstream.Config{
		MaxSize:             20,
		DialTimeout:         time.Second,
		HealthCheckInterval: 5 * time.Second,
		MaxConnIdleTime:     time.Minute,
		BatchConcurrency:    16,
		Logger:              &logger,
		NewCircuitBreaker: func(addr string) *setstream.CircuitBreaker {
			return gobreaker.NewCircuitBreaker[*resp.Reply](gobreaker.Settings{
				Name:        addr,
				MaxRequests: 3,
				Interval:    10 * time.Second,
				Timeout:     5 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 5
				},
				OnStateChange: onStateChange,
			})
		},
	}
}

// SetupClient creates a client for the proxied servers.
func SetupClient(toxi ToxiproxyConfig, config setstream.Config) (*setstream.Client, error) {
	return setstream.NewClient(setstream.NewStaticServers(toxi.ClientAddrs()...), config)
}

// WaitForHealthy waits until a write goes through.
func WaitForHealthy(ctx context.Context, client *setstream.Client) error {
	err := waitFor(30*time.Second, func() error {
		_, err := client.SAdd(ctx, []byte("health-check"), []byte("ok"))
		return err
	})
	if err != nil {
		return fmt.Errorf("client not healthy: %w", err)
	}
	fmt.Println("[Setup] Client is healthy")
	return nil
}

func waitFor(timeout time.Duration, fn func() error) error {
	deadline := time.Now().Add(timeout)
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(500 * time.Millisecond)
	}
}
