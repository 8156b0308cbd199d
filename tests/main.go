package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	toxiproxy "github.com/Shopify/toxiproxy/v2/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/setstream"
	"github.com/pior/setstream/internal/logger"
	"github.com/pior/setstream/tests/metrics"
	"github.com/pior/setstream/tests/scenarios"
	"github.com/pior/setstream/tests/testutils"
	"github.com/pior/setstream/tests/tui"
	"github.com/pior/setstream/tests/workload"
)

type options struct {
	scenario string
	runs     int
}

func main() {
	scenarioName := flag.String("scenario", "", "Specific scenario to run (default: continuous workload)")
	runs := flag.Int("runs", 0, "Number of scenario runs (0 = continuous)")
	concurrency := flag.Int("concurrency", 100, "Number of concurrent workers")
	metricsInterval := flag.Duration("metrics-interval", 2*time.Second, "How often to print metrics (ignored with TUI)")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	listScenarios := flag.Bool("list", false, "List available scenarios and exit")
	workloadName := flag.String("workload", "mixed", "Workload pattern to use")
	noTUI := flag.Bool("no-tui", false, "Disable TUI dashboard (use plain text output)")

	flag.Parse()

	if *listScenarios {
		printScenarios()
		return
	}

	fmt.Println("========================================")
	fmt.Println("  Setstream Reliability Test Runner")
	fmt.Println("========================================")
	fmt.Printf("Concurrency: %d workers\n", *concurrency)
	fmt.Printf("Workload: %s\n", *workloadName)
	if *scenarioName != "" {
		fmt.Printf("Scenario: %s\n", *scenarioName)
		if *runs > 0 {
			fmt.Printf("Runs: %d\n", *runs)
		} else {
			fmt.Println("Runs: Continuous (Ctrl+C to stop)")
		}
	} else {
		fmt.Println("Scenario: None (workload only)")
	}
	fmt.Println("========================================")
	fmt.Println()

	// the dashboard owns the terminal
	log := logger.NewLogger()
	if !*noTUI {
		log = logger.New(io.Discard)
	}

	fmt.Println("[Setup] Initializing toxiproxy...")
	toxiConfig := testutils.DefaultToxiproxyConfig(*log)
	_, proxies, err := testutils.SetupToxiproxy(toxiConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up toxiproxy: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure to run: docker compose up -d\n")
		os.Exit(1)
	}
	defer testutils.CleanupToxiproxy(proxies)

	fmt.Println("[Setup] Creating setstream client...")

	// wired to the collector once it exists
	var collector *metrics.Collector
	clientConfig := testutils.DefaultClientConfig(*log, func(name string, from, to gobreaker.State) {
		if collector != nil {
			collector.RecordCircuitBreakerChange(name, from.String(), to.String())
		}
	})

	client, err := testutils.SetupClient(toxiConfig, clientConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := testutils.WaitForHealthy(ctx, client); err != nil {
		fmt.Fprintf(os.Stderr, "Error waiting for client health: %v\n", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		go serveMetrics(ctx, *metricsAddr, client, log)
	}

	wl, err := workload.Get(*workloadName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading workload: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("[Setup] Workload: %s - %s\n", wl.Name(), wl.Description())

	runner := workload.NewRunner(client, wl, *concurrency)

	// TUI mode samples faster to keep the charts fresh
	collectorInterval := *metricsInterval
	if !*noTUI {
		collectorInterval = 500 * time.Millisecond
	}
	collector = metrics.NewCollector(client, runner, collectorInterval)

	fmt.Printf("\n[Main] Starting workload with %d workers\n", *concurrency)
	go func() {
		if err := runner.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Workload error: %v\n", err)
		}
	}()

	go collector.Start(ctx)

	opts := options{scenario: *scenarioName, runs: *runs}
	if *noTUI {
		runPlain(ctx, cancel, opts, proxies, collector, *metricsInterval)
		time.Sleep(500 * time.Millisecond) // final collection
	} else {
		runTUI(ctx, cancel, opts, proxies, collector)
		time.Sleep(200 * time.Millisecond) // let workers stop
	}

	collector.PrintSummary()
	fmt.Println("\n[Main] Test complete")
}

// serveMetrics exposes the client collector until ctx is done.
func serveMetrics(ctx context.Context, addr string, client *setstream.Client, log *zerolog.Logger) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(setstream.NewCollector(client))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server failed")
	}
}

func runTUI(ctx context.Context, cancel context.CancelFunc, opts options, proxies []*toxiproxy.Proxy, collector *metrics.Collector) {
	fmt.Println("\n[Main] Starting TUI dashboard...")
	time.Sleep(time.Second) // initial data

	dashboard := tui.NewDashboard(collector)

	if opts.scenario != "" {
		dashboard.SetAvailableScenarios(scenarios.Names())
		dashboard.AddLog("Letting workload stabilize...")
		time.Sleep(5 * time.Second)

		go runSwitchableScenarios(ctx, cancel, opts, proxies, dashboard)
	}

	// blocks until 'q', Ctrl+C or ctx is done
	if err := dashboard.Run(ctx.Done()); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
	}
	cancel()
}

// runSwitchableScenarios loops over scenario runs, switching when the
// dashboard asks for the next scenario.
func runSwitchableScenarios(ctx context.Context, cancel context.CancelFunc, opts options, proxies []*toxiproxy.Proxy, dashboard *tui.Dashboard) {
	current := opts.scenario
	switchCh := dashboard.GetScenarioSwitchChannel()
	runCount := 1

	for {
		scenario, err := scenarios.Get(current)
		if err != nil {
			dashboard.AddLog(fmt.Sprintf("Error loading scenario %s: %v", current, err))
			select {
			case <-ctx.Done():
				return
			case next := <-switchCh:
				current = next
				continue
			}
		}

		dashboard.SetScenario(scenario.Name(), scenario.Description())
		if opts.runs > 0 {
			dashboard.AddLog(fmt.Sprintf("Starting scenario run %d/%d: %s", runCount, opts.runs, scenario.Description()))
		} else {
			dashboard.AddLog(fmt.Sprintf("Starting scenario run %d: %s", runCount, scenario.Description()))
		}

		scenarioCtx, scenarioCancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			done <- runSilently(func() error { return scenario.Run(scenarioCtx, proxies) })
		}()

		select {
		case <-ctx.Done():
			scenarioCancel()
			return

		case next := <-switchCh:
			scenarioCancel()
			<-done

			dashboard.AddLog("Cleaning up toxiproxy state...")
			if err := testutils.CleanupToxiproxy(proxies); err != nil {
				dashboard.AddLog(fmt.Sprintf("Warning: Failed to cleanup toxiproxy: %v", err))
			}

			current = next
			runCount = 1
			time.Sleep(500 * time.Millisecond)

		case err := <-done:
			scenarioCancel()

			switch {
			case errors.Is(err, context.Canceled):
				dashboard.AddLog("Scenario canceled")
				return
			case err != nil:
				dashboard.AddLog(fmt.Sprintf("Scenario run %d error: %v", runCount, err))
			default:
				dashboard.AddLog(fmt.Sprintf("Scenario run %d complete", runCount))
			}

			if opts.runs > 0 && runCount >= opts.runs {
				dashboard.SetScenario("", fmt.Sprintf("All %d runs complete", opts.runs))
				dashboard.AddLog(fmt.Sprintf("All %d scenario runs complete", opts.runs))
				cancel()
				return
			}
			runCount++

			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

// runSilently discards stdout while fn runs so scenario output does not
// garble the dashboard.
func runSilently(fn func() error) error {
	stdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return fn()
	}
	os.Stdout = w
	go func() { _, _ = io.Copy(io.Discard, r) }()

	defer func() {
		_ = w.Close()
		os.Stdout = stdout
	}()
	return fn()
}

func runPlain(ctx context.Context, cancel context.CancelFunc, opts options, proxies []*toxiproxy.Proxy, collector *metrics.Collector, interval time.Duration) {
	if opts.scenario != "" {
		fmt.Println("[Main] Letting workload stabilize for 5s...")
		time.Sleep(5 * time.Second)

		scenario, err := scenarios.Get(opts.scenario)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
			os.Exit(1)
		}

		runScenario(ctx, cancel, opts.runs, scenario, proxies)

		if opts.runs == 0 {
			fmt.Println("[Main] Continuing workload (Ctrl+C to stop)...")
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collector.PrintLatest()
		}
	}
}

func runScenario(ctx context.Context, cancel context.CancelFunc, runs int, scenario scenarios.Scenario, proxies []*toxiproxy.Proxy) {
	for runCount := 1; ; runCount++ {
		if runs > 0 {
			fmt.Printf("\n[Main] Starting scenario run %d/%d: %s\n", runCount, runs, scenario.Description())
		} else {
			fmt.Printf("\n[Main] Starting scenario run %d: %s\n", runCount, scenario.Description())
		}
		fmt.Println("========================================")

		err := scenario.Run(ctx, proxies)

		fmt.Println("========================================")
		switch {
		case errors.Is(err, context.Canceled):
			fmt.Println("[Main] Scenario canceled")
			return
		case err != nil:
			fmt.Fprintf(os.Stderr, "Scenario run %d error: %v\n", runCount, err)
		default:
			fmt.Printf("[Main] Scenario run %d complete\n", runCount)
		}

		if runs > 0 && runCount >= runs {
			fmt.Printf("[Main] All %d scenario runs complete\n", runs)
			cancel()
			return
		}

		fmt.Println("[Main] Pausing 2s before next run...")
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func printScenarios() {
	fmt.Println("Available Scenarios:")
	fmt.Println("====================")

	allScenarios := scenarios.All()
	for _, name := range scenarios.Names() {
		fmt.Printf("  %-25s %s\n", name, allScenarios[name].Description())
	}

	fmt.Println("\nAvailable Workloads:")
	fmt.Println("====================")

	allWorkloads := workload.All()
	for _, name := range workload.Names() {
		fmt.Printf("  %-25s %s\n", name, allWorkloads[name].Description())
	}
}
