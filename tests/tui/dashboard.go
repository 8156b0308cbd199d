package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/pior/setstream/tests/metrics"
)

const (
	refreshRate = 200 * time.Millisecond
	maxLogs     = 20
	gaugeMaxOps = 10000
)

var poolTableHeader = []string{"Server", "Circuit", "Conns", "Active", "Idle", "Destroyed", "Consec", "Failures"}

// series is a fixed-width window of samples.
type series struct {
	values []float64
	width  int
}

func (s *series) push(v float64) {
	s.values = append(s.values, v)
	if over := len(s.values) - s.width; over > 0 {
		s.values = s.values[over:]
	}
}

func (s *series) resize(width int) {
	s.width = max(width, 10)
	if over := len(s.values) - s.width; over > 0 {
		s.values = s.values[over:]
	}
}

// plottable returns a copy, or nil while the plot cannot render (fewer than 2 points).
func (s *series) plottable() []float64 {
	if len(s.values) < 2 {
		return nil
	}
	return slices.Clone(s.values)
}

// Dashboard renders collector snapshots in the terminal.
type Dashboard struct {
	collector *metrics.Collector
	startTime time.Time

	header      *widgets.Paragraph
	scenarioBox *widgets.Paragraph
	opsPlot     *widgets.Plot
	errorPlot   *widgets.Plot
	gauge       *widgets.Gauge
	client      *widgets.SparklineGroup
	requests    *widgets.Sparkline
	transport   *widgets.Sparkline
	poolTable   *widgets.Table
	logList     *widgets.List
	grid        *ui.Grid

	scenarioName string
	scenarioDesc string

	ops, errorRate           series
	requestRate, failureRate series
	seen                     int
	seenCircuitChanges       int
	logs                     []string

	scenarioNames []string
	switchCh      chan string
}

// NewDashboard creates a dashboard reading from collector.
func NewDashboard(collector *metrics.Collector) *Dashboard {
	d := &Dashboard{
		collector: collector,
		startTime: time.Now(),
		switchCh:  make(chan string, 1),
	}
	for _, s := range []*series{&d.ops, &d.errorRate, &d.requestRate, &d.failureRate} {
		s.width = 30
	}
	return d
}

// SetAvailableScenarios enables the 'n' key, cycling through names.
func (d *Dashboard) SetAvailableScenarios(names []string) {
	d.scenarioNames = names
}

// GetScenarioSwitchChannel receives the scenario selected with 'n'.
func (d *Dashboard) GetScenarioSwitchChannel() <-chan string {
	return d.switchCh
}

// Init initializes termui and the widgets.
func (d *Dashboard) Init() error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("failed to initialize termui: %w", err)
	}

	d.header = widgets.NewParagraph()
	d.header.Title = "Setstream Reliability Test"
	d.header.Text = d.keyHelp()
	d.header.BorderStyle.Fg = ui.ColorCyan
	d.header.TitleStyle = ui.NewStyle(ui.ColorWhite, ui.ColorClear, ui.ModifierBold)

	d.scenarioBox = widgets.NewParagraph()
	d.scenarioBox.Title = "Scenario Status"
	d.scenarioBox.TextStyle.Fg = ui.ColorWhite
	d.renderScenario()

	d.opsPlot = newPlot("Operations/sec (thousands)", ui.ColorGreen, ui.ColorGreen)
	d.errorPlot = newPlot("Error Rate %", ui.ColorRed, ui.ColorYellow)

	d.gauge = widgets.NewGauge()
	d.gauge.Title = "Throughput"
	d.gauge.BarColor = ui.ColorClear
	d.gauge.BorderStyle.Fg = ui.ColorCyan
	d.gauge.LabelStyle.Fg = ui.ColorWhite

	d.requests = widgets.NewSparkline()
	d.requests.Title = "requests/s"
	d.requests.LineColor = ui.ColorBlue
	d.transport = widgets.NewSparkline()
	d.transport.Title = "transport errors/s"
	d.transport.LineColor = ui.ColorRed
	d.client = widgets.NewSparklineGroup(d.requests, d.transport)
	d.client.Title = "Client"
	d.client.BorderStyle.Fg = ui.ColorBlue

	d.poolTable = widgets.NewTable()
	d.poolTable.Title = "Server Pool Status"
	d.poolTable.Rows = [][]string{poolTableHeader}
	d.poolTable.TextStyle = ui.NewStyle(ui.ColorWhite)
	d.poolTable.RowSeparator = false
	d.poolTable.BorderStyle.Fg = ui.ColorMagenta
	d.poolTable.RowStyles[0] = ui.NewStyle(ui.ColorWhite, ui.ColorClear, ui.ModifierBold)

	d.logList = widgets.NewList()
	d.logList.Title = "Logs"
	d.logList.Rows = []string{"Waiting for events..."}
	d.logList.TextStyle = ui.NewStyle(ui.ColorWhite)
	d.logList.BorderStyle.Fg = ui.ColorCyan

	d.layout()
	return nil
}

func newPlot(title string, line, border ui.Color) *widgets.Plot {
	p := widgets.NewPlot()
	p.Title = title
	p.Data = [][]float64{{0, 0}}
	p.LineColors[0] = line
	p.AxesColor = ui.ColorWhite
	p.BorderStyle.Fg = border
	p.Marker = widgets.MarkerBraille
	p.HorizontalScale = 1000 // hides the x-axis labels
	return p
}

func (d *Dashboard) keyHelp() string {
	if len(d.scenarioNames) > 0 {
		return "Press 'q' to quit | 'n' next scenario"
	}
	return "Press 'q' to quit"
}

func (d *Dashboard) hasScenario() bool {
	return d.scenarioName != "" || d.scenarioDesc != ""
}

// layout rebuilds the grid for the current terminal size.
func (d *Dashboard) layout() {
	width, height := ui.TerminalDimensions()

	// one sample per braille column of a half-width plot
	for _, s := range []*series{&d.ops, &d.errorRate} {
		s.resize(width/2 - 10)
	}
	for _, s := range []*series{&d.requestRate, &d.failureRate} {
		s.resize(width/3 - 4)
	}

	rows := []any{ui.NewRow(0.08, d.header)}
	if d.hasScenario() {
		rows = append(rows, ui.NewRow(0.08, d.scenarioBox))
	}
	rows = append(rows,
		ui.NewRow(0.26,
			ui.NewCol(0.5, d.opsPlot),
			ui.NewCol(0.5, d.errorPlot),
		),
		ui.NewRow(0.08, d.gauge),
		ui.NewRow(0.22,
			ui.NewCol(0.66, d.poolTable),
			ui.NewCol(0.34, d.client),
		),
		ui.NewRow(0.28, d.logList),
	)

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, width, height)
	d.grid.Set(rows...)
}

// Update folds new snapshots into the widgets.
func (d *Dashboard) Update() {
	snapshots := d.collector.GetSnapshots()
	if len(snapshots) <= d.seen {
		return
	}
	fresh := snapshots[max(d.seen, 1)-1:]
	d.seen = len(snapshots)

	for i := 1; i < len(fresh); i++ {
		rate := metrics.Between(fresh[i-1], fresh[i])
		d.ops.push(rate.OpsPerSec / 1000)
		d.errorRate.push(rate.ErrorRate * 100)
		d.requestRate.push(rate.RequestsPerSec)
		d.failureRate.push(rate.TransportErrorsPerSec)
	}

	latest := fresh[len(fresh)-1]
	var current metrics.Rate
	if len(fresh) > 1 {
		current = metrics.Between(fresh[len(fresh)-2], latest)
	}

	if data := d.ops.plottable(); data != nil {
		d.opsPlot.Data[0] = data
		d.opsPlot.Title = fmt.Sprintf("Operations/sec (thousands) - current: %.1fk", current.OpsPerSec/1000)
	}
	if data := d.errorRate.plottable(); data != nil {
		d.errorPlot.Data[0] = data
		d.errorPlot.Title = fmt.Sprintf("Error Rate %% (current: %.2f%%)", current.ErrorRate*100)
	}
	setSparkline(d.requests, d.requestRate.values)
	setSparkline(d.transport, d.failureRate.values)

	d.gauge.Percent = min(int(current.OpsPerSec*100/gaugeMaxOps), 100)
	d.gauge.Label = fmt.Sprintf("%.0f ops/sec | Total: %d | Success: %d | Failed: %d | Avg latency: %s",
		current.OpsPerSec,
		latest.WorkloadStats.TotalOps,
		latest.WorkloadStats.SuccessOps,
		latest.WorkloadStats.FailedOps,
		latest.WorkloadStats.AvgLatency.Round(time.Microsecond),
	)

	d.poolTable.Rows = poolRows(latest.PoolStats)

	changes := d.collector.GetCircuitChanges()
	for _, change := range changes[d.seenCircuitChanges:] {
		d.logs = append(d.logs, fmt.Sprintf("[%s] Circuit: %s: %s -> %s",
			change.Timestamp.Format("15:04:05"), change.ServerAddr, change.OldState, change.NewState))
	}
	d.seenCircuitChanges = len(changes)

	if len(d.logs) > 0 {
		d.logList.Rows = d.logs[max(len(d.logs)-maxLogs, 0):]
	}

	runtime := time.Since(d.startTime).Round(time.Second)
	d.header.Text = fmt.Sprintf("Runtime: %s | %s", runtime, d.keyHelp())
}

func setSparkline(sl *widgets.Sparkline, values []float64) {
	sl.Data = slices.Clone(values)
	sl.MaxVal = 0
	if len(values) == 0 || slices.Max(values) == 0 {
		sl.MaxVal = 1 // flat line instead of a zero division
	}
}

func poolRows(pools []metrics.PoolSnapshot) [][]string {
	pools = slices.Clone(pools)
	slices.SortFunc(pools, func(a, b metrics.PoolSnapshot) int {
		return strings.Compare(a.ServerAddr, b.ServerAddr)
	})

	rows := [][]string{poolTableHeader}
	for _, pool := range pools {
		state := pool.CircuitBreakerState
		if state == "" {
			state = "none"
		}
		rows = append(rows, []string{
			pool.ServerAddr,
			state,
			fmt.Sprint(pool.TotalConns),
			fmt.Sprint(pool.ActiveConns),
			fmt.Sprint(pool.IdleConns),
			fmt.Sprint(pool.DestroyedConns),
			fmt.Sprint(pool.ConsecutiveFailures),
			fmt.Sprint(pool.TotalFailures),
		})
	}
	return rows
}

// Render draws the dashboard.
func (d *Dashboard) Render() {
	ui.Render(d.grid)
}

// SetScenario updates the scenario box. A description without a name is a
// status message.
func (d *Dashboard) SetScenario(name, description string) {
	hadScenario := d.hasScenario()
	d.scenarioName = name
	d.scenarioDesc = description

	if d.scenarioBox == nil {
		return
	}
	d.renderScenario()
	if hadScenario != d.hasScenario() {
		d.layout()
	}
}

func (d *Dashboard) renderScenario() {
	switch {
	case d.scenarioName != "":
		d.scenarioBox.Text = fmt.Sprintf("[%s]\n%s", d.scenarioName, d.scenarioDesc)
		d.scenarioBox.BorderStyle.Fg = ui.ColorYellow
	case d.scenarioDesc != "":
		d.scenarioBox.Text = d.scenarioDesc
		d.scenarioBox.BorderStyle.Fg = ui.ColorWhite
	default:
		d.scenarioBox.Text = "No active scenario"
		d.scenarioBox.BorderStyle.Fg = ui.ColorWhite
	}
}

// AddLog appends a timestamped message to the logs panel.
func (d *Dashboard) AddLog(message string) {
	d.logs = append(d.logs, fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), message))
}

// Close restores the terminal.
func (d *Dashboard) Close() {
	ui.Close()
}

func (d *Dashboard) nextScenario() {
	if len(d.scenarioNames) == 0 {
		return
	}
	next := d.scenarioNames[0]
	if i := slices.Index(d.scenarioNames, d.scenarioName); i >= 0 {
		next = d.scenarioNames[(i+1)%len(d.scenarioNames)]
	}

	select {
	case d.switchCh <- next:
		d.AddLog(fmt.Sprintf("Switching to scenario: %s", next))
	default:
		d.AddLog("Cannot switch scenario right now")
	}
}

// Run drives the event loop until 'q', Ctrl+C or done.
func (d *Dashboard) Run(done <-chan struct{}) error {
	if err := d.Init(); err != nil {
		return err
	}
	defer d.Close()

	events := ui.PollEvents()
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "n":
				d.nextScenario()
			case "<Resize>":
				d.layout()
				ui.Clear()
				d.Render()
			}
		case <-ticker.C:
			d.Update()
			d.Render()
		}
	}
}
