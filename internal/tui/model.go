// Package tui provides the Bubble Tea operations dashboard.
package tui

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/biomine/internal/model"
	"github.com/verte-zerg/biomine/internal/session"
	"github.com/verte-zerg/biomine/internal/sim"
	"github.com/verte-zerg/biomine/internal/stats"
)

const (
	tabOverview = iota
	tabProduction
	tabHistory
)

const (
	plotHeight   = 8
	defaultWidth = 80
	wideLayout   = 100
)

// Controller is the subset of the session controller the dashboard drives.
type Controller interface {
	Start() bool
	Stop() bool
	Reset() model.Snapshot
	Snapshot() model.Snapshot
}

// UpdateMsg carries a tick from the session run loop into the program.
type UpdateMsg session.Update

// ErrMsg reports a run loop failure.
type ErrMsg struct {
	Err error
}

var (
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	headerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	sectionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")).Bold(true)
	runningBadge   = lipgloss.NewStyle().Foreground(lipgloss.Color("#0B0B0B")).Background(lipgloss.Color("#52C41A")).Padding(0, 1).Bold(true)
	stoppedBadge   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Background(lipgloss.Color("#4A4A4A")).Padding(0, 1)
	completedBadge = lipgloss.NewStyle().Foreground(lipgloss.Color("#0B0B0B")).Background(lipgloss.Color("#C89A3A")).Padding(0, 1).Bold(true)
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	cardStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	alertCardStyle = cardStyle.BorderForeground(lipgloss.Color("#FF4D4F"))
	cardTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	deltaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
)

// Model implements the Bubble Tea dashboard.
type Model struct {
	ctrl Controller
	cfg  model.Config
	keys keyMap
	help help.Model

	snap   model.Snapshot
	errMsg string

	tabs      []string
	activeTab int
	viewports []viewport.Model
	history   table.Model

	width  int
	height int
}

// NewModel constructs a dashboard bound to ctrl.
func NewModel(ctrl Controller, cfg model.Config) *Model {
	m := &Model{
		ctrl: ctrl,
		cfg:  cfg,
		keys: defaultKeyMap(),
		help: help.New(),
		tabs: []string{"Overview", "Energy & Byproducts", "History"},
		snap: ctrl.Snapshot(),
	}
	m.viewports = []viewport.Model{viewport.New(0, 0), viewport.New(0, 0)}
	m.history = newHistoryTable()
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.updateLayout()
		m.refresh()
		return m, nil
	case UpdateMsg:
		// Ticks from a run that has since been reset are dropped.
		if msg.Snapshot.RunID != m.snap.RunID {
			return m, nil
		}
		m.snap = msg.Snapshot
		m.refresh()
		return m, nil
	case ErrMsg:
		m.errMsg = msg.Err.Error()
		m.snap = m.ctrl.Snapshot()
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Start):
		m.ctrl.Start()
		m.errMsg = ""
		m.snap = m.ctrl.Snapshot()
		m.refresh()
		return m, nil
	case key.Matches(msg, m.keys.Stop):
		m.ctrl.Stop()
		m.snap = m.ctrl.Snapshot()
		m.refresh()
		return m, nil
	case key.Matches(msg, m.keys.Reset):
		m.snap = m.ctrl.Reset()
		m.errMsg = ""
		m.refresh()
		return m, nil
	case key.Matches(msg, m.keys.Prev):
		m.moveTab(-1)
		return m, tea.ClearScreen
	case key.Matches(msg, m.keys.Next):
		m.moveTab(1)
		return m, tea.ClearScreen
	}
	if m.activeTab == tabHistory {
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd
	}
	vp := m.viewports[m.activeTab]
	var cmd tea.Cmd
	vp, cmd = vp.Update(msg)
	m.viewports[m.activeTab] = vp
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if m.errMsg != "" || m.snap.Completed() {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = bodyHeight
	}
	rows := maxInt(1, bodyHeight-1)
	if m.cfg.HistoryRows > 0 && m.cfg.HistoryRows < rows {
		rows = m.cfg.HistoryRows
	}
	m.history.SetWidth(m.width)
	m.history.SetHeight(rows)
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := (m.activeTab + delta + count) % count
	m.activeTab = next
	if m.activeTab == tabHistory {
		m.history.Focus()
	} else {
		m.history.Blur()
	}
}

// refresh re-renders tab contents from the current snapshot.
func (m *Model) refresh() {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	m.updateLayout()
	m.viewports[tabOverview].SetContent(renderOverview(m.snap, width))
	m.viewports[tabProduction].SetContent(renderProduction(m.snap, width))
	applyHistoryRows(&m.history, m.snap.History)
}

func (m *Model) renderHeader() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	tabs := lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	status := fmt.Sprintf("%s  %s  run %s  tick %s",
		titleStyle.Render("BioMine Nexus"),
		statusBadge(m.snap),
		m.snap.RunID,
		m.cfg.Tick,
	)
	return tabs + "\n" + status
}

func statusBadge(snap model.Snapshot) string {
	switch {
	case snap.Running:
		return runningBadge.Render("RUNNING")
	case snap.Completed():
		return completedBadge.Render("COMPLETED")
	default:
		return stoppedBadge.Render("STOPPED")
	}
}

func (m *Model) renderBody() string {
	if m.activeTab == tabHistory {
		if len(m.snap.History) == 0 {
			return "No records yet. Press s to start the operation."
		}
		return m.history.View()
	}
	return m.viewports[m.activeTab].View()
}

func (m *Model) renderFooter() string {
	lines := []string{m.help.View(m.keys)}
	if m.errMsg != "" {
		lines = append(lines, errorStyle.Render(truncateLine(m.errMsg, maxInt(1, m.width))))
	} else if m.snap.Completed() {
		lines = append(lines, successStyle.Render(fmt.Sprintf("Operation completed after %d h. The system is stopped.", m.snap.Hour)))
	}
	return strings.Join(lines, "\n")
}

func renderOverview(snap model.Snapshot, width int) string {
	last, ok := snap.Last()
	if !ok {
		return "No records yet. Press s to start the operation."
	}
	totals := stats.Sum(snap.History)
	delta := stats.ContaminationDelta(snap.History)
	kpis := []string{
		metricCard("Operating time", fmt.Sprintf("%d h", snap.Hour)),
		metricCard("Tonnes processed", fmt.Sprintf("%.0f t", snap.CumulativeTonnage)),
		metricCard("Contamination", fmt.Sprintf("%.2f%% %s", snap.Contamination, deltaStyle.Render(fmt.Sprintf("%+.2f", delta)))),
		metricCard("Minerals recovered", fmt.Sprintf("%.2f kg", totals.MineralsKg)),
	}
	reactorStatus := metricCard("Reactor status", string(last.ReactorStatus))
	if last.ReactorStatus == model.ReactorAnomaly {
		reactorStatus = alertCard("Reactor status", string(last.ReactorStatus))
	}
	reactor := []string{
		metricCard("pH", fmt.Sprintf("%.2f", last.Reactor.PH)),
		metricCard("Temperature", fmt.Sprintf("%.2f °C", last.Reactor.TemperatureC)),
		metricCard("Turbidity", fmt.Sprintf("%.2f NTU", last.Reactor.TurbidityNTU)),
		metricCard("Conductivity", fmt.Sprintf("%.2f mS/cm", last.Reactor.ConductivityMSCM)),
		metricCard("Dissolved O₂", fmt.Sprintf("%.2f mg/L", last.Reactor.DissolvedOxygenMgL)),
		metricCard("Heavy metals", fmt.Sprintf("%.2f ppm", last.Reactor.HeavyMetalsPPM)),
		reactorStatus,
		metricCard("AI adjustment", fmt.Sprintf("%.2f", last.OptimizationFactor)),
	}
	trend := headerStyle.Render("Trend " + stats.Sparkline(stats.Column(tail(snap.History, 40), func(r model.Record) float64 { return r.ContaminationPct })))

	comparison := renderPlot(width, stats.PlotOptions{Title: "Contamination (%): BioMine vs traditional", Fixed: true, Min: 0, Max: 100}, []stats.Series{
		{Name: "BioMine", Values: stats.Column(snap.History, func(r model.Record) float64 { return r.ContaminationPct })},
		{Name: "Traditional", Values: stats.TraditionalColumn(snap.History)},
	})
	sections := []string{
		cardGrid(kpis, width),
		sectionStyle.Render("Autonomous reactor"),
		cardGrid(reactor, width),
		trend,
		"",
		comparison,
	}
	return strings.TrimRight(strings.Join(sections, "\n"), "\n")
}

func renderProduction(snap model.Snapshot, width int) string {
	last, ok := snap.Last()
	if !ok {
		return "No records yet. Press s to start the operation."
	}
	totals := stats.Sum(snap.History)
	energyStatus := metricCard("Equipment status", string(last.EnergyStatus))
	if last.EnergyStatus == model.EnergyAlert {
		energyStatus = alertCard("Equipment status", "ALERT: generation drop")
	}
	energy := []string{
		energyStatus,
		metricCard("This hour", fmt.Sprintf("%.3f kWh", last.EnergyKWh)),
		metricCard("Total generated", fmt.Sprintf("%.2f kWh", totals.EnergyKWh)),
		metricCard("Alerts", fmt.Sprintf("%d", totals.EnergyAlerts)),
	}
	byproducts := []string{
		metricCard("Minerals", fmt.Sprintf("%.2f kg", totals.MineralsKg)),
		metricCard("Bioplastics", fmt.Sprintf("%.2f kg", totals.BioplasticsKg)),
		metricCard("Biofertilizers", fmt.Sprintf("%.2f kg", totals.BiofertilizersKg)),
		metricCard("Composites", fmt.Sprintf("%.2f kg", totals.CompositesKg)),
	}
	energyChart := renderPlot(width, stats.PlotOptions{Title: "Energy generated per hour (kWh)"}, stats.EnergySeries(snap.History))
	byproductChart := renderPlot(width, stats.PlotOptions{Title: "Byproducts per hour (kg)"}, stats.ByproductSeries(snap.History))
	sections := []string{
		sectionStyle.Render("Self-sustaining energy"),
		cardGrid(energy, width),
		energyChart,
		"",
		sectionStyle.Render(fmt.Sprintf("Tailings 4.0 (%.0f t/h)", sim.TonnesPerHour)),
		cardGrid(byproducts, width),
		byproductChart,
	}
	return strings.TrimRight(strings.Join(sections, "\n"), "\n")
}

func renderPlot(width int, opts stats.PlotOptions, series []stats.Series) string {
	var buf bytes.Buffer
	opts.Width = stats.PlotWidthFor(width)
	opts.Height = plotHeight
	opts.Color = true
	if err := stats.PlotSeries(&buf, series, opts); err != nil {
		return fmt.Sprintf("Failed to render chart: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func alertCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), errorStyle.Bold(true).Render(value))
	return alertCardStyle.Render(content)
}

// cardGrid lays cards out in rows of four, or two on narrow terminals.
func cardGrid(cards []string, width int) string {
	perRow := 4
	if width < wideLayout {
		perRow = 2
	}
	rows := make([]string, 0, (len(cards)+perRow-1)/perRow)
	for start := 0; start < len(cards); start += perRow {
		end := start + perRow
		if end > len(cards) {
			end = len(cards)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards[start:end]...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func tail(history []model.Record, n int) []model.Record {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func newHistoryTable() table.Model {
	headers, _ := stats.HistoryTable(nil, 0)
	t := table.New(
		table.WithColumns(historyColumns(headers, nil)),
		table.WithHeight(1),
	)
	t.SetStyles(historyTableStyles())
	return t
}

func historyColumns(headers []string, rows [][]string) []table.Column {
	widths := columnWidths(headers, rows)
	cols := make([]table.Column, len(headers))
	for i, h := range headers {
		cols[i] = table.Column{Title: h, Width: widths[i]}
	}
	return cols
}

// applyHistoryRows shows the newest record first.
func applyHistoryRows(t *table.Model, history []model.Record) {
	headers, rows := stats.HistoryTable(history, 0)
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}
	t.SetRows(nil)
	t.SetColumns(historyColumns(headers, rows))
	t.SetRows(tableRows)
}

func historyTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}
