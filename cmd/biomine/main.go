// Package main provides the CLI entrypoint for biomine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/biomine/internal/config"
	"github.com/verte-zerg/biomine/internal/logging"
	"github.com/verte-zerg/biomine/internal/model"
	"github.com/verte-zerg/biomine/internal/session"
	"github.com/verte-zerg/biomine/internal/sim"
	"github.com/verte-zerg/biomine/internal/stats"
	"github.com/verte-zerg/biomine/internal/tui"
	"github.com/verte-zerg/biomine/internal/web"
)

const (
	defaultSeed        = 0
	defaultTick        = time.Second
	defaultHistoryRows = 12
	defaultAddr        = "127.0.0.1:8080"
	defaultLogLevel    = "info"
	defaultHours       = 72
	defaultChartHeight = 10
)

var (
	globalSeed     int64
	globalTick     time.Duration
	globalLogLevel string
	globalLogFile  string

	webAddr string
	webOpen bool

	simulateHours int
	simulateRows  int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "biomine",
		Short:         "BioMine Nexus bioremediation dashboard",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runDashboardCmd,
	}

	flags := rootCmd.PersistentFlags()
	flags.Int64Var(&globalSeed, "seed", defaultSeed, "random seed (0 = time-based)")
	flags.DurationVar(&globalTick, "tick", defaultTick, "wall time per simulated hour")
	flags.StringVar(&globalLogLevel, "log-level", defaultLogLevel, "log level (trace, debug, info, warn, error)")
	flags.StringVar(&globalLogFile, "log-file", "", "log file (dashboard logs are discarded when empty)")

	rootCmd.AddCommand(newWebCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// loadSettings resolves defaults < config file < environment < flags.
func loadSettings(cmd *cobra.Command) (model.Config, config.FileConfig, error) {
	if err := config.LoadEnvFiles(".env", config.DefaultEnvPath()); err != nil {
		return model.Config{}, config.FileConfig{}, err
	}
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return model.Config{}, config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	fileCfg, err = config.ApplyEnv(fileCfg)
	if err != nil {
		return model.Config{}, config.FileConfig{}, err
	}

	historyRows := defaultHistoryRows
	if cmd.Flags().Lookup("rows") != nil {
		historyRows = simulateRows
	}
	applyInt64Config(cmd, "seed", &globalSeed, fileCfg.Simulation.Seed)
	applyDurationConfig(cmd, "tick", &globalTick, fileCfg.Simulation.Tick)
	applyIntConfig(cmd, "rows", &historyRows, fileCfg.Simulation.HistoryRows)
	applyStringConfig(cmd, "log-level", &globalLogLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "log-file", &globalLogFile, fileCfg.Log.File)

	cfg := model.Config{
		Seed:        globalSeed,
		Tick:        globalTick,
		HistoryRows: historyRows,
		LogLevel:    globalLogLevel,
		LogFile:     globalLogFile,
	}
	if err := validateConfig(cfg); err != nil {
		return model.Config{}, config.FileConfig{}, err
	}
	return cfg, fileCfg, nil
}

func runDashboardCmd(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.OpenFile(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeLog(); cerr != nil {
			logErrf("failed to close log file: %v\n", cerr)
		}
	}()

	var program *tea.Program
	display := session.DisplayFunc(func(u session.Update) {
		program.Send(tui.UpdateMsg(u))
	})
	ctrl := session.NewController(
		sim.NewEngine(sim.NewSource(cfg.Seed)),
		session.WithPacer(session.Interval(cfg.Tick)),
		session.WithDisplay(display),
		session.WithLogger(logger),
	)
	program = tea.NewProgram(tui.NewModel(ctrl, cfg), tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runSession(ctx, ctrl, logger, func(err error) {
		program.Send(tui.ErrMsg{Err: err})
	})

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

// runSession keeps the run loop alive across engine failures. A failed tick
// stops the session; the loop then waits for the next start.
func runSession(ctx context.Context, ctrl *session.Controller, logger *slog.Logger, onErr func(error)) {
	for {
		err := ctrl.Run(ctx)
		if err == nil {
			return
		}
		logger.Error("session run failed", "err", err)
		if onErr != nil {
			onErr(err)
		}
	}
}

func newWebCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the dashboard to a browser",
		Args:  cobra.NoArgs,
		RunE:  runWebCmd,
	}
	cmd.Flags().StringVar(&webAddr, "addr", defaultAddr, "listen address")
	cmd.Flags().BoolVar(&webOpen, "open", false, "open the dashboard in the default browser")
	return cmd
}

func runWebCmd(cmd *cobra.Command, _ []string) error {
	cfg, fileCfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "addr", &webAddr, fileCfg.Web.Addr)
	applyBoolConfig(cmd, "open", &webOpen, fileCfg.Web.OpenBrowser)
	webCfg := model.WebConfig{Addr: webAddr, OpenBrowser: webOpen}
	if err := validateWebConfig(webCfg); err != nil {
		return err
	}

	logger, closeLog, err := stderrOrFileLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeLog(); cerr != nil {
			logErrf("failed to close log file: %v\n", cerr)
		}
	}()

	var srv *web.Server
	display := session.DisplayFunc(func(u session.Update) {
		srv.Show(u)
	})
	ctrl := session.NewController(
		sim.NewEngine(sim.NewSource(cfg.Seed)),
		session.WithPacer(session.Interval(cfg.Tick)),
		session.WithDisplay(display),
		session.WithLogger(logger),
	)
	srv = web.NewServer(ctrl, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go runSession(ctx, ctrl, logger, nil)

	onReady := func(url string) {
		logErrf("Dashboard at %s (Ctrl+C to quit)\n", url)
		if !webCfg.OpenBrowser {
			return
		}
		if err := browser.OpenURL(url); err != nil {
			logger.Warn("failed to open browser", "url", url, "err", err)
		}
	}
	return srv.ListenAndServe(ctx, webCfg.Addr, onReady)
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the simulation headless and print a report",
		Args:  cobra.NoArgs,
		RunE:  runSimulateCmd,
	}
	cmd.Flags().IntVar(&simulateHours, "hours", defaultHours, "simulated hours")
	cmd.Flags().IntVar(&simulateRows, "rows", defaultHistoryRows, "history rows to print")
	return cmd
}

func runSimulateCmd(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if simulateHours < 0 {
		return fmt.Errorf("--hours must be >= 0")
	}

	logger, closeLog, err := stderrOrFileLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeLog(); cerr != nil {
			logErrf("failed to close log file: %v\n", cerr)
		}
	}()

	ctrl := session.NewController(
		sim.NewEngine(sim.NewSource(cfg.Seed)),
		session.WithPacer(session.NoDelay),
		session.WithLogger(logger),
	)
	snap, err := simulate(ctrl, simulateHours)
	if err != nil {
		return err
	}
	return stats.WriteReport(cmd.OutOrStdout(), snap, stats.ReportOptions{
		Rows:        cfg.HistoryRows,
		ChartHeight: defaultChartHeight,
	})
}

// simulate runs exactly hours ticks and leaves the session stopped.
func simulate(ctrl *session.Controller, hours int) (model.Snapshot, error) {
	if hours == 0 {
		return ctrl.Snapshot(), nil
	}
	ctrl.Start()
	for i := 0; i < hours; i++ {
		if _, _, err := ctrl.Tick(); err != nil {
			return model.Snapshot{}, err
		}
	}
	ctrl.Stop()
	return ctrl.Snapshot(), nil
}

func stderrOrFileLogger(cfg model.Config) (*slog.Logger, func() error, error) {
	if cfg.LogFile != "" {
		return logging.OpenFile(cfg.LogLevel, cfg.LogFile)
	}
	return logging.NewLogger(cfg.LogLevel, os.Stderr), func() error { return nil }, nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyInt64Config(cmd *cobra.Command, name string, target, value *int64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target *time.Duration, value *config.Duration) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = value.Duration
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# biomine configuration
# Uncomment a value to enable it. Environment (BIOMINE_*) and CLI flags
# override config values.

[simulation]
# seed = %d                 # Random seed (0 = time-based)
# tick = %q               # Wall time per simulated hour
# history-rows = %d         # Rows shown in the history table

[web]
# addr = %q   # Dashboard listen address
# open-browser = false      # Open the dashboard in the default browser

[log]
# level = %q            # trace, debug, info, warn, error
# file = %q
`,
		defaultSeed,
		defaultTick.String(),
		defaultHistoryRows,
		defaultAddr,
		defaultLogLevel,
		config.DefaultLogPath(),
	)
}

func validateConfig(cfg model.Config) error {
	if cfg.Tick < 0 {
		return fmt.Errorf("--tick must be >= 0")
	}
	if cfg.HistoryRows < 1 {
		return fmt.Errorf("history-rows must be >= 1")
	}
	if !logging.ValidLevel(cfg.LogLevel) {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	return nil
}

func validateWebConfig(cfg model.WebConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("--addr must not be empty")
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
