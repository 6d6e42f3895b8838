package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables that override the config file.
const (
	EnvSeed        = "BIOMINE_SEED"
	EnvTick        = "BIOMINE_TICK"
	EnvHistoryRows = "BIOMINE_HISTORY_ROWS"
	EnvWebAddr     = "BIOMINE_WEB_ADDR"
	EnvOpenBrowser = "BIOMINE_OPEN_BROWSER"
	EnvLogLevel    = "BIOMINE_LOG_LEVEL"
	EnvLogFile     = "BIOMINE_LOG_FILE"
)

// LoadEnvFiles loads .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to stat env file: %w", err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overlays BIOMINE_* variables onto cfg.
func ApplyEnv(cfg FileConfig) (FileConfig, error) {
	if v, ok := os.LookupEnv(EnvSeed); ok {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", EnvSeed, err)
		}
		cfg.Simulation.Seed = &seed
	}
	if v, ok := os.LookupEnv(EnvTick); ok {
		tick, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", EnvTick, err)
		}
		cfg.Simulation.Tick = &Duration{Duration: tick}
	}
	if v, ok := os.LookupEnv(EnvHistoryRows); ok {
		rows, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", EnvHistoryRows, err)
		}
		cfg.Simulation.HistoryRows = &rows
	}
	if v, ok := os.LookupEnv(EnvWebAddr); ok {
		cfg.Web.Addr = &v
	}
	if v, ok := os.LookupEnv(EnvOpenBrowser); ok {
		open, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", EnvOpenBrowser, err)
		}
		cfg.Web.OpenBrowser = &open
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.Log.Level = &v
	}
	if v, ok := os.LookupEnv(EnvLogFile); ok {
		cfg.Log.File = &v
	}
	return cfg, nil
}
