// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Data      DataConfig
	Source    SourceConfig
	Scheduler SchedulerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds database storage configuration.
type DataConfig struct {
	// BasePath is the directory holding the Badger database (default: ~/TeamFold/data).
	BasePath string
}

// SourceConfig holds external stats source configuration.
type SourceConfig struct {
	// BaseURL is the endpoint of the external computation network's stats API.
	BaseURL string
	// Timeout bounds every request to the stats source (default: 10s).
	Timeout time.Duration
	// RequestsPerSecond throttles outgoing stats requests (default: 4).
	RequestsPerSecond float64
	// Burst is the rate limiter burst size (default: 8).
	Burst int
}

// SchedulerConfig holds the periodic job configuration.
type SchedulerConfig struct {
	// ParsingEnabled turns the hourly stats parse on. Disabled by default;
	// state-change handlers skip re-baselining while this is off.
	ParsingEnabled bool
	// ParseInterval is the period between bulk stats parses (default: 1h).
	ParseInterval time.Duration
	// ResetEnabled turns the monthly reset on. Disabled by default.
	ResetEnabled bool
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for database storage")
	sourceURL := flag.String("stats-source-url", "", "Base URL of the external stats source")
	sourceTimeout := flag.String("stats-source-timeout", "", "Timeout for stats source requests (default: 10s)")
	parsingEnabled := flag.String("parsing-enabled", "", "Enable the hourly stats parse (default: false)")
	parseInterval := flag.String("parse-interval", "", "Interval between bulk stats parses (default: 1h)")
	resetEnabled := flag.String("reset-enabled", "", "Enable the monthly stats reset (default: false)")
	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Source: SourceConfig{
			BaseURL:           getConfigValue(*sourceURL, "STATS_SOURCE_URL", ""),
			RequestsPerSecond: 4,
			Burst:             8,
		},
		Scheduler: SchedulerConfig{
			ParsingEnabled: getBoolConfigValue(*parsingEnabled, "STATS_PARSING_ENABLED", false),
			ResetEnabled:   getBoolConfigValue(*resetEnabled, "STATS_RESET_ENABLED", false),
		},
	}

	// Parse durations.
	timeoutStr := getConfigValue(*sourceTimeout, "STATS_SOURCE_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid stats source timeout %q: %w", timeoutStr, err)
	}
	cfg.Source.Timeout = timeout

	intervalStr := getConfigValue(*parseInterval, "STATS_PARSE_INTERVAL", "1h")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid parse interval %q: %w", intervalStr, err)
	}
	cfg.Scheduler.ParseInterval = interval

	// Expand and validate data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	if c.Scheduler.ParseInterval <= 0 {
		return errors.New("parse interval must be positive")
	}

	// STATS_SOURCE_URL may be empty in development; the scheduler refuses to
	// start the parse job without it.

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "TeamFold", "data")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Env vars take precedence over the .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
