// Package config loads server and seeding configuration from an optional
// .env file, the environment and command-line flags, in that order of
// increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultPort    = 8080
	DefaultDBPath  = "payroll.db"
	DefaultWorkers = 8
)

type Config struct {
	Port     int
	DBPath   string
	LogLevel slog.Level
	Workers  int

	// SeedFile is a YAML bundle seeded at startup. Empty means the embedded
	// Kenya preset.
	SeedFile string
}

// Load reads .env (if present), then PAYROLL_* variables, then flags from
// args. args excludes the program name. extra registers command-specific
// flags on the same flag set.
func Load(name string, args []string, extra ...func(*flag.FlagSet)) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv(name, args, extra...)
}

// FromEnv skips the .env file. Used by tests.
func FromEnv(name string, args []string, extra ...func(*flag.FlagSet)) (*Config, error) {
	port, err := getEnvInt("PAYROLL_PORT", DefaultPort)
	if err != nil {
		return nil, err
	}
	workers, err := getEnvInt("PAYROLL_WORKERS", DefaultWorkers)
	if err != nil {
		return nil, err
	}
	level, err := ParseLogLevel(getEnv("PAYROLL_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:     port,
		DBPath:   getEnv("PAYROLL_DB_PATH", DefaultDBPath),
		LogLevel: level,
		Workers:  workers,
		SeedFile: getEnv("PAYROLL_SEED_FILE", ""),
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (\":memory:\" for in-memory)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent employees per payroll run")
	fs.StringVar(&cfg.SeedFile, "seed", cfg.SeedFile, "YAML formula bundle (default: embedded Kenya preset)")
	for _, register := range extra {
		register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("PAYROLL_DB_PATH is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid PAYROLL_LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
