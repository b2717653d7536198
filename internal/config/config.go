// Package config reads runtime settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds the settings of the library CLI.
type Config struct {
	DBPath        string
	Driver        string
	LogLevel      string
	LogPretty     bool
	WatchInterval time.Duration
	PasswordCost  int
	MetricsAddr   string
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		DBPath:      getEnv("LIBRARY_DB_PATH", "library.db"),
		Driver:      getEnv("LIBRARY_SQL_DRIVER", "sqlite3"),
		LogLevel:    getEnv("LIBRARY_LOG_LEVEL", "info"),
		MetricsAddr: getEnv("LIBRARY_METRICS_ADDR", ""),
	}

	var err error
	if cfg.LogPretty, err = strconv.ParseBool(getEnv("LIBRARY_LOG_PRETTY", "true")); err != nil {
		return nil, fmt.Errorf("LIBRARY_LOG_PRETTY: %w", err)
	}
	if cfg.WatchInterval, err = time.ParseDuration(getEnv("LIBRARY_WATCH_INTERVAL", "500ms")); err != nil {
		return nil, fmt.Errorf("LIBRARY_WATCH_INTERVAL: %w", err)
	}
	if cfg.PasswordCost, err = strconv.Atoi(getEnv("LIBRARY_BCRYPT_COST", strconv.Itoa(bcrypt.DefaultCost))); err != nil {
		return nil, fmt.Errorf("LIBRARY_BCRYPT_COST: %w", err)
	}
	if cfg.PasswordCost < bcrypt.MinCost || cfg.PasswordCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("LIBRARY_BCRYPT_COST: %d outside [%d, %d]", cfg.PasswordCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
