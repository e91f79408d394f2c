package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Config is read from the environment at startup.
type Config struct {
	Port         uint32
	Transport    string // vsock or tcp
	MaxWorkers   int
	GenesisPath  string
	SnapshotPath string
	DevClock     bool
	NATSURL      string
	RedisAddr    string
	QueueSize    int
}

func loadConfig(logger *slog.Logger) (Config, error) {
	cfg := Config{
		Transport:    getEnv("ENCLAVE_TRANSPORT", "vsock"),
		GenesisPath:  os.Getenv("ENCLAVE_GENESIS"),
		SnapshotPath: os.Getenv("ENCLAVE_SNAPSHOT"),
		DevClock:     os.Getenv("ENCLAVE_DEV_CLOCK") == "true",
		NATSURL:      os.Getenv("NATS_URL"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
	}

	port, err := getEnvInt(logger, "ENCLAVE_PORT", 5000)
	if err != nil {
		return cfg, err
	}
	if port <= 0 || port > 65535 {
		return cfg, fmt.Errorf("invalid value for ENCLAVE_PORT: %d", port)
	}
	cfg.Port = uint32(port)

	if cfg.Transport != "vsock" && cfg.Transport != "tcp" {
		return cfg, fmt.Errorf("invalid value for ENCLAVE_TRANSPORT: %s (must be vsock or tcp)", cfg.Transport)
	}

	cfg.MaxWorkers, err = getRequiredEnvInt(logger, "ENCLAVE_MAX_WORKERS")
	if err != nil {
		return cfg, fmt.Errorf("failed to get max workers config: %w", err)
	}
	if cfg.MaxWorkers <= 0 {
		return cfg, fmt.Errorf("invalid value for ENCLAVE_MAX_WORKERS: %d (must be positive)", cfg.MaxWorkers)
	}

	cfg.QueueSize, err = getEnvInt(logger, "ENCLAVE_EVENT_QUEUE", 1024)
	if err != nil {
		return cfg, err
	}

	if cfg.GenesisPath == "" {
		return cfg, fmt.Errorf("required environment variable ENCLAVE_GENESIS is not set")
	}
	return cfg, nil
}

// Helper function for required environment variable parsing
func getRequiredEnvInt(logger *slog.Logger, key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	logger.Info("using environment setting", "key", key, "value", intValue)
	return intValue, nil
}

func getEnvInt(logger *slog.Logger, key string, fallback int) (int, error) {
	if os.Getenv(key) == "" {
		return fallback, nil
	}
	return getRequiredEnvInt(logger, key)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
}
