// Command gateway exposes the enclave over HTTP. It holds no auction state:
// every request becomes one enclave round trip.
//
// The gateway does not authenticate callers; the caller address in a request
// body is taken as given. It listens on loopback unless GATEWAY_ADDR says
// otherwise and belongs behind a front end that establishes identity.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
)

const defaultAddr = "127.0.0.1:8080"

type Config struct {
	Addr           string
	Transport      string
	EnclaveCID     uint32
	EnclavePort    uint32
	EnclaveAddr    string
	EnclaveTimeout time.Duration
}

func loadConfig() (Config, error) {
	cfg := Config{
		Addr:           getEnv("GATEWAY_ADDR", defaultAddr),
		Transport:      getEnv("ENCLAVE_TRANSPORT", "vsock"),
		EnclaveAddr:    getEnv("ENCLAVE_ADDR", "127.0.0.1:5000"),
		EnclaveTimeout: 10 * time.Second,
	}

	switch cfg.Transport {
	case "vsock":
		cid, err := getRequiredEnvUint32("ENCLAVE_CID")
		if err != nil {
			return cfg, err
		}
		cfg.EnclaveCID = cid
		port, err := getEnvUint32("ENCLAVE_PORT", 5000)
		if err != nil {
			return cfg, err
		}
		cfg.EnclavePort = port
	case "tcp":
	default:
		return cfg, fmt.Errorf("invalid value for ENCLAVE_TRANSPORT: %s (must be vsock or tcp)", cfg.Transport)
	}

	if v := os.Getenv("ENCLAVE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid value for ENCLAVE_TIMEOUT: %s", v)
		}
		cfg.EnclaveTimeout = d
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getRequiredEnvUint32(key string) (uint32, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}
	v, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}
	return uint32(v), nil
}

func getEnvUint32(key string, fallback uint32) (uint32, error) {
	if os.Getenv(key) == "" {
		return fallback, nil
	}
	return getRequiredEnvUint32(key)
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

func main() {
	logger := newLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var client EnclaveClient
	if cfg.Transport == "tcp" {
		client = NewTCPClient(cfg.EnclaveAddr, cfg.EnclaveTimeout)
		logger.Info("using tcp enclave", "addr", cfg.EnclaveAddr)
	} else {
		client = NewVsockClient(cfg.EnclaveCID, cfg.EnclavePort, cfg.EnclaveTimeout)
		logger.Info("using vsock enclave", "cid", cfg.EnclaveCID, "port", cfg.EnclavePort)
	}

	handler := NewHandler(client, NewMetrics(), logger)
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler.SetupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.EnclaveTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down gateway")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
