package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdlayher/vsock"
)

const readTimeout = 30 * time.Second

type EnclaveServer struct {
	port       uint32
	transport  string
	maxWorkers int
	handler    *Handler
	logger     *slog.Logger
}

func NewEnclaveServer(cfg Config, handler *Handler, logger *slog.Logger) *EnclaveServer {
	return &EnclaveServer{
		port:       cfg.Port,
		transport:  cfg.Transport,
		maxWorkers: cfg.MaxWorkers,
		handler:    handler,
		logger:     logger,
	}
}

func (s *EnclaveServer) listen() (net.Listener, error) {
	switch s.transport {
	case "tcp":
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
		if err != nil {
			return nil, fmt.Errorf("failed to create tcp listener: %w", err)
		}
		return listener, nil
	default:
		listener, err := vsock.Listen(s.port, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		return listener, nil
	}
}

// Start listens on the configured transport and serves until ctx is done.
func (s *EnclaveServer) Start(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	s.logger.Info("TEE server listening", "transport", s.transport, "port", s.port)
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener, one request per connection, with at
// most maxWorkers connections in flight. It closes listener on return.
func (s *EnclaveServer) Serve(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		if err := listener.Close(); err != nil {
			s.logger.Error("failed to close listener", "error", err)
		}
	})
	defer stop()

	semaphore := make(chan struct{}, s.maxWorkers)
	s.logger.Info("worker pool initialized", "max_workers", s.maxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("failed to accept connection", "error", err)
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }() // Release worker slot
				s.handleConnection(ctx, c)
			}(conn)
		default:
			s.logger.Info("no workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				s.logger.Error("failed to close rejected connection", "error", err)
			}
		}
	}
}

func (s *EnclaveServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered in handleConnection", "panic", r)
		}
		if err := conn.Close(); err != nil {
			s.logger.Error("failed to close connection", "error", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, conn); err != nil {
		s.logger.Error("failed to read request", "error", err)
		return
	}

	response := s.handler.Handle(ctx, buf.Bytes())

	if err := json.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func main() {
	logger := newLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("enclave stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}
	genesis, err := LoadGenesis(cfg.GenesisPath)
	if err != nil {
		return err
	}

	attester, err := getEnclaveAttester()
	if err != nil {
		logger.Warn("NSM unavailable, settlements will not carry receipts", "error", err)
	}

	sink, closeSinks, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	clock := NewClock(time.Now, cfg.DevClock)
	handler, err := NewHandler(genesis, clock, attester, sink, logger)
	if err != nil {
		return err
	}
	if cfg.SnapshotPath != "" {
		data, err := LoadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return err
		}
		if err := handler.Restore(data); err != nil {
			return fmt.Errorf("failed to restore %s: %w", cfg.SnapshotPath, err)
		}
	}

	return NewEnclaveServer(cfg, handler, logger).Start(ctx)
}
