package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"

	"github.com/cloudx-io/nftescrow/events"
)

// buildSinks connects the configured event sinks behind an async queue.
// Events are always logged; NATS and Redis are optional. The returned
// function drains the queue and closes the connections.
func buildSinks(ctx context.Context, cfg Config, logger *slog.Logger) (events.Sink, func(), error) {
	sinks := events.Multi{events.LogSink{Logger: logger.With("sink", "log")}}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("nftescrow-enclave"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		closers = append(closers, nc.Close)

		js, err := jetstream.New(nc)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		if err := events.EnsureStream(ctx, js); err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, events.NewJetStreamSink(js))
		logger.Info("publishing events to JetStream", "url", cfg.NATSURL, "stream", events.StreamName)
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Error("failed to close redis client", "error", err)
			}
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		sinks = append(sinks, events.NewRedisSink(rdb))
		logger.Info("publishing events to Redis", "addr", cfg.RedisAddr)
	}

	q := events.NewQueue(sinks, cfg.QueueSize, logger)
	return q, func() {
		q.Close()
		closeAll()
	}, nil
}
