package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	enclaveapi "github.com/cloudx-io/nftescrow/enclaveapi"
)

// Queue hands batches to a sink from a single goroutine so publishing never
// blocks the caller and batches keep their order.
type Queue struct {
	sink    Sink
	timeout time.Duration
	logger  *slog.Logger
	ch      chan []enclaveapi.EventView
	done    chan struct{}
	once    sync.Once
}

func NewQueue(sink Sink, size int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		sink:    sink,
		timeout: 5 * time.Second,
		logger:  logger,
		ch:      make(chan []enclaveapi.EventView, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Publish enqueues a batch. A full queue drops the batch and logs it.
func (q *Queue) Publish(_ context.Context, events []enclaveapi.EventView) error {
	if len(events) == 0 {
		return nil
	}
	select {
	case q.ch <- events:
	default:
		q.logger.Error("event queue full, dropping batch", "events", len(events), "first_seq", events[0].Sequence)
	}
	return nil
}

// Close drains queued batches and stops the worker.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.ch) })
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for batch := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.sink.Publish(ctx, batch); err != nil {
			q.logger.Error("failed to publish events", "events", len(batch), "first_seq", batch[0].Sequence, "error", err)
		}
		cancel()
	}
}
