// Package events delivers committed engine events to downstream systems:
// logs, NATS JetStream for archival, and a Redis read model for clients.
package events

import (
	"context"
	"errors"
	"log/slog"

	enclaveapi "github.com/cloudx-io/nftescrow/enclaveapi"
)

// Sink receives events in commit order.
type Sink interface {
	Publish(ctx context.Context, events []enclaveapi.EventView) error
}

// LogSink writes one structured log record per event.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(_ context.Context, events []enclaveapi.EventView) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, ev := range events {
		logger.Info("event",
			"kind", ev.Kind,
			"seq", ev.Sequence,
			"auction_id", ev.AuctionID,
			"bidder", ev.Bidder,
			"amount", ev.Amount,
			"asset", ev.Asset,
		)
	}
	return nil
}

// Multi publishes to every sink, even when an earlier one fails.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, events []enclaveapi.EventView) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
