package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/cloudx-io/nftescrow/enclaveapi"
	"github.com/cloudx-io/nftescrow/events"
)

// DefaultDurable is the durable consumer name the archiver binds to.
const DefaultDurable = "archiver"

// Archiver persists one event, reporting false for an event already stored.
type Archiver interface {
	Apply(ctx context.Context, ev enclaveapi.EventView) (bool, error)
}

// Consumer drains the event stream into an Archiver. A message is acked
// only after it is persisted.
type Consumer struct {
	store        Archiver
	logger       *slog.Logger
	durable      string
	writeTimeout time.Duration
	retryDelay   time.Duration
}

func NewConsumer(store Archiver, durable string, logger *slog.Logger) *Consumer {
	if durable == "" {
		durable = DefaultDurable
	}
	return &Consumer{
		store:        store,
		logger:       logger,
		durable:      durable,
		writeTimeout: 10 * time.Second,
		retryDelay:   time.Second,
	}
}

// ConsumerConfig delivers the whole stream in order. MaxAckPending of one
// keeps the projection applying events in sequence.
func (c *Consumer) ConsumerConfig() jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       c.durable,
		Description:   "Archives auction events to PostgreSQL",
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxAckPending: 1,
		FilterSubject: enclaveapi.EventSubjectPrefix + ".>",
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, js jetstream.JetStream) error {
	if err := events.EnsureStream(ctx, js); err != nil {
		return err
	}
	cons, err := js.CreateOrUpdateConsumer(ctx, events.StreamName, c.ConsumerConfig())
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", c.durable, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.Handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	c.logger.Info("archiver consuming", "stream", events.StreamName, "durable", c.durable)

	<-ctx.Done()
	cc.Stop()
	return nil
}

// Handle persists one message. Undecodable messages are terminated so they
// are never redelivered; storage failures are redelivered after retryDelay.
func (c *Consumer) Handle(ctx context.Context, msg jetstream.Msg) {
	var ev enclaveapi.EventView
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		c.logger.Error("dropping malformed event", "subject", msg.Subject(), "error", err)
		if err := msg.Term(); err != nil {
			c.logger.Warn("failed to terminate message", "error", err)
		}
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	inserted, err := c.store.Apply(dbCtx, ev)
	if err != nil {
		c.logger.Error("failed to archive event", "sequence", ev.Sequence, "kind", ev.Kind, "error", err)
		if err := msg.NakWithDelay(c.retryDelay); err != nil {
			c.logger.Warn("failed to nak message", "error", err)
		}
		return
	}

	if inserted {
		c.logger.Debug("archived event", "sequence", ev.Sequence, "kind", ev.Kind, "auction_id", ev.AuctionID)
	} else {
		c.logger.Debug("skipped duplicate event", "sequence", ev.Sequence, "id", ev.ID)
	}
	if err := msg.Ack(); err != nil {
		c.logger.Warn("failed to ack message", "sequence", ev.Sequence, "error", err)
	}
}
