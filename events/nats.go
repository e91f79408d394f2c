package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	enclaveapi "github.com/cloudx-io/nftescrow/enclaveapi"
)

// StreamName is the JetStream stream holding auction events.
const StreamName = "AUCTION_EVENTS"

// StreamConfig retains events for the archiver. Subjects are
// auction.events.{auction_id} and auction.events.admin.
func StreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Committed escrow auction events",
		Subjects:    []string{enclaveapi.EventSubjectPrefix + ".>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  10 * time.Minute,
		Replicas:    1,
	}
}

// EnsureStream creates the stream or updates it to StreamConfig.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	if _, err := js.CreateOrUpdateStream(ctx, StreamConfig()); err != nil {
		return fmt.Errorf("failed to create/update stream: %w", err)
	}
	return nil
}

type jetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamSink publishes each event as JSON. The event id doubles as the
// JetStream message id so redeliveries within the duplicate window are dropped.
type JetStreamSink struct {
	js jetStreamPublisher
}

func NewJetStreamSink(js jetstream.JetStream) *JetStreamSink {
	return &JetStreamSink{js: js}
}

func (s *JetStreamSink) Publish(ctx context.Context, events []enclaveapi.EventView) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event %d: %w", ev.Sequence, err)
		}
		subject := enclaveapi.EventSubject(ev)
		if _, err := s.js.Publish(ctx, subject, data, jetstream.WithMsgID(ev.ID)); err != nil {
			return fmt.Errorf("failed to publish event %d to %s: %w", ev.Sequence, subject, err)
		}
	}
	return nil
}
