package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cloudx-io/nftescrow/core"
	enclaveapi "github.com/cloudx-io/nftescrow/enclaveapi"
)

type redisWriter interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSink maintains a per-auction hash for cheap reads and fans events out
// over pub/sub to live subscribers.
type RedisSink struct {
	rdb redisWriter
}

func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{rdb: rdb}
}

// AuctionKey is the hash holding the read model of one auction.
func AuctionKey(auctionID uint64) string {
	return fmt.Sprintf("auction:%d", auctionID)
}

// ChannelKey is the pub/sub channel for one auction's events.
func ChannelKey(auctionID uint64) string {
	return fmt.Sprintf("auction_events:%d", auctionID)
}

const priceFeedsKey = "price_feeds"

func (s *RedisSink) Publish(ctx context.Context, events []enclaveapi.EventView) error {
	for _, ev := range events {
		if err := s.apply(ctx, ev); err != nil {
			return fmt.Errorf("failed to update read model for event %d: %w", ev.Sequence, err)
		}
		if ev.Kind == string(core.EventPriceFeedSet) {
			continue
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event %d: %w", ev.Sequence, err)
		}
		if err := s.rdb.Publish(ctx, ChannelKey(ev.AuctionID), payload).Err(); err != nil {
			return fmt.Errorf("failed to publish event %d: %w", ev.Sequence, err)
		}
	}
	return nil
}

func (s *RedisSink) apply(ctx context.Context, ev enclaveapi.EventView) error {
	key := AuctionKey(ev.AuctionID)
	switch ev.Kind {
	case string(core.EventAuctionCreated):
		return s.rdb.HSet(ctx, key,
			"seller", ev.Seller,
			"collection", ev.Collection,
			"token_id", ev.TokenID,
			"starting_price", ev.Amount,
			"status", "open",
			"last_seq", ev.Sequence,
		).Err()
	case string(core.EventBidPlaced):
		return s.rdb.HSet(ctx, key,
			"highest_bid", ev.Amount,
			"highest_bidder", ev.Bidder,
			"settlement_asset", ev.Asset,
			"last_seq", ev.Sequence,
		).Err()
	case string(core.EventAuctionEnded):
		return s.rdb.HSet(ctx, key,
			"status", "ended",
			"winner", ev.Bidder,
			"last_seq", ev.Sequence,
		).Err()
	case string(core.EventPriceFeedSet):
		return s.rdb.HSet(ctx, priceFeedsKey, ev.Asset, ev.Feed).Err()
	}
	return nil
}
