package events

import (
	"context"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/redis/go-redis/v9"

	enclaveapi "github.com/cloudx-io/nftescrow/enclaveapi"
)

type MockRedis struct {
	hashes   map[string]map[string]any
	channels map[string]int
}

func newMockRedis() *MockRedis {
	return &MockRedis{hashes: map[string]map[string]any{}, channels: map[string]int{}}
}

func (m *MockRedis) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]any{}
		m.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1]
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (m *MockRedis) Publish(_ context.Context, channel string, _ any) *redis.IntCmd {
	m.channels[channel]++
	return redis.NewIntResult(1, nil)
}

func TestRedisSink_ReadModel(t *testing.T) {
	rdb := newMockRedis()
	sink := &RedisSink{rdb: rdb}

	evs := append(testEvents(),
		enclaveapi.EventView{ID: "e3", Sequence: 3, Kind: "auction_ended", AuctionID: 0, Bidder: "0xB2"},
		enclaveapi.EventView{ID: "e4", Sequence: 4, Kind: "price_feed_set", Asset: "0xT0", Feed: "0xF0"},
	)
	assert.NoError(t, sink.Publish(context.Background(), evs))

	h := rdb.hashes[AuctionKey(0)]
	assert.NotNil(t, h)
	check.Equal(t, any("0xA1"), h["seller"])
	check.Equal(t, any("2"), h["highest_bid"])
	check.Equal(t, any("ended"), h["status"])
	check.Equal(t, any("0xB2"), h["winner"])
	check.Equal(t, any(uint64(3)), h["last_seq"])

	check.Equal(t, any("0xF0"), rdb.hashes["price_feeds"]["0xT0"])
	check.Equal(t, 3, rdb.channels[ChannelKey(0)])
}
