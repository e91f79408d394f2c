package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	enclaveapi "github.com/cloudx-io/nftescrow/enclaveapi"
)

// MockSink records batches and fails when PublishFunc says so.
type MockSink struct {
	mu          sync.Mutex
	batches     [][]enclaveapi.EventView
	PublishFunc func(events []enclaveapi.EventView) error
}

func (m *MockSink) Publish(_ context.Context, events []enclaveapi.EventView) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, events)
	if m.PublishFunc != nil {
		return m.PublishFunc(events)
	}
	return nil
}

func (m *MockSink) Batches() [][]enclaveapi.EventView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]enclaveapi.EventView(nil), m.batches...)
}

func testEvents() []enclaveapi.EventView {
	return []enclaveapi.EventView{
		{ID: "e1", Sequence: 1, Kind: "auction_created", AuctionID: 0, Seller: "0xA1", Amount: "1", Collection: "0xC0", TokenID: "7"},
		{ID: "e2", Sequence: 2, Kind: "bid_placed", AuctionID: 0, Bidder: "0xB2", Amount: "2", Asset: "0x00"},
	}
}

func TestLogSink(t *testing.T) {
	check.NoError(t, LogSink{}.Publish(context.Background(), testEvents()))
}

func TestMulti_PublishesToAllSinks(t *testing.T) {
	failing := &MockSink{PublishFunc: func([]enclaveapi.EventView) error { return errors.New("down") }}
	healthy := &MockSink{}

	err := Multi{failing, healthy}.Publish(context.Background(), testEvents())
	check.Error(t, err)
	check.Equal(t, 1, len(failing.Batches()))
	check.Equal(t, 1, len(healthy.Batches()))
}

func TestQueue_PreservesOrder(t *testing.T) {
	sink := &MockSink{}
	q := NewQueue(sink, 16, nil)

	for i := uint64(1); i <= 5; i++ {
		assert.NoError(t, q.Publish(context.Background(), []enclaveapi.EventView{{Sequence: i}}))
	}
	assert.NoError(t, q.Publish(context.Background(), nil))
	q.Close()

	batches := sink.Batches()
	assert.Equal(t, 5, len(batches))
	for i, b := range batches {
		check.Equal(t, uint64(i+1), b[0].Sequence)
	}
}

func TestQueue_SinkErrorsDoNotStopDelivery(t *testing.T) {
	calls := 0
	sink := &MockSink{PublishFunc: func([]enclaveapi.EventView) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}}
	q := NewQueue(sink, 4, nil)
	assert.NoError(t, q.Publish(context.Background(), testEvents()))
	assert.NoError(t, q.Publish(context.Background(), testEvents()))
	q.Close()
	check.Equal(t, 2, len(sink.Batches()))
}
