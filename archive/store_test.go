package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/nftescrow/enclaveapi"
)

type execCall struct {
	query string
	args  []any
}

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("not supported") }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

// MockDB records statements. Event ids in seen report zero rows affected.
type MockDB struct {
	calls    []execCall
	seen     map[string]bool
	ExecFunc func(query string) error
}

func (m *MockDB) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	if m.ExecFunc != nil {
		if err := m.ExecFunc(query); err != nil {
			return nil, err
		}
	}
	m.calls = append(m.calls, execCall{query: query, args: args})
	if query == insertEventQuery {
		id := args[0].(string)
		if m.seen[id] {
			return fakeResult(0), nil
		}
		if m.seen == nil {
			m.seen = map[string]bool{}
		}
		m.seen[id] = true
	}
	return fakeResult(1), nil
}

// newMockStore returns a store whose transactions run directly against db
// and counts rollbacks.
func newMockStore(db *MockDB) (*Store, *int) {
	rollbacks := 0
	return &Store{inTx: func(ctx context.Context, fn func(execer) error) error {
		if err := fn(db); err != nil {
			rollbacks++
			return err
		}
		return nil
	}}, &rollbacks
}

func createdEvent() enclaveapi.EventView {
	return enclaveapi.EventView{
		ID:         "3f1c8a52-0d5e-4b0a-9a53-0c3f0b3c1a01",
		Sequence:   1,
		Kind:       "auction_created",
		AuctionID:  0,
		Seller:     "0x00000000000000000000000000000000000000a1",
		Amount:     "1.5",
		Collection: "0x000000000000000000000000000000000000babe",
		TokenID:    "7",
		Time:       1_700_000_000,
	}
}

func TestApply_AuctionCreated(t *testing.T) {
	db := &MockDB{}
	store, _ := newMockStore(db)

	inserted, err := store.Apply(context.Background(), createdEvent())
	assert.NoError(t, err)
	check.True(t, inserted)
	assert.Equal(t, 2, len(db.calls))

	check.Equal(t, insertEventQuery, db.calls[0].query)
	var payload enclaveapi.EventView
	assert.NoError(t, json.Unmarshal(db.calls[0].args[5].([]byte), &payload))
	check.Equal(t, createdEvent(), payload)

	check.Equal(t, insertAuctionQuery, db.calls[1].query)
	check.Equal[any](t, uint64(0), db.calls[1].args[0])
	check.Equal(t, "1.5", db.calls[1].args[4])
	check.Equal[any](t, uint64(1), db.calls[1].args[6])
}

func TestApply_DuplicateSkipsProjection(t *testing.T) {
	db := &MockDB{}
	store, _ := newMockStore(db)

	_, err := store.Apply(context.Background(), createdEvent())
	assert.NoError(t, err)

	inserted, err := store.Apply(context.Background(), createdEvent())
	assert.NoError(t, err)
	check.False(t, inserted)
	// second call only attempted the event insert
	check.Equal(t, 3, len(db.calls))
}

func TestApply_Projections(t *testing.T) {
	tests := []struct {
		name  string
		ev    enclaveapi.EventView
		query string
		args  []any
	}{
		{
			name:  "bid placed",
			ev:    enclaveapi.EventView{ID: "b", Sequence: 2, Kind: "bid_placed", AuctionID: 4, Bidder: "0xb0b", Amount: "2", Asset: "0xc0de", Time: 10},
			query: updateBidQuery,
			args:  []any{uint64(4), "2", "0xb0b", "0xc0de", uint64(10), uint64(2)},
		},
		{
			name:  "ended with winner",
			ev:    enclaveapi.EventView{ID: "e", Sequence: 3, Kind: "auction_ended", AuctionID: 4, Bidder: "0xb0b", Amount: "2", Asset: "0xc0de", Time: 20},
			query: endAuctionQuery,
			args:  []any{uint64(4), "2", "0xb0b", "0xc0de", uint64(20), uint64(3)},
		},
		{
			name:  "ended without bids",
			ev:    enclaveapi.EventView{ID: "n", Sequence: 5, Kind: "auction_ended", AuctionID: 6, Amount: "0", Time: 30},
			query: endAuctionQuery,
			args:  []any{uint64(6), "0", nil, nil, uint64(30), uint64(5)},
		},
		{
			name:  "price feed set",
			ev:    enclaveapi.EventView{ID: "f", Sequence: 9, Kind: "price_feed_set", Asset: "0xc0de", Feed: "0xfeed"},
			query: upsertFeedQuery,
			args:  []any{"0xc0de", "0xfeed", uint64(9)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &MockDB{}
			store, _ := newMockStore(db)

			inserted, err := store.Apply(context.Background(), tt.ev)
			assert.NoError(t, err)
			check.True(t, inserted)
			assert.Equal(t, 2, len(db.calls))
			check.Equal(t, tt.query, db.calls[1].query)
			check.Equal(t, tt.args, db.calls[1].args)
		})
	}
}

func TestApply_UnknownKindOnlyArchives(t *testing.T) {
	db := &MockDB{}
	store, _ := newMockStore(db)

	inserted, err := store.Apply(context.Background(), enclaveapi.EventView{ID: "x", Sequence: 1, Kind: "something_new"})
	assert.NoError(t, err)
	check.True(t, inserted)
	check.Equal(t, 1, len(db.calls))
}

func TestApply_ProjectionFailureRollsBack(t *testing.T) {
	db := &MockDB{ExecFunc: func(query string) error {
		if query == insertAuctionQuery {
			return errors.New("connection reset")
		}
		return nil
	}}
	store, rollbacks := newMockStore(db)

	inserted, err := store.Apply(context.Background(), createdEvent())
	check.Error(t, err)
	check.False(t, inserted)
	check.True(t, strings.Contains(err.Error(), "failed to project auction_created event 1"))
	check.Equal(t, 1, *rollbacks)
}

func TestSchemaCoversProjectedTables(t *testing.T) {
	for _, table := range []string{"auction_events", "auctions", "price_feeds"} {
		check.True(t, strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table))
	}
}
