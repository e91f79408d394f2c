package core

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is the engine's durable state. Auctions are ordered by id.
type Snapshot struct {
	Admin      common.Address
	Auctions   []Auction
	PriceFeeds []FeedRegistration
}

type FeedRegistration struct {
	Asset common.Address
	Feed  common.Address
}

// Export copies the engine state. It must not be called while an operation is in flight.
func (e *Engine) Export() Snapshot {
	s := Snapshot{
		Admin:      e.admin,
		Auctions:   make([]Auction, 0, len(e.auctions)),
		PriceFeeds: make([]FeedRegistration, 0, len(e.priceFeeds)),
	}
	for _, a := range e.auctions {
		s.Auctions = append(s.Auctions, *a.clone())
	}
	for asset, feed := range e.priceFeeds {
		s.PriceFeeds = append(s.PriceFeeds, FeedRegistration{Asset: asset, Feed: feed})
	}
	sort.Slice(s.PriceFeeds, func(i, j int) bool {
		return s.PriceFeeds[i].Asset.Hex() < s.PriceFeeds[j].Asset.Hex()
	})
	return s
}

// Restore replaces the engine state with s after checking the record invariants.
func (e *Engine) Restore(s Snapshot) error {
	if e.depth != 0 {
		return fmt.Errorf("failed to restore snapshot: operation in flight")
	}
	if s.Admin != e.admin {
		return fmt.Errorf("failed to restore snapshot: admin %s does not match engine admin %s", s.Admin.Hex(), e.admin.Hex())
	}

	auctions := make([]*Auction, 0, len(s.Auctions))
	for i := range s.Auctions {
		a := s.Auctions[i].clone()
		if a.ID != uint64(i) {
			return fmt.Errorf("failed to restore snapshot: auction at position %d has id %d", i, a.ID)
		}
		if a.HasBid() != (a.HighestBid.Sign() != 0) {
			return fmt.Errorf("failed to restore snapshot: auction %d has inconsistent highest bid", a.ID)
		}
		if a.StartingPrice.Sign() <= 0 || a.Duration <= MinDuration {
			return fmt.Errorf("failed to restore snapshot: auction %d has invalid terms", a.ID)
		}
		auctions = append(auctions, a)
	}

	feeds := make(map[common.Address]common.Address, len(s.PriceFeeds))
	for _, r := range s.PriceFeeds {
		feeds[r.Asset] = r.Feed
	}

	e.auctions = auctions
	e.priceFeeds = feeds
	e.undo.reset()
	e.pending = nil
	e.log.Info("snapshot restored", "auctions", len(auctions), "price_feeds", len(feeds))
	return nil
}
