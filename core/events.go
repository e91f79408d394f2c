package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	EventAuctionCreated EventKind = "auction_created"
	EventBidPlaced      EventKind = "bid_placed"
	EventAuctionEnded   EventKind = "auction_ended"
	EventPriceFeedSet   EventKind = "price_feed_set"
)

// Event is emitted for external indexing once its transaction commits.
// Bidder is the accepted bidder for EventBidPlaced and the winner (or
// NoBidder) for EventAuctionEnded; Amount and Asset describe the bid or the
// settlement paid to the seller.
type Event struct {
	Kind       EventKind
	AuctionID  uint64
	Seller     common.Address
	Bidder     common.Address
	Amount     *big.Int
	Asset      common.Address
	Collection common.Address
	TokenID    *big.Int
	Feed       common.Address
	Time       uint64
}

func (e *Engine) emit(ev Event) {
	e.pending = append(e.pending, ev)
}
