package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MinDuration is the exclusive lower bound on an auction's duration, in seconds.
const MinDuration uint64 = 10

var (
	// NativeAsset identifies the chain's native currency wherever an asset address is expected.
	NativeAsset = common.Address{}

	// NoBidder is the highest bidder of an auction that has not received a bid.
	NoBidder = common.Address{}
)

// TxContext carries what the ledger attaches to every transaction.
type TxContext struct {
	Caller common.Address
	Value  *big.Int // native currency attached to the call, nil means none
	Time   uint64   // block time in unix seconds
}

func (tx TxContext) value() *big.Int {
	if tx.Value == nil {
		return new(big.Int)
	}
	return tx.Value
}

// Auction is the per-auction record. Seller, Collection, TokenID,
// StartingPrice, Duration and StartTime never change after creation.
type Auction struct {
	ID            uint64         `json:"id"`
	Seller        common.Address `json:"seller"`
	Collection    common.Address `json:"collection"`
	TokenID       *big.Int       `json:"token_id"`
	StartingPrice *big.Int       `json:"starting_price"`
	Duration      uint64         `json:"duration"`
	StartTime     uint64         `json:"start_time"`

	HighestBid      *big.Int       `json:"highest_bid"`
	HighestBidder   common.Address `json:"highest_bidder"`
	SettlementAsset common.Address `json:"settlement_asset"`
	Ended           bool           `json:"ended"`
}

// Deadline is the first instant at which bidding is closed.
func (a *Auction) Deadline() uint64 {
	return a.StartTime + a.Duration
}

// HasBid reports whether a bid has ever been accepted.
func (a *Auction) HasBid() bool {
	return a.HighestBidder != NoBidder
}

// Open reports whether the auction accepts bids at now.
func (a *Auction) Open(now uint64) bool {
	return !a.Ended && now < a.Deadline()
}

func (a *Auction) clone() *Auction {
	c := *a
	c.TokenID = cloneInt(a.TokenID)
	c.StartingPrice = cloneInt(a.StartingPrice)
	c.HighestBid = cloneInt(a.HighestBid)
	return &c
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
