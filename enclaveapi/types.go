package enclaveapi

import (
	"time"

	"github.com/cloudx-io/nftescrow/core"
)

// Request types understood by the enclave.
const (
	TypePing         = "ping"
	TypeCreate       = "create_auction"
	TypeBid          = "bid"
	TypeEnd          = "end_auction"
	TypeSetPriceFeed = "set_price_feed"
	TypeGetAuction   = "get_auction"
	TypeGetPrice     = "get_price"
	TypeGetBalance   = "get_balance"
	TypeSetFeedPrice = "set_feed_price"
	TypeAdvanceTime  = "advance_time"
	TypeExport       = "export_snapshot"
)

// TxFields are carried by every mutating request. Value is a decimal amount.
// Caller is trusted as sent. Time is honored only by an enclave running a dev
// clock; otherwise it must be omitted and the enclave clock is used.
type TxFields struct {
	Caller string  `json:"caller"`
	Value  string  `json:"value,omitempty"`
	Time   *uint64 `json:"time,omitempty"`
}

type CreateAuctionRequest struct {
	Type string `json:"type"`
	TxFields
	Duration      uint64 `json:"duration"`
	Collection    string `json:"collection"`
	StartingPrice string `json:"starting_price"`
	TokenID       string `json:"token_id"`
}

type BidRequest struct {
	Type string `json:"type"`
	TxFields
	AuctionID uint64 `json:"auction_id"`
	Amount    string `json:"amount"`
	Asset     string `json:"asset,omitempty"` // empty for the native asset
}

type EndAuctionRequest struct {
	Type string `json:"type"`
	TxFields
	AuctionID uint64 `json:"auction_id"`
}

type SetPriceFeedRequest struct {
	Type string `json:"type"`
	TxFields
	Asset string `json:"asset"`
	Feed  string `json:"feed"`
}

type GetAuctionRequest struct {
	Type      string `json:"type"`
	AuctionID uint64 `json:"auction_id"`
}

type GetPriceRequest struct {
	Type  string `json:"type"`
	Asset string `json:"asset"`
}

type GetBalanceRequest struct {
	Type    string `json:"type"`
	Account string `json:"account"`
	Asset   string `json:"asset,omitempty"`
}

// SetFeedPriceRequest reports a new round on a feed. Price is a decimal
// quote, scaled by the feed's own decimals.
type SetFeedPriceRequest struct {
	Type string `json:"type"`
	TxFields
	Feed  string `json:"feed"`
	Price string `json:"price"`
}

type AdvanceTimeRequest struct {
	Type    string `json:"type"`
	Seconds uint64 `json:"seconds"`
}

// Response is returned for every request. Only the payload fields that
// apply to the request type are set.
type Response struct {
	Type           string                `json:"type"`
	Success        bool                  `json:"success"`
	ErrorCode      string                `json:"error_code,omitempty"`
	Message        string                `json:"message"`
	AuctionID      *uint64               `json:"auction_id,omitempty"`
	Auction        *AuctionView          `json:"auction,omitempty"`
	Price          *PriceView            `json:"price,omitempty"`
	Balance        string                `json:"balance,omitempty"`
	Events         []EventView           `json:"events,omitempty"`
	Receipt        AttestationCOSEBase64 `json:"receipt,omitempty"`
	ReceiptGzip    AttestationCOSEGzip   `json:"receipt_gzip,omitempty"` // same receipt, compact for links
	Snapshot       string                `json:"snapshot,omitempty"` // base64 CBOR, see EncodeSnapshot
	Time           uint64                `json:"time,omitempty"`
	ProcessingTime int64                 `json:"processing_time_ms"`
}

// AuctionView is the wire form of core.Auction.
type AuctionView struct {
	ID              uint64 `json:"id"`
	Seller          string `json:"seller"`
	Collection      string `json:"collection"`
	TokenID         string `json:"token_id"`
	StartingPrice   string `json:"starting_price"`
	Duration        uint64 `json:"duration"`
	StartTime       uint64 `json:"start_time"`
	Deadline        uint64 `json:"deadline"`
	HighestBid      string `json:"highest_bid"`
	HighestBidder   string `json:"highest_bidder,omitempty"`
	SettlementAsset string `json:"settlement_asset"`
	Ended           bool   `json:"ended"`
}

func AuctionFromCore(a core.Auction) AuctionView {
	v := AuctionView{
		ID:              a.ID,
		Seller:          a.Seller.Hex(),
		Collection:      a.Collection.Hex(),
		TokenID:         a.TokenID.String(),
		StartingPrice:   FormatAmount(a.StartingPrice),
		Duration:        a.Duration,
		StartTime:       a.StartTime,
		Deadline:        a.Deadline(),
		HighestBid:      FormatAmount(a.HighestBid),
		SettlementAsset: a.SettlementAsset.Hex(),
		Ended:           a.Ended,
	}
	if a.HasBid() {
		v.HighestBidder = a.HighestBidder.Hex()
	}
	return v
}

// PriceView is a feed reading. Answer is the raw integer, Quote the answer
// scaled by Decimals.
type PriceView struct {
	Asset     string `json:"asset"`
	Feed      string `json:"feed"`
	RoundID   uint64 `json:"round_id"`
	Answer    string `json:"answer"`
	Quote     string `json:"quote"`
	Decimals  uint8  `json:"decimals"`
	UpdatedAt uint64 `json:"updated_at"`
}

// PingResponse answers a health probe.
type PingResponse struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Auctions  uint64    `json:"auctions"`
}
