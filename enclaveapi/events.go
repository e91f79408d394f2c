package enclaveapi

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cloudx-io/nftescrow/core"
)

// EventView is the published form of core.Event. ID is unique per event and
// lets consumers discard redeliveries; Sequence orders events globally.
type EventView struct {
	ID         string `json:"id"`
	Sequence   uint64 `json:"sequence"`
	Kind       string `json:"kind"`
	AuctionID  uint64 `json:"auction_id"`
	Seller     string `json:"seller,omitempty"`
	Bidder     string `json:"bidder,omitempty"`
	Amount     string `json:"amount,omitempty"`
	Asset      string `json:"asset,omitempty"`
	Collection string `json:"collection,omitempty"`
	TokenID    string `json:"token_id,omitempty"`
	Feed       string `json:"feed,omitempty"`
	Time       uint64 `json:"time"`
}

// EventFromCore converts an engine event; seq is its position in the global event stream.
func EventFromCore(ev core.Event, seq uint64) EventView {
	v := EventView{
		ID:        uuid.NewString(),
		Sequence:  seq,
		Kind:      string(ev.Kind),
		AuctionID: ev.AuctionID,
		Time:      ev.Time,
	}
	switch ev.Kind {
	case core.EventAuctionCreated:
		v.Seller = ev.Seller.Hex()
		v.Amount = FormatAmount(ev.Amount)
		v.Collection = ev.Collection.Hex()
		v.TokenID = ev.TokenID.String()
	case core.EventBidPlaced:
		v.Bidder = ev.Bidder.Hex()
		v.Amount = FormatAmount(ev.Amount)
		v.Asset = ev.Asset.Hex()
	case core.EventAuctionEnded:
		v.Seller = ev.Seller.Hex()
		if ev.Bidder != core.NoBidder {
			v.Bidder = ev.Bidder.Hex()
		}
		v.Amount = FormatAmount(ev.Amount)
		v.Asset = ev.Asset.Hex()
		v.Collection = ev.Collection.Hex()
		v.TokenID = ev.TokenID.String()
	case core.EventPriceFeedSet:
		v.Asset = ev.Asset.Hex()
		v.Feed = ev.Feed.Hex()
	}
	return v
}

// EventSubjectPrefix is the root of the subjects events are published on.
const EventSubjectPrefix = "auction.events"

// EventSubject is the subject for v: auction events under their auction id,
// registry events under "admin".
func EventSubject(v EventView) string {
	if v.Kind == string(core.EventPriceFeedSet) {
		return EventSubjectPrefix + ".admin"
	}
	return fmt.Sprintf("%s.%d", EventSubjectPrefix, v.AuctionID)
}
