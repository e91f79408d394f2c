package enclaveapi

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/nftescrow/core"
)

func TestEventFromCore_BidPlaced(t *testing.T) {
	v := EventFromCore(core.Event{
		Kind:      core.EventBidPlaced,
		AuctionID: 3,
		Bidder:    common.HexToAddress("0xB0B"),
		Amount:    big.NewInt(1_500_000_000_000_000_000),
		Asset:     core.NativeAsset,
		Time:      99,
	}, 12)

	_, err := uuid.Parse(v.ID)
	check.NoError(t, err)
	check.Equal(t, uint64(12), v.Sequence)
	check.Equal(t, "bid_placed", v.Kind)
	check.Equal(t, "1.5", v.Amount)
	check.Equal(t, common.HexToAddress("0xB0B").Hex(), v.Bidder)
	check.Equal(t, "", v.Seller)
	check.Equal(t, "auction.events.3", EventSubject(v))
}

func TestEventFromCore_EndedWithoutWinner(t *testing.T) {
	v := EventFromCore(core.Event{
		Kind:       core.EventAuctionEnded,
		AuctionID:  1,
		Seller:     common.HexToAddress("0xAD01"),
		Bidder:     core.NoBidder,
		Amount:     new(big.Int),
		Collection: common.HexToAddress("0xC011"),
		TokenID:    big.NewInt(5),
	}, 1)

	check.Equal(t, "", v.Bidder)
	check.Equal(t, "0", v.Amount)
	check.Equal(t, "5", v.TokenID)
}

func TestEventFromCore_UniqueIDs(t *testing.T) {
	ev := core.Event{Kind: core.EventPriceFeedSet, Asset: core.NativeAsset, Feed: common.HexToAddress("0xFEED")}
	a, b := EventFromCore(ev, 1), EventFromCore(ev, 1)
	check.NotEqual(t, a.ID, b.ID)
	check.Equal(t, "auction.events.admin", EventSubject(a))
}

func TestAuctionFromCore(t *testing.T) {
	v := AuctionFromCore(core.Auction{
		ID:            2,
		Seller:        common.HexToAddress("0xAD01"),
		TokenID:       big.NewInt(9),
		StartingPrice: big.NewInt(1_000_000_000_000_000_000),
		Duration:      60,
		StartTime:     100,
		HighestBid:    new(big.Int),
	})
	check.Equal(t, uint64(160), v.Deadline)
	check.Equal(t, "1", v.StartingPrice)
	check.Equal(t, "0", v.HighestBid)
	check.Equal(t, "", v.HighestBidder)
}
