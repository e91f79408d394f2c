package enclaveapi

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/nftescrow/core"
)

func testSnapshot() core.Snapshot {
	return core.Snapshot{
		Admin: common.HexToAddress("0xAD01"),
		Auctions: []core.Auction{
			{
				ID:            0,
				Seller:        common.HexToAddress("0xAD01"),
				Collection:    common.HexToAddress("0xC011"),
				TokenID:       big.NewInt(7),
				StartingPrice: big.NewInt(100),
				Duration:      3600,
				StartTime:     1_700_000_000,
				HighestBid:    new(big.Int).Lsh(big.NewInt(1), 200),
				HighestBidder: common.HexToAddress("0xB0B"),
				Ended:         true,
			},
		},
		PriceFeeds: []core.FeedRegistration{
			{Asset: core.NativeAsset, Feed: common.HexToAddress("0xFEED")},
		},
	}
}

func TestEncodeDecodeSnapshot(t *testing.T) {
	data, err := EncodeSnapshot(testSnapshot(), 1_700_000_500)
	assert.NoError(t, err)

	s, clock, err := DecodeSnapshot(data)
	assert.NoError(t, err)
	check.Equal(t, uint64(1_700_000_500), clock)
	check.Equal(t, common.HexToAddress("0xAD01"), s.Admin)
	assert.Equal(t, 1, len(s.Auctions))

	a := s.Auctions[0]
	check.Equal(t, "7", a.TokenID.String())
	check.Equal(t, new(big.Int).Lsh(big.NewInt(1), 200).String(), a.HighestBid.String())
	check.Equal(t, common.HexToAddress("0xB0B"), a.HighestBidder)
	check.Equal(t, core.NativeAsset, a.SettlementAsset)
	check.True(t, a.Ended)
	check.Equal(t, uint64(3600), a.Duration)

	assert.Equal(t, 1, len(s.PriceFeeds))
	check.Equal(t, common.HexToAddress("0xFEED"), s.PriceFeeds[0].Feed)
}

func TestEncodeSnapshot_Deterministic(t *testing.T) {
	a, err := EncodeSnapshot(testSnapshot(), 1)
	assert.NoError(t, err)
	b, err := EncodeSnapshot(testSnapshot(), 1)
	assert.NoError(t, err)
	check.Equal(t, a, b)
}

func TestDecodeSnapshot_IgnoresAppendedFields(t *testing.T) {
	future := map[int]any{
		1:  uint(1),
		2:  common.HexToAddress("0xAD01").Bytes(),
		3:  []any{},
		4:  []any{},
		99: "added by a later release",
	}
	data, err := cbor.Marshal(future)
	assert.NoError(t, err)

	s, _, err := DecodeSnapshot(data)
	check.NoError(t, err)
	check.Equal(t, common.HexToAddress("0xAD01"), s.Admin)
	check.Equal(t, 0, len(s.Auctions))
}

func TestDecodeSnapshot_RejectsUnknownVersion(t *testing.T) {
	data, err := cbor.Marshal(map[int]any{1: uint(SnapshotVersion + 1)})
	assert.NoError(t, err)
	_, _, err = DecodeSnapshot(data)
	check.Error(t, err)

	_, _, err = DecodeSnapshot([]byte{0xff, 0x00})
	check.Error(t, err)
}
