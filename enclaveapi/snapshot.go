package enclaveapi

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/nftescrow/core"
)

// SnapshotVersion is the schema version written by EncodeSnapshot. Fields are
// keyed by integers and only ever appended, so older readers skip new fields.
const SnapshotVersion = 1

type snapshotV1 struct {
	Version    uint            `cbor:"1,keyasint"`
	Admin      []byte          `cbor:"2,keyasint"`
	Auctions   []auctionRecord `cbor:"3,keyasint"`
	PriceFeeds []feedRecord    `cbor:"4,keyasint"`
	Clock      uint64          `cbor:"5,keyasint,omitempty"`
}

type auctionRecord struct {
	ID              uint64 `cbor:"1,keyasint"`
	Seller          []byte `cbor:"2,keyasint"`
	Collection      []byte `cbor:"3,keyasint"`
	TokenID         []byte `cbor:"4,keyasint"`
	StartingPrice   []byte `cbor:"5,keyasint"`
	Duration        uint64 `cbor:"6,keyasint"`
	StartTime       uint64 `cbor:"7,keyasint"`
	HighestBid      []byte `cbor:"8,keyasint"`
	HighestBidder   []byte `cbor:"9,keyasint"`
	SettlementAsset []byte `cbor:"10,keyasint"`
	Ended           bool   `cbor:"11,keyasint"`
}

type feedRecord struct {
	Asset []byte `cbor:"1,keyasint"`
	Feed  []byte `cbor:"2,keyasint"`
}

var snapshotEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeSnapshot serializes engine state and the enclave clock deterministically.
func EncodeSnapshot(s core.Snapshot, clock uint64) ([]byte, error) {
	out := snapshotV1{
		Version:    SnapshotVersion,
		Admin:      s.Admin.Bytes(),
		Auctions:   make([]auctionRecord, 0, len(s.Auctions)),
		PriceFeeds: make([]feedRecord, 0, len(s.PriceFeeds)),
		Clock:      clock,
	}
	for _, a := range s.Auctions {
		out.Auctions = append(out.Auctions, auctionRecord{
			ID:              a.ID,
			Seller:          a.Seller.Bytes(),
			Collection:      a.Collection.Bytes(),
			TokenID:         intBytes(a.TokenID),
			StartingPrice:   intBytes(a.StartingPrice),
			Duration:        a.Duration,
			StartTime:       a.StartTime,
			HighestBid:      intBytes(a.HighestBid),
			HighestBidder:   a.HighestBidder.Bytes(),
			SettlementAsset: a.SettlementAsset.Bytes(),
			Ended:           a.Ended,
		})
	}
	for _, r := range s.PriceFeeds {
		out.PriceFeeds = append(out.PriceFeeds, feedRecord{Asset: r.Asset.Bytes(), Feed: r.Feed.Bytes()})
	}
	data, err := snapshotEncMode.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses data written by EncodeSnapshot of this or an older version.
func DecodeSnapshot(data []byte) (core.Snapshot, uint64, error) {
	var in snapshotV1
	if err := cbor.Unmarshal(data, &in); err != nil {
		return core.Snapshot{}, 0, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if in.Version == 0 || in.Version > SnapshotVersion {
		return core.Snapshot{}, 0, fmt.Errorf("unsupported snapshot version %d", in.Version)
	}

	s := core.Snapshot{
		Admin:      common.BytesToAddress(in.Admin),
		Auctions:   make([]core.Auction, 0, len(in.Auctions)),
		PriceFeeds: make([]core.FeedRegistration, 0, len(in.PriceFeeds)),
	}
	for _, r := range in.Auctions {
		s.Auctions = append(s.Auctions, core.Auction{
			ID:              r.ID,
			Seller:          common.BytesToAddress(r.Seller),
			Collection:      common.BytesToAddress(r.Collection),
			TokenID:         new(big.Int).SetBytes(r.TokenID),
			StartingPrice:   new(big.Int).SetBytes(r.StartingPrice),
			Duration:        r.Duration,
			StartTime:       r.StartTime,
			HighestBid:      new(big.Int).SetBytes(r.HighestBid),
			HighestBidder:   common.BytesToAddress(r.HighestBidder),
			SettlementAsset: common.BytesToAddress(r.SettlementAsset),
			Ended:           r.Ended,
		})
	}
	for _, r := range in.PriceFeeds {
		s.PriceFeeds = append(s.PriceFeeds, core.FeedRegistration{
			Asset: common.BytesToAddress(r.Asset),
			Feed:  common.BytesToAddress(r.Feed),
		})
	}
	return s, in.Clock, nil
}

// intBytes encodes a non-negative integer big-endian; nil encodes as zero.
func intBytes(v *big.Int) []byte {
	if v == nil {
		return nil
	}
	return v.Bytes()
}
