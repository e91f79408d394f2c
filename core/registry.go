package core

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CreateAuction escrows tokenID of collection and opens an auction for it.
// Only the admin may create auctions; the engine must be authorized to move
// the token on the caller's behalf.
func (e *Engine) CreateAuction(tx TxContext, duration uint64, collection common.Address, startingPrice, tokenID *big.Int) (uint64, error) {
	var id uint64
	err := e.atomically(func() error {
		if tx.Caller != e.admin {
			return ErrUnauthorized
		}
		if duration <= MinDuration || tx.Time+duration < tx.Time {
			return fmt.Errorf("%w: got %d", ErrInvalidDuration, duration)
		}
		if startingPrice == nil || startingPrice.Sign() <= 0 || !fitsUint256(startingPrice) {
			return ErrInvalidPrice
		}
		if tx.value().Sign() != 0 {
			return ErrAmountMismatch
		}

		id = uint64(len(e.auctions))
		a := &Auction{
			ID:            id,
			Seller:        tx.Caller,
			Collection:    collection,
			TokenID:       cloneInt(tokenID),
			StartingPrice: cloneInt(startingPrice),
			Duration:      duration,
			StartTime:     tx.Time,
			HighestBid:    new(big.Int),
			HighestBidder: NoBidder,
		}
		e.appendAuction(a)

		if err := e.nfts.TransferFrom(e.self, tx.Caller, e.self, collection, a.TokenID); err != nil {
			return rejected("escrow nft", err)
		}

		e.emit(Event{
			Kind:       EventAuctionCreated,
			AuctionID:  id,
			Seller:     a.Seller,
			Amount:     cloneInt(a.StartingPrice),
			Collection: collection,
			TokenID:    cloneInt(a.TokenID),
			Time:       tx.Time,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.log.Info("auction created", "auction_id", id, "collection", collection.Hex(), "token_id", tokenID.String(), "deadline", tx.Time+duration)
	return id, nil
}
