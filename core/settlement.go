package core

import (
	"fmt"
)

// EndAuction settles an expired auction. The NFT goes to the winner and the
// escrowed bid to the seller, or the NFT returns to the seller when nobody
// bid. Anyone may call it; it succeeds at most once per auction.
func (e *Engine) EndAuction(tx TxContext, auctionID uint64) error {
	var settled Auction
	err := e.atomically(func() error {
		a, err := e.lookup(auctionID)
		if err != nil {
			return err
		}
		if a.Ended || tx.Time < a.Deadline() {
			return fmt.Errorf("auction %d: %w", auctionID, ErrNotExpired)
		}
		if tx.value().Sign() != 0 {
			return ErrAmountMismatch
		}

		e.update(auctionID, func(a *Auction) { a.Ended = true })
		settled = *e.auctions[auctionID]

		if settled.HasBid() {
			if err := e.nfts.TransferFrom(e.self, e.self, settled.HighestBidder, settled.Collection, settled.TokenID); err != nil {
				return rejected("deliver nft to winner", err)
			}
			if err := e.assets.Transfer(settled.SettlementAsset, e.self, settled.Seller, settled.HighestBid); err != nil {
				return rejected("pay seller", err)
			}
		} else {
			if err := e.nfts.TransferFrom(e.self, e.self, settled.Seller, settled.Collection, settled.TokenID); err != nil {
				return rejected("return nft to seller", err)
			}
		}

		e.emit(Event{
			Kind:       EventAuctionEnded,
			AuctionID:  auctionID,
			Seller:     settled.Seller,
			Bidder:     settled.HighestBidder,
			Amount:     cloneInt(settled.HighestBid),
			Asset:      settled.SettlementAsset,
			Collection: settled.Collection,
			TokenID:    cloneInt(settled.TokenID),
			Time:       tx.Time,
		})
		return nil
	})
	if err != nil {
		e.log.Debug("end auction rejected", "auction_id", auctionID, "error", err)
		return err
	}
	e.log.Info("auction ended", "auction_id", auctionID, "winner", settled.HighestBidder.Hex(), "amount", settled.HighestBid.String())
	return nil
}
