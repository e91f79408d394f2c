package core

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cloudx-io/nftescrow/oracle"
)

// Bid places a bid of amount units of asset on an open auction. Native bids
// must attach exactly amount as tx.Value; token bids attach nothing and are
// pulled through the allowance the bidder granted the engine. The displaced
// leader is refunded in full, in the asset they bid.
func (e *Engine) Bid(tx TxContext, auctionID uint64, amount *big.Int, asset common.Address) error {
	if amount == nil {
		amount = new(big.Int)
	}
	var prevBidder common.Address
	var prevBid *big.Int
	err := e.atomically(func() error {
		a, err := e.lookup(auctionID)
		if err != nil {
			return err
		}
		if !a.Open(tx.Time) {
			return fmt.Errorf("auction %d: %w", auctionID, ErrEnded)
		}
		if err := checkAttachedValue(tx, amount, asset); err != nil {
			return err
		}
		if amount.Sign() <= 0 || !fitsUint256(amount) {
			return ErrInvalidAmount
		}

		price, err := e.price(asset, tx.Time)
		if err != nil {
			return err
		}
		normalized, err := normalize(amount, price)
		if err != nil {
			return err
		}

		if !a.HasBid() {
			if !BidMeetsFloor(amount, a.StartingPrice) {
				return fmt.Errorf("%w: must exceed starting price %s", ErrBidTooLow, a.StartingPrice)
			}
		} else {
			settlementPrice, err := e.price(a.SettlementAsset, tx.Time)
			if err != nil {
				return err
			}
			ok, err := Outbids(normalized, a.HighestBid, settlementPrice)
			if err != nil {
				return err
			}
			if !ok {
				return ErrBidTooLow
			}
		}

		prevBidder, prevBid = a.HighestBidder, new(big.Int).Set(a.HighestBid)
		prevAsset := a.SettlementAsset
		e.update(auctionID, func(a *Auction) {
			a.HighestBid = new(big.Int).Set(amount)
			a.HighestBidder = tx.Caller
			a.SettlementAsset = asset
		})
		// Emitted before any external call so that a bid placed from a refund
		// hook is published after the one it displaces.
		e.emit(Event{
			Kind:      EventBidPlaced,
			AuctionID: auctionID,
			Bidder:    tx.Caller,
			Amount:    new(big.Int).Set(amount),
			Asset:     asset,
			Time:      tx.Time,
		})

		if asset == NativeAsset {
			err = e.assets.Transfer(NativeAsset, tx.Caller, e.self, tx.value())
		} else {
			err = e.assets.TransferFrom(asset, e.self, tx.Caller, e.self, amount)
		}
		if err != nil {
			return rejected("escrow bid", err)
		}

		if prevBidder != NoBidder {
			if err := e.assets.Transfer(prevAsset, e.self, prevBidder, prevBid); err != nil {
				return rejected("refund previous bidder", err)
			}
		}
		return nil
	})
	if err != nil {
		e.log.Debug("bid rejected", "auction_id", auctionID, "bidder", tx.Caller.Hex(), "error", err)
		return err
	}
	e.log.Info("bid placed", "auction_id", auctionID, "bidder", tx.Caller.Hex(), "amount", amount.String(), "asset", asset.Hex(), "refunded", prevBidder.Hex(), "refund", prevBid.String())
	return nil
}

func checkAttachedValue(tx TxContext, amount *big.Int, asset common.Address) error {
	value := tx.value()
	if asset == NativeAsset {
		if value.Cmp(amount) != 0 {
			return fmt.Errorf("%w: attached %s, bid %s", ErrAmountMismatch, value, amount)
		}
		return nil
	}
	if value.Sign() != 0 {
		return fmt.Errorf("%w: token bids must not attach native value", ErrAmountMismatch)
	}
	return nil
}

// price returns a trusted reading of asset's feed at now.
func (e *Engine) price(asset common.Address, now uint64) (*big.Int, error) {
	rd, err := e.readFeed(asset)
	if err != nil {
		return nil, err
	}
	if rd.Answer == nil || rd.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: asset %s", ErrBadPrice, asset.Hex())
	}
	if e.maxPriceAge > 0 && now > rd.UpdatedAt && now-rd.UpdatedAt > e.maxPriceAge {
		return nil, fmt.Errorf("%w: asset %s updated at %d", ErrStalePrice, asset.Hex(), rd.UpdatedAt)
	}
	return rd.Answer, nil
}

func (e *Engine) readFeed(asset common.Address) (oracle.RoundData, error) {
	addr, ok := e.priceFeeds[asset]
	if !ok {
		return oracle.RoundData{}, fmt.Errorf("%w: asset %s", ErrNoPriceFeed, asset.Hex())
	}
	feed, ok := e.feeds.Feed(addr)
	if !ok {
		return oracle.RoundData{}, fmt.Errorf("%w: feed %s not found", ErrNoPriceFeed, addr.Hex())
	}
	rd, err := feed.LatestRoundData()
	if err != nil {
		return oracle.RoundData{}, fmt.Errorf("%w: failed to read feed %s: %w", ErrBadPrice, addr.Hex(), err)
	}
	return rd, nil
}
