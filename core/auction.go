// Package core is the auction settlement engine: it registers NFT auctions,
// evaluates bids in any priced asset, escrows funds and settles every auction
// exactly once.
//
// An Engine is not safe for concurrent use. Transactions are applied in one
// serial order; collaborators may call back into the engine from the same
// goroutine while an operation is in flight.
package core

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Config wires an Engine to its collaborators.
type Config struct {
	Admin   common.Address
	Address common.Address // account holding escrowed NFTs and funds

	NFTs   NFTCustody
	Assets AssetLedger
	Feeds  FeedDirectory

	// Journal, when set, is snapshotted around every operation so a failed
	// operation leaves no trace in the ledger.
	Journal Journal
	Sink    Sink

	// MaxPriceAge rejects feed readings older than this many seconds. Zero disables the check.
	MaxPriceAge uint64
	Logger      *slog.Logger
}

type Engine struct {
	admin       common.Address
	self        common.Address
	nfts        NFTCustody
	assets      AssetLedger
	feeds       FeedDirectory
	journal     Journal
	sink        Sink
	maxPriceAge uint64
	log         *slog.Logger

	auctions   []*Auction
	priceFeeds map[common.Address]common.Address

	undo    undoLog
	pending []Event
	depth   int
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.NFTs == nil || cfg.Assets == nil || cfg.Feeds == nil {
		return nil, fmt.Errorf("failed to create engine: nft custody, asset ledger and feed directory are required")
	}
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("failed to create engine: escrow address must not be zero")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		admin:       cfg.Admin,
		self:        cfg.Address,
		nfts:        cfg.NFTs,
		assets:      cfg.Assets,
		feeds:       cfg.Feeds,
		journal:     cfg.Journal,
		sink:        cfg.Sink,
		maxPriceAge: cfg.MaxPriceAge,
		log:         logger.With("pkg", "core"),
		priceFeeds:  make(map[common.Address]common.Address),
	}, nil
}

// atomically runs op as one transaction. On error every engine mutation,
// ledger mutation and buffered event made since the call started is
// discarded. Events reach the sink only when the outermost call succeeds.
func (e *Engine) atomically(op func() error) error {
	undoSnap := e.undo.snapshot()
	eventSnap := len(e.pending)
	ledgerSnap := 0
	if e.journal != nil {
		ledgerSnap = e.journal.Snapshot()
	}

	e.depth++
	err := op()
	e.depth--

	if err != nil {
		e.undo.revertTo(undoSnap)
		e.pending = e.pending[:eventSnap]
		if e.journal != nil {
			e.journal.RevertToSnapshot(ledgerSnap)
		}
		return err
	}

	if e.depth == 0 {
		events := e.pending
		e.pending = nil
		e.undo.reset()
		if e.sink != nil && len(events) > 0 {
			e.sink.Publish(events)
		}
	}
	return nil
}

func (e *Engine) appendAuction(a *Auction) {
	n := len(e.auctions)
	e.auctions = append(e.auctions, a)
	e.undo.record(func() { e.auctions = e.auctions[:n] })
}

// update replaces the record with a mutated copy so that readers holding the
// previous pointer, and the undo log, keep the old values.
func (e *Engine) update(id uint64, mutate func(a *Auction)) {
	prev := e.auctions[id]
	next := prev.clone()
	mutate(next)
	e.auctions[id] = next
	e.undo.record(func() { e.auctions[id] = prev })
}

func (e *Engine) lookup(id uint64) (*Auction, error) {
	if id >= uint64(len(e.auctions)) {
		return nil, fmt.Errorf("auction %d: %w", id, ErrNotFound)
	}
	return e.auctions[id], nil
}

// SetPriceFeed registers feed as the price source for asset, replacing any
// previous registration.
func (e *Engine) SetPriceFeed(tx TxContext, asset, feed common.Address) error {
	return e.atomically(func() error {
		if tx.Caller != e.admin {
			return ErrUnauthorized
		}
		if tx.value().Sign() != 0 {
			return ErrAmountMismatch
		}

		prev, had := e.priceFeeds[asset]
		e.priceFeeds[asset] = feed
		e.undo.record(func() {
			if had {
				e.priceFeeds[asset] = prev
			} else {
				delete(e.priceFeeds, asset)
			}
		})

		e.emit(Event{Kind: EventPriceFeedSet, Asset: asset, Feed: feed, Time: tx.Time})
		e.log.Info("price feed set", "asset", asset.Hex(), "feed", feed.Hex())
		return nil
	})
}

func (e *Engine) Admin() common.Address { return e.admin }

// Address is the escrow account of the engine.
func (e *Engine) Address() common.Address { return e.self }

func (e *Engine) NextAuctionID() uint64 { return uint64(len(e.auctions)) }

// Auction returns a copy of the record.
func (e *Engine) Auction(id uint64) (Auction, error) {
	a, err := e.lookup(id)
	if err != nil {
		return Auction{}, err
	}
	return *a.clone(), nil
}

// PriceFeed returns the feed registered for asset.
func (e *Engine) PriceFeed(asset common.Address) (common.Address, bool) {
	feed, ok := e.priceFeeds[asset]
	return feed, ok
}

// LatestPrice returns the latest raw answer of the feed registered for asset.
func (e *Engine) LatestPrice(asset common.Address) (*big.Int, error) {
	rd, err := e.readFeed(asset)
	if err != nil {
		return nil, err
	}
	return rd.Answer, nil
}

// Escrowed reports the funds the engine holds for an auction.
func (e *Engine) Escrowed(id uint64) (*big.Int, common.Address, error) {
	a, err := e.lookup(id)
	if err != nil {
		return nil, common.Address{}, err
	}
	if a.Ended || !a.HasBid() {
		return new(big.Int), a.SettlementAsset, nil
	}
	return new(big.Int).Set(a.HighestBid), a.SettlementAsset, nil
}
