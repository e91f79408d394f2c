package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudx-io/nftescrow/core"
	"github.com/cloudx-io/nftescrow/enclaveapi"
	"github.com/cloudx-io/nftescrow/events"
	"github.com/cloudx-io/nftescrow/oracle"
)

// codeBadRequest is reported for requests that never reached the engine.
const codeBadRequest = "bad_request"

// Handler applies requests to the chain one at a time. Connections are
// served concurrently; mu is the sequencer that puts every engine and
// ledger access into a single serial order.
type Handler struct {
	mu       sync.Mutex
	chain    *Chain
	clock    *Clock
	attester EnclaveAttester
	sink     events.Sink
	logger   *slog.Logger

	seq     uint64
	pending []enclaveapi.EventView
}

// NewHandler builds the chain described by g. attester may be nil, in which
// case settlements succeed without a receipt.
func NewHandler(g Genesis, clock *Clock, attester EnclaveAttester, sink events.Sink, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		clock:    clock,
		attester: attester,
		sink:     sink,
		logger:   logger,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	chain, err := BuildChain(g, clock.Now(), core.SinkFunc(h.collect), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build genesis chain: %w", err)
	}
	h.chain = chain
	h.flush(context.Background())
	return h, nil
}

// collect runs inside an engine operation, with mu held.
func (h *Handler) collect(evs []core.Event) {
	for _, ev := range evs {
		h.seq++
		h.pending = append(h.pending, enclaveapi.EventFromCore(ev, h.seq))
	}
}

func (h *Handler) flush(ctx context.Context) []enclaveapi.EventView {
	evs := h.pending
	h.pending = nil
	if len(evs) == 0 || h.sink == nil {
		return evs
	}
	if err := h.sink.Publish(ctx, evs); err != nil {
		h.logger.Error("failed to publish events", "events", len(evs), "error", err)
	}
	return evs
}

// Handle decodes one request and returns the value to encode as the response.
func (h *Handler) Handle(ctx context.Context, raw []byte) any {
	start := time.Now()

	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		resp := failure(codeBadRequest, fmt.Errorf("failed to decode request: %w", err))
		resp.Type = "error"
		return resp
	}

	var resp enclaveapi.Response
	switch base.Type {
	case enclaveapi.TypePing:
		return h.ping()
	case enclaveapi.TypeCreate:
		resp = h.createAuction(ctx, raw)
	case enclaveapi.TypeBid:
		resp = h.bid(ctx, raw)
	case enclaveapi.TypeEnd:
		resp = h.endAuction(ctx, raw)
	case enclaveapi.TypeSetPriceFeed:
		resp = h.setPriceFeed(ctx, raw)
	case enclaveapi.TypeGetAuction:
		resp = h.getAuction(raw)
	case enclaveapi.TypeGetPrice:
		resp = h.getPrice(raw)
	case enclaveapi.TypeGetBalance:
		resp = h.getBalance(raw)
	case enclaveapi.TypeSetFeedPrice:
		resp = h.setFeedPrice(raw)
	case enclaveapi.TypeAdvanceTime:
		resp = h.advanceTime(raw)
	case enclaveapi.TypeExport:
		resp = h.exportSnapshot()
	default:
		resp = failure(codeBadRequest, fmt.Errorf("unknown request type: %s", base.Type))
	}

	resp.Type = base.Type
	resp.ProcessingTime = time.Since(start).Milliseconds()
	if !resp.Success {
		h.logger.Debug("request rejected", "type", base.Type, "code", resp.ErrorCode, "error", resp.Message)
	}
	return resp
}

func failure(code string, err error) enclaveapi.Response {
	return enclaveapi.Response{ErrorCode: code, Message: err.Error()}
}

func engineFailure(err error) enclaveapi.Response {
	return failure(core.ErrorCode(err), err)
}

func decode[T any](raw []byte) (T, error) {
	var req T
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("failed to decode request: %w", err)
	}
	return req, nil
}

func (h *Handler) txContext(f enclaveapi.TxFields) (core.TxContext, error) {
	caller, err := enclaveapi.ParseAddress(f.Caller)
	if err != nil {
		return core.TxContext{}, fmt.Errorf("caller: %w", err)
	}
	value, err := enclaveapi.ParseAmount(f.Value)
	if err != nil {
		return core.TxContext{}, fmt.Errorf("value: %w", err)
	}
	if value.Sign() < 0 {
		return core.TxContext{}, fmt.Errorf("value must not be negative")
	}
	at, err := h.clock.Resolve(f.Time)
	if err != nil {
		return core.TxContext{}, err
	}
	return core.TxContext{Caller: caller, Value: value, Time: at}, nil
}

// apply runs op as one transaction. On success the events it committed are
// published and returned.
func (h *Handler) apply(ctx context.Context, f enclaveapi.TxFields, op func(tx core.TxContext) error) enclaveapi.Response {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.txContext(f)
	if err != nil {
		return failure(codeBadRequest, err)
	}
	err = op(tx)
	h.chain.Ledger.Commit()
	if err != nil {
		return engineFailure(err)
	}
	return enclaveapi.Response{
		Success: true,
		Message: "ok",
		Events:  h.flush(ctx),
		Time:    tx.Time,
	}
}

func (h *Handler) ping() enclaveapi.PingResponse {
	h.mu.Lock()
	defer h.mu.Unlock()
	return enclaveapi.PingResponse{
		Type:      "pong",
		Message:   "TEE server is healthy",
		Timestamp: time.Now(),
		Auctions:  h.chain.Engine.NextAuctionID(),
	}
}

func (h *Handler) createAuction(ctx context.Context, raw []byte) enclaveapi.Response {
	req, err := decode[enclaveapi.CreateAuctionRequest](raw)
	if err != nil {
		return failure(codeBadRequest, err)
	}
	collection, err := enclaveapi.ParseAddress(req.Collection)
	if err != nil {
		return failure(codeBadRequest, fmt.Errorf("collection: %w", err))
	}
	startingPrice, err := enclaveapi.ParseAmount(req.StartingPrice)
	if err != nil {
		return failure(codeBadRequest, fmt.Errorf("starting price: %w", err))
	}
	tokenID, err := enclaveapi.ParseTokenID(req.TokenID)
	if err != nil {
		return failure(codeBadRequest, err)
	}

	var view enclaveapi.AuctionView
	var id uint64
	resp := h.apply(ctx, req.TxFields, func(tx core.TxContext) error {
		id, err = h.chain.Engine.CreateAuction(tx, req.Duration, collection, startingPrice, tokenID)
		if err != nil {
			return err
		}
		a, err := h.chain.Engine.Auction(id)
		if err != nil {
			return err
		}
		view = enclaveapi.AuctionFromCore(a)
		return nil
	})
	if resp.Success {
		resp.AuctionID = &id
		resp.Auction = &view
	}
	return resp
}

func (h *Handler) bid(ctx context.Context, raw []byte) enclaveapi.Response {
	req, err := decode[enclaveapi.BidRequest](raw)
	if err != nil {
		return failure(codeBadRequest, err)
	}
	amount, err := enclaveapi.ParseAmount(req.Amount)
	if err != nil {
		return failure(codeBadRequest, fmt.Errorf("amount: %w", err))
	}
	asset, err := enclaveapi.ParseAddress(req.Asset)
	if err != nil {
		return failure(codeBadRequest, fmt.Errorf("asset: %w", err))
	}

	var view enclaveapi.AuctionView
	resp := h.apply(ctx, req.TxFields, func(tx core.TxContext) error {
		if err := h.chain.Engine.Bid(tx, req.AuctionID, amount, asset); err != nil {
			return err
		}
		a, err := h.chain.Engine.Auction(req.AuctionID)
		if err != nil {
			return err
		}
		view = enclaveapi.AuctionFromCore(a)
		return nil
	})
	if resp.Success {
		resp.AuctionID = &req.AuctionID
		resp.Auction = &view
	}
	return resp
}

func (h *Handler) endAuction(ctx context.Context, raw []byte) enclaveapi.Response {
	req, err := decode[enclaveapi.EndAuctionRequest](raw)
	if err != nil {
		return failure(codeBadRequest, err)
	}

	var settled core.Auction
	resp := h.apply(ctx, req.TxFields, func(tx core.TxContext) error {
		if err := h.chain.Engine.EndAuction(tx, req.AuctionID); err != nil {
			return err
		}
		settled, err = h.chain.Engine.Auction(req.AuctionID)
		return err
	})
	if !resp.Success {
		return resp
	}

	view := enclaveapi.AuctionFromCore(settled)
	resp.AuctionID = &req.AuctionID
	resp.Auction = &view

	// The settlement is committed whether or not attestation succeeds.
	if h.attester == nil {
		resp.Message = "settled without receipt: no attester"
		return resp
	}
	cose, receipt, err := GenerateSettlementProof(h.attester, settled, time.Now())
	if err != nil {
		h.logger.Error("failed to attest settlement", "auction_id", req.AuctionID, "error", err)
		resp.Message = fmt.Sprintf("settled without receipt: %v", err)
		return resp
	}
	resp.Receipt = cose.EncodeBase64()
	if resp.ReceiptGzip, err = cose.CompressGzip(); err != nil {
		h.logger.Warn("failed to compress receipt", "auction_id", req.AuctionID, "error", err)
	}
	h.logger.Info("settlement attested", "auction_id", req.AuctionID, "settlement_hash", receipt.SettlementHash, "bytes", len(cose))
	return resp
}

func (h *Handler) setPriceFeed(ctx context.Context, raw []byte) enclaveapi.Response {
	req, err := decode[enclaveapi.SetPriceFeedRequest](raw)
	if err != nil {
		return failure(codeBadRequest, err)
	}
	asset, err := enclaveapi.ParseAddress(req.Asset)
	if err != nil {
		return failure(codeBadRequest, fmt.Errorf("asset: %w", err))
	}
	feed, err := enclaveapi.ParseAddress(req.Feed)
	if err != nil {
		return failure(codeBadRequest, fmt.Errorf("feed: %w", err))
	}
	return h.apply(ctx, req.TxFields, func(tx core.TxContext) error {
		return h.chain.Engine.SetPriceFeed(tx, asset, feed)
	})
}

func (h *Handler) getAuction(raw []byte) enclaveapi.Response {
	req, err := decode[enclaveapi.GetAuctionRequest](raw)
	if err != nil {
		return failure(codeBadRequest, err)
	}

	h.mu.Lock()
	a, err := h.chain.Engine.Auction(req.AuctionID)
	h.mu.Unlock()
	if err != nil {
		return engineFailure(err)
	}
	view := enclaveapi.AuctionFromCore(a)
	return enclaveapi.Response{Success: true, Message: "ok", AuctionID: &req.AuctionID, Auction: &view}
}

func priceView(asset, feedAddr string, feed *oracle.Feed) (*enclaveapi.PriceView, error) {
	rd, err := feed.LatestRoundData()
	if err != nil {
		return nil, err
	}
	return &enclaveapi.PriceView{
		Asset:     asset,
		Feed:      feedAddr,
		RoundID:   rd.RoundID,
		Answer:    rd.Answer.String(),
		Quote:     oracle.Quote(rd.Answer, feed.Decimals()).String(),
		Decimals:  feed.Decimals(),
		UpdatedAt: rd.UpdatedAt,
	}, nil
}

func (h *Handler) getPrice(raw []byte) enclaveapi.Response {
	req, err := decode[enclaveapi.GetPriceRequest](raw)
	if err != nil {
		return failure(codeBadRequest, err)
	}
	asset, err := enclaveapi.ParseAddress(req.Asset)
	if err != nil {
		return failure(codeBadRequest, fmt.Errorf("asset: %w", err))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	feedAddr, ok := h.chain.Engine.PriceFeed(asset)
	if !ok {
		return engineFailure(fmt.Errorf("asset %s: %w", asset.Hex(), core.ErrNoPriceFeed))
	}
	feed, ok := h.chain.Feeds.Lookup(feedAddr)
	if !ok {
		return engineFailure(fmt.Errorf("feed %s: %w", feedAddr.Hex(), core.ErrNoPriceFeed))
	}
	view, err := priceView(asset.Hex(), feedAddr.Hex(), feed)
	if err != nil {
		return engineFailure(fmt.Errorf("%w: %w", core.ErrBadPrice, err))
	}
	return enclaveapi.Response{Success: true, Message: "ok", Price: view}
}

func (h *Handler) getBalance(raw []byte) enclaveapi.Response {
	req, err := decode[enclaveapi.GetBalanceRequest](raw)
	if err != nil {
		return failure(codeBadRequest, err)
	}
	account, err := enclaveapi.ParseAddress(req.Account)
	if err != nil {
		return failure(codeBadRequest, fmt.Errorf("account: %w", err))
	}
	asset, err := enclaveapi.ParseAddress(req.Asset)
	if err != nil {
		return failure(codeBadRequest, fmt.Errorf("asset: %w", err))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	balance := h.chain.Ledger.BalanceOf(account)
	if asset != core.NativeAsset {
		if balance, err = h.chain.Ledger.TokenBalance(asset, account); err != nil {
			return failure(codeBadRequest, err)
		}
	}
	return enclaveapi.Response{Success: true, Message: "ok", Balance: enclaveapi.FormatAmount(balance)}
}

// setFeedPrice lets the admin act as oracle operator on test networks.
func (h *Handler) setFeedPrice(raw []byte) enclaveapi.Response {
	req, err := decode[enclaveapi.SetFeedPriceRequest](raw)
	if err != nil {
		return failure(codeBadRequest, err)
	}
	feedAddr, err := enclaveapi.ParseAddress(req.Feed)
	if err != nil {
		return failure(codeBadRequest, fmt.Errorf("feed: %w", err))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.txContext(req.TxFields)
	if err != nil {
		return failure(codeBadRequest, err)
	}
	if tx.Caller != h.chain.Engine.Admin() {
		return engineFailure(core.ErrUnauthorized)
	}
	feed, ok := h.chain.Feeds.Lookup(feedAddr)
	if !ok {
		return engineFailure(fmt.Errorf("feed %s: %w", feedAddr.Hex(), core.ErrNoPriceFeed))
	}
	answer, err := enclaveapi.ParseUnits(req.Price, int32(feed.Decimals()))
	if err != nil {
		return failure(codeBadRequest, fmt.Errorf("price: %w", err))
	}
	feed.SetPrice(answer, tx.Time)

	view, err := priceView("", feedAddr.Hex(), feed)
	if err != nil {
		return engineFailure(err)
	}
	h.logger.Info("feed price set", "feed", feedAddr.Hex(), "round_id", view.RoundID, "quote", view.Quote)
	return enclaveapi.Response{Success: true, Message: "ok", Price: view, Time: tx.Time}
}

func (h *Handler) advanceTime(raw []byte) enclaveapi.Response {
	req, err := decode[enclaveapi.AdvanceTimeRequest](raw)
	if err != nil {
		return failure(codeBadRequest, err)
	}
	now, err := h.clock.Advance(req.Seconds)
	if err != nil {
		return failure(codeBadRequest, err)
	}
	return enclaveapi.Response{Success: true, Message: "ok", Time: now}
}

func (h *Handler) exportSnapshot() enclaveapi.Response {
	h.mu.Lock()
	snap := h.chain.Engine.Export()
	h.mu.Unlock()

	now := h.clock.Now()
	data, err := enclaveapi.EncodeSnapshot(snap, now)
	if err != nil {
		return failure(core.ErrorCode(err), err)
	}
	return enclaveapi.Response{
		Success:  true,
		Message:  "ok",
		Snapshot: base64.StdEncoding.EncodeToString(data),
		Time:     now,
	}
}
