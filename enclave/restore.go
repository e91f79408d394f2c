package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cloudx-io/nftescrow/core"
	"github.com/cloudx-io/nftescrow/enclaveapi"
)

// LoadSnapshot reads a snapshot file holding either the raw CBOR or the
// base64 text returned by export_snapshot.
func LoadSnapshot(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if raw, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(b))); err == nil {
		return raw, nil
	}
	return b, nil
}

// Restore replaces the engine state built from genesis with an exported
// snapshot. The snapshot carries no ledger state, so the genesis must already
// put every open auction's NFT and escrowed bids in the escrow account.
func (h *Handler) Restore(data []byte) error {
	snap, at, err := enclaveapi.DecodeSnapshot(data)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := checkCustody(h.chain, snap); err != nil {
		return fmt.Errorf("snapshot does not match genesis ledger: %w", err)
	}
	if err := h.chain.Engine.Restore(snap); err != nil {
		return err
	}
	h.clock.Resume(at)
	h.logger.Info("resumed from snapshot", "auctions", len(snap.Auctions), "clock", at)
	return nil
}

// checkCustody verifies the ledger holds what the snapshot says is in escrow.
func checkCustody(c *Chain, snap core.Snapshot) error {
	escrow := c.Engine.Address()
	owed := make(map[common.Address]*big.Int)
	for _, a := range snap.Auctions {
		if a.Ended {
			continue
		}
		owner, err := c.Ledger.OwnerOf(a.Collection, a.TokenID)
		if err != nil {
			return fmt.Errorf("auction %d: %w", a.ID, err)
		}
		if owner != escrow {
			return fmt.Errorf("auction %d: token %s held by %s, not escrow", a.ID, a.TokenID, owner.Hex())
		}
		if !a.HasBid() {
			continue
		}
		if owed[a.SettlementAsset] == nil {
			owed[a.SettlementAsset] = new(big.Int)
		}
		owed[a.SettlementAsset].Add(owed[a.SettlementAsset], a.HighestBid)
	}
	for asset, amount := range owed {
		held, err := c.Ledger.TokenBalance(asset, escrow)
		if err != nil {
			return fmt.Errorf("asset %s: %w", asset.Hex(), err)
		}
		if held.Cmp(amount) < 0 {
			return fmt.Errorf("asset %s: escrow holds %s, open bids need %s", asset.Hex(), held, amount)
		}
	}
	return nil
}
