package core

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ComputeSettlementHash computes the hash binding an attested settlement
// receipt to the auction outcome. This is used by both the enclave (to
// generate hashes) and validation (to verify hashes).
//
// Formula: SHA256(auction_id|seller|winner|asset|collection|token_id|amount|nonce)
//
// Addresses are lower-case 0x hex and integers are base-10, so the hash does
// not depend on how a client spelled its inputs.
func ComputeSettlementHash(auctionID uint64, seller, winner, asset, collection common.Address, tokenID, amount *big.Int, nonce string) string {
	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s",
		auctionID,
		lowerHex(seller),
		lowerHex(winner),
		lowerHex(asset),
		lowerHex(collection),
		cloneInt(tokenID).String(),
		cloneInt(amount).String(),
		nonce,
	)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

func lowerHex(addr common.Address) string {
	return fmt.Sprintf("0x%x", addr.Bytes())
}
