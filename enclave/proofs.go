package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"

	"github.com/cloudx-io/nftescrow/core"
	"github.com/cloudx-io/nftescrow/enclaveapi"
)

// EnclaveAttester interface for dependency injection and testing
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// getEnclaveAttester attempts to get the NSM attester, returns error if not available
func getEnclaveAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// BuildSettlementReceipt describes a finalized auction. The settlement hash
// commits to every field under a fresh nonce. An auction that ended without
// bids has the zero winner and a zero amount.
func BuildSettlementReceipt(a core.Auction, now time.Time) (*enclaveapi.SettlementReceipt, error) {
	if !a.Ended {
		return nil, fmt.Errorf("auction %d is not finalized", a.ID)
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate settlement nonce: %w", err)
	}

	hash := core.ComputeSettlementHash(a.ID, a.Seller, a.HighestBidder, a.SettlementAsset,
		a.Collection, a.TokenID, a.HighestBid, nonce)

	return &enclaveapi.SettlementReceipt{
		AuctionID:      a.ID,
		Seller:         a.Seller.Hex(),
		Winner:         a.HighestBidder.Hex(),
		Asset:          a.SettlementAsset.Hex(),
		Amount:         a.HighestBid.String(),
		Collection:     a.Collection.Hex(),
		TokenID:        a.TokenID.String(),
		SettlementHash: hash,
		Nonce:          nonce,
		Timestamp:      now.UTC(),
	}, nil
}

// GenerateSettlementProof binds the receipt of a finalized auction into an
// NSM attestation document.
func GenerateSettlementProof(attester EnclaveAttester, a core.Auction, now time.Time) (enclaveapi.AttestationCOSE, *enclaveapi.SettlementReceipt, error) {
	if attester == nil {
		return nil, nil, fmt.Errorf("enclave attester is nil")
	}

	receipt, err := BuildSettlementReceipt(a, now)
	if err != nil {
		return nil, nil, err
	}

	userData, err := json.Marshal(receipt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal settlement receipt: %w", err)
	}
	attestationNonce, err := generateNonce()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	attestationCBOR, err := attester.Attest(enclave.AttestationOptions{
		UserData: userData,
		Nonce:    []byte(attestationNonce),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("NSM attestation failed: %w", err)
	}

	return enclaveapi.AttestationCOSE(attestationCBOR), receipt, nil
}

// generateSecureRandomBytes generates cryptographically secure random bytes.
// Inside an enclave crypto/rand draws from the NSM-seeded kernel pool.
func generateSecureRandomBytes(length int) ([]byte, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	return randomBytes, nil
}

func generateNonce() (string, error) {
	randomBytes, err := generateSecureRandomBytes(32) // 256 bits of entropy
	if err != nil {
		return "", fmt.Errorf("failed to generate secure nonce - %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}
