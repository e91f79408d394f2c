package validation

import (
	"crypto/x509"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cloudx-io/nftescrow/core"
	enclaveapi "github.com/cloudx-io/nftescrow/enclaveapi"
	"github.com/cloudx-io/nftescrow/enclaveapi/parsing"
)

// SettlementValidationInput contains all inputs needed for receipt validation.
// Expected fields left empty are not checked, except Winner: an empty winner
// expects an auction that ended without bids.
type SettlementValidationInput struct {
	AttestationCOSE enclaveapi.AttestationCOSEBase64 // receipt from the end_auction response
	AuctionID       uint64
	Winner          string
	Amount          string // whole units, as on the wire
	Seller          string
	Asset           string
	Collection      string
	TokenID         string
	KnownPCRs       []PCRSet // nil loads DefaultPCRConfigPath()

	roots *x509.CertPool // nil uses the AWS Nitro root
}

// ValidateSettlementAttestation validates an attested settlement receipt and verifies:
// - The attestation came from a known enclave image signed by AWS Nitro
// - The settlement hash commits to the receipt contents
// - The receipt describes the expected auction outcome
//
// Returns:
//   - SettlementValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input, missing config)
func ValidateSettlementAttestation(input *SettlementValidationInput) (*SettlementValidationResult, error) {
	coseBytes, err := input.AttestationCOSE.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode COSE bytes: %w", err)
	}
	attestation, err := parsing.ParseSettlementAttestation(coseBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settlement attestation: %w", err)
	}

	knownPCRs := input.KnownPCRs
	if knownPCRs == nil {
		knownPCRs, err = LoadPCRsFromFile(DefaultPCRConfigPath())
		if err != nil {
			return nil, fmt.Errorf("failed to load PCR configuration: %w", err)
		}
	}
	roots := input.roots
	if roots == nil {
		roots, err = NitroRoots()
		if err != nil {
			return nil, err
		}
	}

	result := &SettlementValidationResult{
		BaseValidationResult: *validateCommonAttestation(coseBytes, attestation.AttestationDoc, knownPCRs, roots),
	}

	if attestation.UserData == nil {
		result.ValidationDetails = append(result.ValidationDetails, "Settlement receipt missing from attestation")
		return result, nil
	}
	result.ReceiptPresent = true

	result.HashValid = validateSettlementHash(attestation.UserData, result)
	result.OutcomeValid = validateOutcome(input, attestation.UserData, result)

	return result, nil
}

// receiptFields is a settlement receipt with its fields parsed.
type receiptFields struct {
	seller, winner, asset, collection common.Address
	tokenID, amount                   *big.Int
}

func parseReceipt(r *enclaveapi.SettlementReceipt) (*receiptFields, error) {
	var f receiptFields
	var err error
	for _, a := range []struct {
		name string
		in   string
		out  *common.Address
	}{
		{"seller", r.Seller, &f.seller},
		{"winner", r.Winner, &f.winner},
		{"asset", r.Asset, &f.asset},
		{"collection", r.Collection, &f.collection},
	} {
		if *a.out, err = enclaveapi.ParseAddress(a.in); err != nil {
			return nil, fmt.Errorf("receipt %s: %w", a.name, err)
		}
	}
	if f.tokenID, err = enclaveapi.ParseTokenID(r.TokenID); err != nil {
		return nil, fmt.Errorf("receipt token id: %w", err)
	}
	amount, ok := new(big.Int).SetString(r.Amount, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("receipt amount %q is not a base-unit integer", r.Amount)
	}
	f.amount = amount
	return &f, nil
}

func validateSettlementHash(receipt *enclaveapi.SettlementReceipt, result *SettlementValidationResult) bool {
	if receipt.Nonce == "" {
		result.ValidationDetails = append(result.ValidationDetails, "Settlement nonce missing from receipt")
		return false
	}
	f, err := parseReceipt(receipt)
	if err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Malformed receipt: %v", err))
		return false
	}

	computed := core.ComputeSettlementHash(receipt.AuctionID, f.seller, f.winner, f.asset, f.collection, f.tokenID, f.amount, receipt.Nonce)
	if computed == receipt.SettlementHash {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Settlement hash validation passed: %s", computed))
		return true
	}
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Settlement hash mismatch: computed %s, receipt has %s", computed, receipt.SettlementHash))
	return false
}

func validateOutcome(input *SettlementValidationInput, receipt *enclaveapi.SettlementReceipt, result *SettlementValidationResult) bool {
	fail := func(format string, args ...any) bool {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf(format, args...))
		return false
	}

	if receipt.AuctionID != input.AuctionID {
		return fail("Auction id mismatch: expected %d, receipt has %d", input.AuctionID, receipt.AuctionID)
	}
	f, err := parseReceipt(receipt)
	if err != nil {
		return fail("Malformed receipt: %v", err)
	}

	expectedWinner, err := enclaveapi.ParseAddress(input.Winner)
	if err != nil {
		return fail("Invalid expected winner: %v", err)
	}
	expectedAmount, err := enclaveapi.ParseAmount(input.Amount)
	if err != nil {
		return fail("Invalid expected amount: %v", err)
	}

	if f.winner != expectedWinner {
		if expectedWinner == core.NoBidder {
			return fail("Winner mismatch: expected no winner, receipt has %s", receipt.Winner)
		}
		return fail("Winner mismatch: expected %s, receipt has %s", expectedWinner.Hex(), receipt.Winner)
	}
	if f.amount.Cmp(expectedAmount) != 0 {
		return fail("Amount mismatch: expected %s, receipt has %s", enclaveapi.FormatAmount(expectedAmount), enclaveapi.FormatAmount(f.amount))
	}

	for _, opt := range []struct {
		name     string
		expected string
		actual   common.Address
	}{
		{"Seller", input.Seller, f.seller},
		{"Asset", input.Asset, f.asset},
		{"Collection", input.Collection, f.collection},
	} {
		if opt.expected == "" {
			continue
		}
		want, err := enclaveapi.ParseAddress(opt.expected)
		if err != nil {
			return fail("Invalid expected %s: %v", opt.name, err)
		}
		if want != opt.actual {
			return fail("%s mismatch: expected %s, receipt has %s", opt.name, want.Hex(), opt.actual.Hex())
		}
	}
	if input.TokenID != "" {
		want, err := enclaveapi.ParseTokenID(input.TokenID)
		if err != nil {
			return fail("Invalid expected token id: %v", err)
		}
		if want.Cmp(f.tokenID) != 0 {
			return fail("Token id mismatch: expected %s, receipt has %s", want, f.tokenID)
		}
	}

	if expectedWinner == core.NoBidder {
		result.ValidationDetails = append(result.ValidationDetails, "Outcome validation passed: auction ended without bids")
	} else {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Outcome validation passed: %s won with %s", receipt.Winner, enclaveapi.FormatAmount(f.amount)))
	}
	return true
}
