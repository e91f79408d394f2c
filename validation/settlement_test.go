package validation

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/nftescrow/core"
	enclaveapi "github.com/cloudx-io/nftescrow/enclaveapi"
)

func hasDetail(result *SettlementValidationResult, substr string) bool {
	for _, d := range result.ValidationDetails {
		if strings.Contains(d, substr) {
			return true
		}
	}
	return false
}

func TestValidateSettlementAttestation_Valid(t *testing.T) {
	ca := newTestCA(t)
	receipt := signAttestation(t, ca, testReceipt("n0nce"))

	result, err := ValidateSettlementAttestation(validInput(ca, receipt))
	assert.NoError(t, err)
	check.True(t, result.PCRsValid)
	check.True(t, result.CertificateValid)
	check.True(t, result.SignatureValid)
	check.True(t, result.ReceiptPresent)
	check.True(t, result.HashValid)
	check.True(t, result.OutcomeValid)
	check.True(t, result.IsValid())
	check.True(t, hasDetail(result, "Matched PCR set: #1 (commit: abc123)"))
}

func TestValidateSettlementAttestation_OptionalFieldsSkipped(t *testing.T) {
	ca := newTestCA(t)
	input := validInput(ca, signAttestation(t, ca, testReceipt("n0nce")))
	input.Seller = ""
	input.Asset = ""
	input.Collection = ""
	input.TokenID = ""

	result, err := ValidateSettlementAttestation(input)
	assert.NoError(t, err)
	check.True(t, result.IsValid())
}

func TestValidateSettlementAttestation_NoBids(t *testing.T) {
	ca := newTestCA(t)
	nonce := "empty"
	tokenID := big.NewInt(7)
	receipt := &enclaveapi.SettlementReceipt{
		AuctionID:      3,
		Seller:         testSeller.Hex(),
		Winner:         core.NoBidder.Hex(),
		Asset:          core.NativeAsset.Hex(),
		Amount:         "0",
		Collection:     testCollection.Hex(),
		TokenID:        "7",
		SettlementHash: core.ComputeSettlementHash(3, testSeller, core.NoBidder, core.NativeAsset, testCollection, tokenID, new(big.Int), nonce),
		Nonce:          nonce,
	}
	input := validInput(ca, signAttestation(t, ca, receipt))
	input.Winner = ""
	input.Amount = ""
	input.Asset = ""

	result, err := ValidateSettlementAttestation(input)
	assert.NoError(t, err)
	check.True(t, result.IsValid())
	check.True(t, hasDetail(result, "ended without bids"))

	// expecting a winner fails against an empty auction
	input.Winner = testWinner.Hex()
	result, err = ValidateSettlementAttestation(input)
	assert.NoError(t, err)
	check.False(t, result.OutcomeValid)
}

func TestValidateSettlementAttestation_OutcomeMismatch(t *testing.T) {
	ca := newTestCA(t)
	receipt := signAttestation(t, ca, testReceipt("n0nce"))

	tests := []struct {
		name   string
		modify func(*SettlementValidationInput)
		detail string
	}{
		{"auction id", func(in *SettlementValidationInput) { in.AuctionID = 4 }, "Auction id mismatch"},
		{"winner", func(in *SettlementValidationInput) { in.Winner = testSeller.Hex() }, "Winner mismatch"},
		{"no winner expected", func(in *SettlementValidationInput) { in.Winner = "" }, "expected no winner"},
		{"amount", func(in *SettlementValidationInput) { in.Amount = "1.49" }, "Amount mismatch: expected 1.49, receipt has 1.5"},
		{"seller", func(in *SettlementValidationInput) { in.Seller = testWinner.Hex() }, "Seller mismatch"},
		{"asset", func(in *SettlementValidationInput) { in.Asset = core.NativeAsset.Hex() }, "Asset mismatch"},
		{"token id", func(in *SettlementValidationInput) { in.TokenID = "8" }, "Token id mismatch"},
		{"bad expected amount", func(in *SettlementValidationInput) { in.Amount = "one" }, "Invalid expected amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput(ca, receipt)
			tt.modify(input)

			result, err := ValidateSettlementAttestation(input)
			assert.NoError(t, err)
			check.True(t, result.SignatureValid)
			check.True(t, result.HashValid)
			check.False(t, result.OutcomeValid)
			check.False(t, result.IsValid())
			check.True(t, hasDetail(result, tt.detail))
		})
	}
}

func TestValidateSettlementAttestation_TamperedReceipt(t *testing.T) {
	ca := newTestCA(t)
	r := testReceipt("n0nce")
	r.Amount = "1" // hash still commits to 1.5
	input := validInput(ca, signAttestation(t, ca, r))
	input.Amount = "0.000000000000000001"

	result, err := ValidateSettlementAttestation(input)
	assert.NoError(t, err)
	check.True(t, result.SignatureValid)
	check.False(t, result.HashValid)
	check.True(t, result.OutcomeValid)
	check.False(t, result.IsValid())
	check.True(t, hasDetail(result, "Settlement hash mismatch"))
}

func TestValidateSettlementAttestation_MissingNonce(t *testing.T) {
	ca := newTestCA(t)
	r := testReceipt("n0nce")
	r.Nonce = ""

	result, err := ValidateSettlementAttestation(validInput(ca, signAttestation(t, ca, r)))
	assert.NoError(t, err)
	check.False(t, result.HashValid)
	check.True(t, hasDetail(result, "Settlement nonce missing"))
}

func TestValidateSettlementAttestation_MissingReceipt(t *testing.T) {
	ca := newTestCA(t)

	result, err := ValidateSettlementAttestation(validInput(ca, signAttestation(t, ca, nil)))
	assert.NoError(t, err)
	check.True(t, result.SignatureValid)
	check.False(t, result.ReceiptPresent)
	check.False(t, result.IsValid())
}

func TestValidateSettlementAttestation_UnknownPCRs(t *testing.T) {
	ca := newTestCA(t)
	input := validInput(ca, signAttestation(t, ca, testReceipt("n0nce")))
	input.KnownPCRs = testPCRSets()[:1]

	result, err := ValidateSettlementAttestation(input)
	assert.NoError(t, err)
	check.False(t, result.PCRsValid)
	check.True(t, result.HashValid)
	check.False(t, result.IsValid())
	check.True(t, hasDetail(result, "PCR0: "+testPCR0+" (no match)"))
}

func TestValidateSettlementAttestation_UntrustedChain(t *testing.T) {
	ca := newTestCA(t)
	other := newTestCA(t)
	input := validInput(ca, signAttestation(t, ca, testReceipt("n0nce")))
	input.roots = other.pool()

	result, err := ValidateSettlementAttestation(input)
	assert.NoError(t, err)
	check.False(t, result.CertificateValid)
	check.True(t, result.SignatureValid)
	check.False(t, result.IsValid())
}

func TestValidateSettlementAttestation_NitroRootRejectsTestChain(t *testing.T) {
	ca := newTestCA(t)
	input := validInput(ca, signAttestation(t, ca, testReceipt("n0nce")))
	input.roots = nil

	result, err := ValidateSettlementAttestation(input)
	assert.NoError(t, err)
	check.False(t, result.CertificateValid)
}

func TestValidateSettlementAttestation_BadSignature(t *testing.T) {
	ca := newTestCA(t)
	signed := signAttestation(t, ca, testReceipt("n0nce"))
	raw, err := signed.Decode()
	assert.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	result, err := ValidateSettlementAttestation(validInput(ca, raw.EncodeBase64()))
	assert.NoError(t, err)
	check.True(t, result.CertificateValid)
	check.False(t, result.SignatureValid)
	check.False(t, result.IsValid())
}

func TestValidateSettlementAttestation_MalformedInput(t *testing.T) {
	_, err := ValidateSettlementAttestation(&SettlementValidationInput{AttestationCOSE: "not base64!"})
	check.Error(t, err)

	_, err = ValidateSettlementAttestation(&SettlementValidationInput{AttestationCOSE: enclaveapi.AttestationCOSE("junk").EncodeBase64()})
	check.Error(t, err)
}

func TestLoadPCRsFromFile(t *testing.T) {
	sets, err := LoadPCRsFromFile(DefaultPCRConfigPath())
	assert.NoError(t, err)
	assert.True(t, len(sets) > 0)
	for _, s := range sets {
		check.Equal(t, 96, len(s.PCR0))
		check.Equal(t, 96, len(s.PCR1))
		check.Equal(t, 96, len(s.PCR2))
	}

	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.json")
	assert.NoError(t, os.WriteFile(empty, []byte(`{"pcr_sets":[]}`), 0o600))
	_, err = LoadPCRsFromFile(empty)
	check.Error(t, err)

	_, err = LoadPCRsFromFile(filepath.Join(dir, "missing.json"))
	check.Error(t, err)

	short := filepath.Join(dir, "short.json")
	assert.NoError(t, os.WriteFile(short, []byte(`{"pcr_sets":[{"pcr0":"00","pcr1":"00","pcr2":"00"}]}`), 0o600))
	_, err = LoadPCRsFromFile(short)
	check.Error(t, err)
}

func TestValidatePCRs(t *testing.T) {
	pcrs := enclaveapi.PCRs{ImageFileHash: testPCR0, KernelHash: testPCR1, ApplicationHash: testPCR2}
	ok, idx := ValidatePCRs(pcrs, testPCRSets())
	check.True(t, ok)
	check.Equal(t, 1, idx)

	pcrs.KernelHash = "00"
	ok, idx = ValidatePCRs(pcrs, testPCRSets())
	check.False(t, ok)
	check.Equal(t, -1, idx)
}
