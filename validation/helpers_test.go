package validation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/nftescrow/core"
	enclaveapi "github.com/cloudx-io/nftescrow/enclaveapi"
)

var (
	testAttestedAt = time.UnixMilli(1_700_000_000_000).UTC()

	testSeller     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testWinner     = common.HexToAddress("0x00000000000000000000000000000000000b0b00")
	testUSDC       = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	testCollection = common.HexToAddress("0x000000000000000000000000000000000000babe")

	testPCR0 = "3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57"
	testPCR1 = "4b4d5b3661b3efc12920900c80e126e4ce783c522de6c02a2a5bf7af3a2b9327b86776f188e4be1c1c404a129dbda493"
	testPCR2 = "2bdd28c1d85bb3872da3617a29a6bfeb50c65750c995f92e7dac6b5f2c4c72e0f9976bdee62a0b25864d10dffb535e11"
)

func testPCRSets() []PCRSet {
	return []PCRSet{
		{PCR0: "00", PCR1: "00", PCR2: "00", CommitHash: "old"},
		{PCR0: testPCR0, PCR1: testPCR1, PCR2: testPCR2, CommitHash: "abc123"},
	}
}

// testCA is a P-384 root and a leaf it issued, standing in for the Nitro
// certificate chain.
type testCA struct {
	root    *x509.Certificate
	rootDER []byte
	leaf    *ecdsa.PrivateKey
	leafDER []byte
}

func (ca *testCA) pool() *x509.CertPool {
	p := x509.NewCertPool()
	p.AddCert(ca.root)
	return p
}

func newTestCA(t *testing.T) *testCA {
	t.Helper()
	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test.nitro-enclaves"},
		NotBefore:             testAttestedAt.Add(-365 * 24 * time.Hour),
		NotAfter:              testAttestedAt.Add(365 * 24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	assert.NoError(t, err)
	root, err := x509.ParseCertificate(rootDER)
	assert.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "i-0abc-enc0def"},
		NotBefore:    testAttestedAt.Add(-time.Hour),
		NotAfter:     testAttestedAt.Add(3 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, root, &leafKey.PublicKey, rootKey)
	assert.NoError(t, err)

	return &testCA{root: root, rootDER: rootDER, leaf: leafKey, leafDER: leafDER}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	assert.NoError(t, err)
	return b
}

func testReceipt(nonce string) *enclaveapi.SettlementReceipt {
	tokenID := big.NewInt(7)
	amount := new(big.Int).Mul(big.NewInt(15), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)) // 1.5
	return &enclaveapi.SettlementReceipt{
		AuctionID:      3,
		Seller:         testSeller.Hex(),
		Winner:         testWinner.Hex(),
		Asset:          testUSDC.Hex(),
		Amount:         amount.String(),
		Collection:     testCollection.Hex(),
		TokenID:        tokenID.String(),
		SettlementHash: core.ComputeSettlementHash(3, testSeller, testWinner, testUSDC, testCollection, tokenID, amount, nonce),
		Nonce:          nonce,
		Timestamp:      testAttestedAt,
	}
}

// signAttestation builds an NSM-shaped COSE_Sign1 attestation over receipt,
// signed by the CA's leaf key. A nil receipt omits user data.
func signAttestation(t *testing.T, ca *testCA, receipt *enclaveapi.SettlementReceipt) enclaveapi.AttestationCOSEBase64 {
	t.Helper()
	var userData []byte
	if receipt != nil {
		var err error
		userData, err = json.Marshal(receipt)
		assert.NoError(t, err)
	}

	doc := map[string]any{
		"module_id": "i-0abc-enc0def",
		"digest":    "SHA384",
		"timestamp": uint64(testAttestedAt.UnixMilli()),
		"pcrs": map[uint64][]byte{
			0: mustHex(t, testPCR0),
			1: mustHex(t, testPCR1),
			2: mustHex(t, testPCR2),
		},
		"certificate": ca.leafDER,
		"cabundle":    [][]byte{ca.rootDER},
		"public_key":  []byte(nil),
		"user_data":   userData,
		"nonce":       []byte("attestation-nonce"),
	}
	payload, err := cbor.Marshal(doc)
	assert.NoError(t, err)
	protected, err := cbor.Marshal(map[int]int{1: -35}) // alg: ES384
	assert.NoError(t, err)

	msg := &sign1{Protected: protected, Payload: payload}
	tbs, err := msg.toBeSigned()
	assert.NoError(t, err)
	signer, err := cose.NewSigner(cose.AlgorithmES384, ca.leaf)
	assert.NoError(t, err)
	sig, err := signer.Sign(rand.Reader, tbs)
	assert.NoError(t, err)

	raw, err := cbor.Marshal([]any{protected, map[int]any{}, payload, sig})
	assert.NoError(t, err)
	return enclaveapi.AttestationCOSE(raw).EncodeBase64()
}

// validInput expects exactly what testReceipt describes.
func validInput(ca *testCA, receipt enclaveapi.AttestationCOSEBase64) *SettlementValidationInput {
	return &SettlementValidationInput{
		AttestationCOSE: receipt,
		AuctionID:       3,
		Winner:          testWinner.Hex(),
		Amount:          "1.5",
		Seller:          testSeller.Hex(),
		Asset:           testUSDC.Hex(),
		Collection:      testCollection.Hex(),
		TokenID:         "7",
		KnownPCRs:       testPCRSets(),
		roots:           ca.pool(),
	}
}
