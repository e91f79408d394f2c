package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/nftescrow/enclaveapi"
	"github.com/cloudx-io/nftescrow/enclaveapi/parsing"
)

// MockEnclaveHandle implements the Attest method for testing
type MockEnclaveHandle struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)
}

func (m *MockEnclaveHandle) Attest(options enclave.AttestationOptions) ([]byte, error) {
	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}
	return nil, fmt.Errorf("mock not configured")
}

// mustDecodeHex is a helper function to decode hex strings to actual hash bytes for testing
func mustDecodeHex(t *testing.T, hexStr string) []byte {
	t.Helper()
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		panic(fmt.Sprintf("invalid hex string: %s", hexStr))
	}
	return bytes
}

// CreateMockEnclave creates a mock enclave handle for testing with realistic attestation data
func CreateMockEnclave(t *testing.T) *MockEnclaveHandle {
	t.Helper()
	return &MockEnclaveHandle{
		AttestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			nestedDoc := map[string]any{
				"module_id": "test-enclave-12345",
				"digest":    "SHA384",
				"timestamp": uint64(1234567890000),
				"pcrs": map[uint64][]byte{
					0: mustDecodeHex(t, "3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57"),
					1: mustDecodeHex(t, "4b4d5b3661b3efc12920900c80e126e4ce783c522de6c02a2a5bf7af3a2b9327b86776f188e4be1c1c404a129dbda493"),
					2: mustDecodeHex(t, "2bdd28c1d85bb3872da3617a29a6bfeb50c65750c995f92e7dac6b5f2c4c72e0f9976bdee62a0b25864d10dffb535e11"),
					3: mustDecodeHex(t, "12a333ab2d5a07bcca664f08190faae4594bb354e6ed710fa9c0d52c269a0f5eb6d9031cb821500171850778aee86c17"),
					4: mustDecodeHex(t, "f88f75c5b8234dcad266767d156ebeff821ce572ed63ecf744e0f23f838a40974927fae0cb0ee9905e306ac3c1e0e777"),
				},
				"certificate": []byte("test-certificate-data"),
				"cabundle":    [][]byte{[]byte("test-ca-cert")},
				"public_key":  []byte("test-public-key-data"),
				"user_data":   options.UserData,
				"nonce":       options.Nonce,
			}

			nestedBytes, _ := cbor.Marshal(nestedDoc)

			// AWS Nitro 4-element array format: [header, metadata, nested_doc, signature]
			result := []any{
				[]byte{0x01, 0x02, 0x03},
				map[string]any{},
				nestedBytes,
				[]byte{0x04, 0x05, 0x06},
			}

			return cbor.Marshal(result)
		},
	}
}

// parseSettlementFromCOSE parses a settlement attestation or fails the test.
func parseSettlementFromCOSE(t *testing.T, coseBytes enclaveapi.AttestationCOSE) *enclaveapi.SettlementAttestationDoc {
	t.Helper()
	doc, err := parsing.ParseSettlementAttestation(coseBytes)
	if err != nil {
		t.Fatalf("Failed to parse attestation: %v", err)
	}
	return doc
}

// Test accounts. Addresses are fixed so expected hashes stay readable.
const (
	testAdmin  = "0x00000000000000000000000000000000000000a1"
	testEscrow = "0x00000000000000000000000000000000000000e5"
	testAlice  = "0x00000000000000000000000000000000000a11ce"
	testBob    = "0x0000000000000000000000000000000000000b0b"
	testCarol  = "0x00000000000000000000000000000000000ca201"

	testUSDC       = "0x000000000000000000000000000000000000c0de"
	testPunks      = "0x000000000000000000000000000000000000babe"
	testNativeFeed = "0x0000000000000000000000000000000000feed01"
	testUSDCFeed   = "0x0000000000000000000000000000000000feed02"

	testStart uint64 = 1_700_000_000
)

// testGenesis seeds an admin-owned NFT, native and USDC balances for
// Alice and Bob, and feeds pricing native at 2000 and USDC at 1.
func testGenesis() Genesis {
	return Genesis{
		Admin:       testAdmin,
		Escrow:      testEscrow,
		MaxPriceAge: 3600,
		Native: NativeSpec{
			Feed: &FeedSpec{Address: testNativeFeed, Price: "2000"},
			Balances: []BalanceSpec{
				{Account: testAlice, Amount: "10"},
				{Account: testBob, Amount: "10"},
			},
		},
		Tokens: []TokenSpec{{
			Symbol:   "USDC",
			Address:  testUSDC,
			Decimals: 6,
			Feed:     &FeedSpec{Address: testUSDCFeed, Price: "1"},
			Balances: []BalanceSpec{
				{Account: testAlice, Amount: "50000"},
				{Account: testCarol, Amount: "50000"},
			},
			Allowances: []BalanceSpec{
				{Account: testAlice, Amount: "50000"},
				{Account: testCarol, Amount: "50000"},
			},
		}},
		Collections: []CollectionSpec{{
			Name:     "Punks",
			Address:  testPunks,
			Tokens:   []MintSpec{{Owner: testAdmin, TokenID: "7"}, {Owner: testAdmin, TokenID: "8"}},
			Approved: []string{testAdmin},
		}},
	}
}

// recordingSink keeps every published batch.
type recordingSink struct {
	mu      sync.Mutex
	batches [][]enclaveapi.EventView
}

func (s *recordingSink) Publish(_ context.Context, evs []enclaveapi.EventView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, evs)
	return nil
}

func (s *recordingSink) all() []enclaveapi.EventView {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []enclaveapi.EventView
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

type testEnclave struct {
	handler *Handler
	clock   *Clock
	sink    *recordingSink
	now     *time.Time
}

// newTestEnclave builds a handler over testGenesis with a dev clock frozen at testStart.
func newTestEnclave(t *testing.T, attester EnclaveAttester) *testEnclave {
	t.Helper()
	now := time.Unix(int64(testStart), 0)
	clock := NewClock(func() time.Time { return now }, true)
	sink := &recordingSink{}
	h, err := NewHandler(testGenesis(), clock, attester, sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &testEnclave{handler: h, clock: clock, sink: sink, now: &now}
}

// do sends req through the handler the way the server would and decodes the response.
func (e *testEnclave) do(t *testing.T, req any) enclaveapi.Response {
	t.Helper()
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	out, err := json.Marshal(e.handler.Handle(context.Background(), raw))
	if err != nil {
		t.Fatalf("failed to marshal response: %v", err)
	}
	var resp enclaveapi.Response
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return resp
}

func tx(caller string, value string) enclaveapi.TxFields {
	return enclaveapi.TxFields{Caller: caller, Value: value}
}
