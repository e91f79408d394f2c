package core

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/peterldowns/testy/check"
)

var (
	hashSeller     = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	hashWinner     = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	hashCollection = common.HexToAddress("0x00000000000000000000000000000000000000C3")
)

func TestComputeSettlementHash(t *testing.T) {
	hash := ComputeSettlementHash(7, hashSeller, hashWinner, NativeAsset, hashCollection, big.NewInt(1), big.NewInt(2500), "nonce_1")

	check.Equal(t, 64, len(hash))
	for _, c := range hash {
		check.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'))
	}

	expectedData := "7|0x00000000000000000000000000000000000000a1|0x00000000000000000000000000000000000000b2|" +
		"0x0000000000000000000000000000000000000000|0x00000000000000000000000000000000000000c3|1|2500|nonce_1"
	check.Equal(t, fmt.Sprintf("%x", sha256.Sum256([]byte(expectedData))), hash)

	// deterministic
	check.Equal(t, hash, ComputeSettlementHash(7, hashSeller, hashWinner, NativeAsset, hashCollection, big.NewInt(1), big.NewInt(2500), "nonce_1"))
}

func TestComputeSettlementHash_FieldsAreBound(t *testing.T) {
	base := ComputeSettlementHash(7, hashSeller, hashWinner, NativeAsset, hashCollection, big.NewInt(1), big.NewInt(2500), "n")

	check.NotEqual(t, base, ComputeSettlementHash(8, hashSeller, hashWinner, NativeAsset, hashCollection, big.NewInt(1), big.NewInt(2500), "n"))
	check.NotEqual(t, base, ComputeSettlementHash(7, hashWinner, hashSeller, NativeAsset, hashCollection, big.NewInt(1), big.NewInt(2500), "n"))
	check.NotEqual(t, base, ComputeSettlementHash(7, hashSeller, hashWinner, hashCollection, hashCollection, big.NewInt(1), big.NewInt(2500), "n"))
	check.NotEqual(t, base, ComputeSettlementHash(7, hashSeller, hashWinner, NativeAsset, hashCollection, big.NewInt(2), big.NewInt(2500), "n"))
	check.NotEqual(t, base, ComputeSettlementHash(7, hashSeller, hashWinner, NativeAsset, hashCollection, big.NewInt(1), big.NewInt(2501), "n"))
	check.NotEqual(t, base, ComputeSettlementHash(7, hashSeller, hashWinner, NativeAsset, hashCollection, big.NewInt(1), big.NewInt(2500), "m"))
}

func TestComputeSettlementHash_NilIntegersHashAsZero(t *testing.T) {
	check.Equal(t,
		ComputeSettlementHash(0, hashSeller, NoBidder, NativeAsset, hashCollection, big.NewInt(0), big.NewInt(0), "n"),
		ComputeSettlementHash(0, hashSeller, NoBidder, NativeAsset, hashCollection, nil, nil, "n"),
	)
}
