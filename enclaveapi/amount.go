package enclaveapi

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AmountDecimals is the precision of every amount on the wire: "1.5" is
// 1.5 * 10^18 base units.
const AmountDecimals int32 = 18

// ParseAmount converts a decimal amount in whole units to base units.
func ParseAmount(s string) (*big.Int, error) {
	return ParseUnits(s, AmountDecimals)
}

// FormatAmount renders base units as a decimal amount in whole units.
func FormatAmount(v *big.Int) string {
	return FormatUnits(v, AmountDecimals)
}

// ParseUnits converts a decimal string to an integer scaled by 10^decimals.
// More fractional digits than decimals is an error, never a rounding.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimal places", s, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders v / 10^decimals without trailing zeros.
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// ParseAddress parses a 0x-prefixed hex address. An empty string is the zero
// address, which stands for the native asset.
func ParseAddress(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// ParseTokenID parses a non-negative base-10 token id.
func ParseTokenID(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid token id %q", s)
	}
	return v, nil
}
