package core

import (
	"math/big"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func fitsUint256(v *big.Int) bool {
	return v.Sign() >= 0 && v.Cmp(maxUint256) <= 0
}

// BidMeetsFloor reports whether an opening bid strictly exceeds the starting
// price. Both are raw amounts; the asset of the bid is not considered.
func BidMeetsFloor(amount, startingPrice *big.Int) bool {
	return amount.Cmp(startingPrice) > 0
}

// Outbids reports whether a bid worth normalized strictly exceeds the current
// leader, whose raw amount is revalued at the settlement asset's latest price.
func Outbids(normalized, highestBid, settlementPrice *big.Int) (bool, error) {
	current := new(big.Int).Mul(highestBid, settlementPrice)
	if !fitsUint256(current) {
		return false, ErrInvalidAmount
	}
	return normalized.Cmp(current) > 0, nil
}

// normalize values amount at price, the quantity bids are compared in.
func normalize(amount, price *big.Int) (*big.Int, error) {
	v := new(big.Int).Mul(amount, price)
	if !fitsUint256(v) {
		return nil, ErrInvalidAmount
	}
	return v, nil
}
