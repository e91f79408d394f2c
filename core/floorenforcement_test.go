package core

import (
	"errors"
	"math/big"
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestBidMeetsFloor(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		floor    int64
		expected bool
	}{
		{"above floor", 101, 100, true},
		{"equal to floor", 100, 100, false},
		{"below floor", 99, 100, false},
		{"one unit floor", 2, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check.Equal(t, tt.expected, BidMeetsFloor(big.NewInt(tt.amount), big.NewInt(tt.floor)))
		})
	}
}

func TestOutbids(t *testing.T) {
	// leader bid 150 units at price 2000; challenger values must beat 300000
	ok, err := Outbids(big.NewInt(300000), big.NewInt(150), big.NewInt(2000))
	check.NoError(t, err)
	check.False(t, ok)

	ok, err = Outbids(big.NewInt(300001), big.NewInt(150), big.NewInt(2000))
	check.NoError(t, err)
	check.True(t, ok)
}

func TestOutbids_Overflow(t *testing.T) {
	_, err := Outbids(big.NewInt(1), maxUint256, big.NewInt(2))
	check.True(t, errors.Is(err, ErrInvalidAmount))
}

func TestNormalize(t *testing.T) {
	v, err := normalize(big.NewInt(3), big.NewInt(7))
	check.NoError(t, err)
	check.Equal(t, "21", v.String())

	_, err = normalize(maxUint256, big.NewInt(2))
	check.True(t, errors.Is(err, ErrInvalidAmount))

	v, err = normalize(maxUint256, big.NewInt(1))
	check.NoError(t, err)
	check.Equal(t, maxUint256.String(), v.String())
}

func TestFitsUint256(t *testing.T) {
	check.True(t, fitsUint256(big.NewInt(0)))
	check.True(t, fitsUint256(maxUint256))
	check.False(t, fitsUint256(new(big.Int).Add(maxUint256, big.NewInt(1))))
	check.False(t, fitsUint256(big.NewInt(-1)))
}
