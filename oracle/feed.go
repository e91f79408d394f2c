package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
)

const (
	DefaultDecimals    uint8 = 8
	DefaultDescription       = "Mock Price Feed"
	DefaultVersion     uint64 = 1
)

// ErrRoundNotFound is returned for rounds a feed never reported.
var ErrRoundNotFound = errors.New("round not found")

// RoundData is a single price observation.
type RoundData struct {
	RoundID         uint64
	Answer          *big.Int
	StartedAt       uint64
	UpdatedAt       uint64
	AnsweredInRound uint64
}

// PriceFeed is the read-only capability the settlement engine consumes.
type PriceFeed interface {
	LatestRoundData() (RoundData, error)
}

// Feed is an in-memory aggregator. Every SetPrice opens a new round; round ids start at 1.
type Feed struct {
	mu          sync.RWMutex
	decimals    uint8
	description string
	rounds      []RoundData
}

// NewFeed creates a feed whose first round reports answer at time at.
func NewFeed(answer *big.Int, at uint64) *Feed {
	f := &Feed{
		decimals:    DefaultDecimals,
		description: DefaultDescription,
	}
	f.SetPrice(answer, at)
	return f
}

// NewFeedWithDecimals is NewFeed with a non-default precision and description.
func NewFeedWithDecimals(answer *big.Int, at uint64, decimals uint8, description string) *Feed {
	f := &Feed{
		decimals:    decimals,
		description: description,
	}
	f.SetPrice(answer, at)
	return f
}

func (f *Feed) Decimals() uint8 { return f.decimals }

func (f *Feed) Description() string { return f.description }

func (f *Feed) Version() uint64 { return DefaultVersion }

// SetPrice records a new round. Zero and negative answers are stored as reported;
// consumers decide whether to trust them.
func (f *Feed) SetPrice(answer *big.Int, at uint64) RoundData {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := uint64(len(f.rounds)) + 1
	rd := RoundData{
		RoundID:         id,
		Answer:          new(big.Int).Set(answerOrZero(answer)),
		StartedAt:       at,
		UpdatedAt:       at,
		AnsweredInRound: id,
	}
	f.rounds = append(f.rounds, rd)
	return rd.copy()
}

// LatestRoundData returns the most recent round.
func (f *Feed) LatestRoundData() (RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.rounds) == 0 {
		return RoundData{}, ErrRoundNotFound
	}
	return f.rounds[len(f.rounds)-1].copy(), nil
}

// GetRoundData returns a historical round. Unknown rounds are reported as
// ErrRoundNotFound rather than as a zero-valued round.
func (f *Feed) GetRoundData(roundID uint64) (RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if roundID == 0 || roundID > uint64(len(f.rounds)) {
		return RoundData{}, fmt.Errorf("round %d: %w", roundID, ErrRoundNotFound)
	}
	return f.rounds[roundID-1].copy(), nil
}

// LatestQuote returns the latest answer scaled by the feed decimals, e.g. 2000.00000000.
func (f *Feed) LatestQuote() (decimal.Decimal, error) {
	rd, err := f.LatestRoundData()
	if err != nil {
		return decimal.Zero, err
	}
	return Quote(rd.Answer, f.decimals), nil
}

// Quote scales a raw answer by decimals.
func Quote(answer *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(answerOrZero(answer), -int32(decimals))
}

func (rd RoundData) copy() RoundData {
	rd.Answer = new(big.Int).Set(answerOrZero(rd.Answer))
	return rd
}

func answerOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
