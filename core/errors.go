package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized     = errors.New("caller is not the admin")
	ErrInvalidDuration  = errors.New("duration must be greater than 10s")
	ErrInvalidPrice     = errors.New("starting price must be greater than 0")
	ErrNotFound         = errors.New("auction not found")
	ErrEnded            = errors.New("auction has ended")
	ErrNotExpired       = errors.New("auction has not ended")
	ErrAmountMismatch   = errors.New("attached value does not match bid amount")
	ErrBidTooLow        = errors.New("bid too low")
	ErrNoPriceFeed      = errors.New("no price feed for asset")
	ErrTransferRejected = errors.New("transfer rejected")
	ErrInvalidAmount    = errors.New("amount must be positive and fit in 256 bits")
	ErrBadPrice         = errors.New("price feed reported a non-positive price")
	ErrStalePrice       = errors.New("price feed reading is stale")
)

// errorCodes are the stable identifiers sent over the wire. The first match
// wins, so a collaborator refusal reports transfer_rejected whatever error
// the collaborator returned.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrTransferRejected, "transfer_rejected"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidDuration, "invalid_duration"},
	{ErrInvalidPrice, "invalid_price"},
	{ErrNotFound, "not_found"},
	{ErrEnded, "ended"},
	{ErrNotExpired, "not_expired"},
	{ErrAmountMismatch, "amount_mismatch"},
	{ErrBidTooLow, "bid_too_low"},
	{ErrNoPriceFeed, "no_price_feed"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrBadPrice, "bad_price"},
	{ErrStalePrice, "stale_price"},
}

// ErrorCode maps an engine error to its wire code. Unknown errors map to "internal".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}

// ErrorForCode is the inverse of ErrorCode, used by clients decoding responses.
func ErrorForCode(code string) (error, bool) {
	for _, ec := range errorCodes {
		if ec.code == code {
			return ec.err, true
		}
	}
	return nil, false
}

func rejected(action string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransferRejected, action, err)
}
