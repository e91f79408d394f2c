package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type token struct {
	symbol     string
	decimals   uint8
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

func newToken(symbol string, decimals uint8) *token {
	return &token{
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// DeployToken creates a fungible token and returns its address.
func (l *Ledger) DeployToken(symbol string, decimals uint8) common.Address {
	addr := l.nextAddress()
	l.tokens[addr] = newToken(symbol, decimals)
	return addr
}

// RegisterToken creates a fungible token at a fixed address.
func (l *Ledger) RegisterToken(addr common.Address, symbol string, decimals uint8) error {
	if addr == NativeAsset {
		return fmt.Errorf("token address must not be zero")
	}
	if _, ok := l.tokens[addr]; ok {
		return fmt.Errorf("token %s already registered", addr.Hex())
	}
	if _, ok := l.collections[addr]; ok {
		return fmt.Errorf("address %s is a collection", addr.Hex())
	}
	l.tokens[addr] = newToken(symbol, decimals)
	return nil
}

func (l *Ledger) token(asset common.Address) (*token, error) {
	t, ok := l.tokens[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	return t, nil
}

// Symbol returns the token symbol, or "NATIVE" for the native asset.
func (l *Ledger) Symbol(asset common.Address) (string, error) {
	if asset == NativeAsset {
		return "NATIVE", nil
	}
	t, err := l.token(asset)
	if err != nil {
		return "", err
	}
	return t.symbol, nil
}

// MintToken credits amount of asset to addr.
func (l *Ledger) MintToken(asset, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	t, err := l.token(asset)
	if err != nil {
		return err
	}
	bal := amountOf(t.balances, to)
	l.setAmount(t.balances, to, bal.Add(bal, amount))
	return nil
}

// TokenBalance returns the balance of addr in asset; the native asset is accepted.
func (l *Ledger) TokenBalance(asset, addr common.Address) (*big.Int, error) {
	if asset == NativeAsset {
		return l.BalanceOf(addr), nil
	}
	t, err := l.token(asset)
	if err != nil {
		return nil, err
	}
	return amountOf(t.balances, addr), nil
}

// Approve sets the allowance spender may draw from owner.
func (l *Ledger) Approve(asset, owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	t, err := l.token(asset)
	if err != nil {
		return err
	}
	allowed, ok := t.allowances[owner]
	if !ok {
		allowed = make(map[common.Address]*big.Int)
		t.allowances[owner] = allowed
	}
	l.setAmount(allowed, spender, new(big.Int).Set(amount))
	return nil
}

// Allowance returns how much spender may still draw from owner.
func (l *Ledger) Allowance(asset, owner, spender common.Address) (*big.Int, error) {
	t, err := l.token(asset)
	if err != nil {
		return nil, err
	}
	allowed, ok := t.allowances[owner]
	if !ok {
		return new(big.Int), nil
	}
	return amountOf(allowed, spender), nil
}

func (l *Ledger) transferToken(asset, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroRecipient
	}
	t, err := l.token(asset)
	if err != nil {
		return err
	}
	snap := l.Snapshot()
	if err := l.move(t.balances, from, to, amount); err != nil {
		return err
	}
	if h := l.hooks[to]; h != nil && h.Token != nil {
		if err := h.Token(asset, from, new(big.Int).Set(amount)); err != nil {
			return l.refused(snap, to, err)
		}
	}
	return nil
}

func (l *Ledger) transferTokenFrom(asset, operator, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	t, err := l.token(asset)
	if err != nil {
		return err
	}
	snap := l.Snapshot()
	if operator != from {
		allowed := t.allowances[from]
		remaining := new(big.Int)
		if allowed != nil {
			remaining = amountOf(allowed, operator)
		}
		if remaining.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s may spend %s of %s, needs %s",
				ErrInsufficientAllowance, operator.Hex(), remaining, from.Hex(), amount)
		}
		if allowed != nil {
			l.setAmount(allowed, operator, remaining.Sub(remaining, amount))
		}
	}
	if err := l.transferToken(asset, from, to, amount); err != nil {
		l.RevertToSnapshot(snap)
		return err
	}
	return nil
}
