// Package ledger is a deterministic in-memory ledger holding native currency,
// fungible tokens and NFT collections. It stands in for the on-chain
// collaborators of the settlement engine.
//
// A Ledger is not safe for concurrent use. Callers apply transactions in a
// single serial order; receiver hooks run on the caller's goroutine and may
// re-enter whatever invoked the transfer.
package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// NativeAsset is the pseudo-address of the chain's native currency.
var NativeAsset = common.Address{}

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrUnknownAsset          = errors.New("unknown asset")
	ErrUnknownCollection     = errors.New("unknown collection")
	ErrNonexistentToken      = errors.New("nonexistent token")
	ErrTokenExists           = errors.New("token already minted")
	ErrNotOwner              = errors.New("from is not the token owner")
	ErrNotApproved           = errors.New("operator is not owner or approved")
	ErrNegativeAmount        = errors.New("negative amount")
	ErrZeroRecipient         = errors.New("transfer to the zero address")
)

// Hooks lets an account observe incoming transfers, like a contract's
// receive functions. A non-nil error refuses the transfer.
type Hooks struct {
	Native func(from common.Address, amount *big.Int) error
	Token  func(asset, from common.Address, amount *big.Int) error
	NFT    func(operator, from, collection common.Address, tokenID *big.Int) error
}

type Ledger struct {
	deployer    common.Address
	nonce       uint64
	native      map[common.Address]*big.Int
	tokens      map[common.Address]*token
	collections map[common.Address]*collection
	hooks       map[common.Address]*Hooks
	journal     []func()
}

// New creates an empty ledger. deployer seeds the addresses handed out by
// DeployToken and DeployCollection.
func New(deployer common.Address) *Ledger {
	return &Ledger{
		deployer:    deployer,
		native:      make(map[common.Address]*big.Int),
		tokens:      make(map[common.Address]*token),
		collections: make(map[common.Address]*collection),
		hooks:       make(map[common.Address]*Hooks),
	}
}

// SetHooks installs receive hooks for addr. Passing nil removes them.
func (l *Ledger) SetHooks(addr common.Address, h *Hooks) {
	if h == nil {
		delete(l.hooks, addr)
		return
	}
	l.hooks[addr] = h
}

func (l *Ledger) nextAddress() common.Address {
	for {
		addr := crypto.CreateAddress(l.deployer, l.nonce)
		l.nonce++
		_, isToken := l.tokens[addr]
		_, isCollection := l.collections[addr]
		if !isToken && !isCollection {
			return addr
		}
	}
}

// Snapshot returns an identifier for the current state.
func (l *Ledger) Snapshot() int {
	return len(l.journal)
}

// RevertToSnapshot undoes every change made after id was taken.
func (l *Ledger) RevertToSnapshot(id int) {
	if id < 0 || id > len(l.journal) {
		panic(fmt.Sprintf("ledger: invalid snapshot id %d (journal length %d)", id, len(l.journal)))
	}
	for i := len(l.journal) - 1; i >= id; i-- {
		l.journal[i]()
	}
	l.journal = l.journal[:id]
}

// Commit discards the undo log. Snapshots taken earlier become invalid.
func (l *Ledger) Commit() {
	l.journal = l.journal[:0]
}

// setAmount writes m[addr] = v and journals the previous value.
func (l *Ledger) setAmount(m map[common.Address]*big.Int, addr common.Address, v *big.Int) {
	prev, existed := m[addr]
	l.journal = append(l.journal, func() {
		if existed {
			m[addr] = prev
		} else {
			delete(m, addr)
		}
	})
	m[addr] = v
}

func amountOf(m map[common.Address]*big.Int, addr common.Address) *big.Int {
	if v, ok := m[addr]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// move debits from and credits to within one balance table.
func (l *Ledger) move(m map[common.Address]*big.Int, from, to common.Address, amount *big.Int) error {
	bal := amountOf(m, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from.Hex(), bal, amount)
	}
	l.setAmount(m, from, bal.Sub(bal, amount))
	dst := amountOf(m, to)
	l.setAmount(m, to, dst.Add(dst, amount))
	return nil
}

// refused reverts to snap and wraps a hook refusal.
func (l *Ledger) refused(snap int, to common.Address, err error) error {
	l.RevertToSnapshot(snap)
	return fmt.Errorf("recipient %s refused transfer: %w", to.Hex(), err)
}
