package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Mint credits native currency to addr, as a genesis allocation would.
func (l *Ledger) Mint(addr common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	bal := amountOf(l.native, addr)
	l.setAmount(l.native, addr, bal.Add(bal, amount))
	return nil
}

// BalanceOf returns the native balance of addr.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	return amountOf(l.native, addr)
}

func (l *Ledger) transferNative(from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroRecipient
	}
	snap := l.Snapshot()
	if err := l.move(l.native, from, to, amount); err != nil {
		return err
	}
	if h := l.hooks[to]; h != nil && h.Native != nil {
		if err := h.Native(from, new(big.Int).Set(amount)); err != nil {
			return l.refused(snap, to, err)
		}
	}
	return nil
}
