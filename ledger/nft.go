package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type collection struct {
	name      string
	owners    map[string]common.Address
	approvals map[string]common.Address
	operators map[common.Address]map[common.Address]bool
}

func newCollection(name string) *collection {
	return &collection{
		name:      name,
		owners:    make(map[string]common.Address),
		approvals: make(map[string]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
	}
}

func tokenKey(tokenID *big.Int) string {
	return tokenID.String()
}

// DeployCollection creates an NFT collection and returns its address.
func (l *Ledger) DeployCollection(name string) common.Address {
	addr := l.nextAddress()
	l.collections[addr] = newCollection(name)
	return addr
}

// RegisterCollection creates an NFT collection at a fixed address.
func (l *Ledger) RegisterCollection(addr common.Address, name string) error {
	if addr == (common.Address{}) {
		return fmt.Errorf("collection address must not be zero")
	}
	if _, ok := l.collections[addr]; ok {
		return fmt.Errorf("collection %s already registered", addr.Hex())
	}
	if _, ok := l.tokens[addr]; ok {
		return fmt.Errorf("address %s is a token", addr.Hex())
	}
	l.collections[addr] = newCollection(name)
	return nil
}

func (l *Ledger) collection(addr common.Address) (*collection, error) {
	c, ok := l.collections[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, addr.Hex())
	}
	return c, nil
}

// setAddr journals m[key] = v; writing the zero address deletes the key.
func (l *Ledger) setAddr(m map[string]common.Address, key string, v common.Address) {
	prev, existed := m[key]
	l.journal = append(l.journal, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
	if v == (common.Address{}) {
		delete(m, key)
		return
	}
	m[key] = v
}

// MintNFT assigns a fresh token id to owner.
func (l *Ledger) MintNFT(addr, to common.Address, tokenID *big.Int) error {
	if tokenID == nil || tokenID.Sign() < 0 {
		return fmt.Errorf("%w: invalid token id", ErrNonexistentToken)
	}
	if to == (common.Address{}) {
		return ErrZeroRecipient
	}
	c, err := l.collection(addr)
	if err != nil {
		return err
	}
	key := tokenKey(tokenID)
	if _, ok := c.owners[key]; ok {
		return fmt.Errorf("%w: %s", ErrTokenExists, key)
	}
	l.setAddr(c.owners, key, to)
	return nil
}

// OwnerOf returns the current owner of a token.
func (l *Ledger) OwnerOf(addr common.Address, tokenID *big.Int) (common.Address, error) {
	c, err := l.collection(addr)
	if err != nil {
		return common.Address{}, err
	}
	if tokenID == nil {
		return common.Address{}, ErrNonexistentToken
	}
	owner, ok := c.owners[tokenKey(tokenID)]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrNonexistentToken, tokenID)
	}
	return owner, nil
}

// ApproveNFT lets spender move a single token on behalf of owner.
func (l *Ledger) ApproveNFT(addr, owner, spender common.Address, tokenID *big.Int) error {
	current, err := l.OwnerOf(addr, tokenID)
	if err != nil {
		return err
	}
	c := l.collections[addr]
	if current != owner && !c.operators[current][owner] {
		return fmt.Errorf("%w: %s cannot approve token %s", ErrNotApproved, owner.Hex(), tokenID)
	}
	l.setAddr(c.approvals, tokenKey(tokenID), spender)
	return nil
}

// GetApproved returns the single-token approval, zero when unset.
func (l *Ledger) GetApproved(addr common.Address, tokenID *big.Int) (common.Address, error) {
	if _, err := l.OwnerOf(addr, tokenID); err != nil {
		return common.Address{}, err
	}
	return l.collections[addr].approvals[tokenKey(tokenID)], nil
}

// SetApprovalForAll lets operator move every token owner holds in the collection.
func (l *Ledger) SetApprovalForAll(addr, owner, operator common.Address, approved bool) error {
	c, err := l.collection(addr)
	if err != nil {
		return err
	}
	ops, ok := c.operators[owner]
	if !ok {
		ops = make(map[common.Address]bool)
		c.operators[owner] = ops
	}
	prev, existed := ops[operator]
	l.journal = append(l.journal, func() {
		if existed {
			ops[operator] = prev
		} else {
			delete(ops, operator)
		}
	})
	ops[operator] = approved
	return nil
}

func (l *Ledger) transferNFT(operator, from, to, addr common.Address, tokenID *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroRecipient
	}
	owner, err := l.OwnerOf(addr, tokenID)
	if err != nil {
		return err
	}
	c := l.collections[addr]
	key := tokenKey(tokenID)
	if owner != from {
		return fmt.Errorf("%w: token %s is held by %s", ErrNotOwner, key, owner.Hex())
	}
	if operator != from && c.approvals[key] != operator && !c.operators[from][operator] {
		return fmt.Errorf("%w: %s for token %s", ErrNotApproved, operator.Hex(), key)
	}

	snap := l.Snapshot()
	l.setAddr(c.approvals, key, common.Address{})
	l.setAddr(c.owners, key, to)
	if h := l.hooks[to]; h != nil && h.NFT != nil {
		if err := h.NFT(operator, from, addr, new(big.Int).Set(tokenID)); err != nil {
			return l.refused(snap, to, err)
		}
	}
	return nil
}
