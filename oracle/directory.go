package oracle

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Directory resolves feed addresses to feeds, the way a chain resolves a
// contract address to deployed code.
type Directory struct {
	mu       sync.RWMutex
	deployer common.Address
	nonce    uint64
	feeds    map[common.Address]*Feed
}

func NewDirectory(deployer common.Address) *Directory {
	return &Directory{
		deployer: deployer,
		feeds:    make(map[common.Address]*Feed),
	}
}

// Deploy assigns the next deployment address to feed.
func (d *Directory) Deploy(feed *Feed) common.Address {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		addr := crypto.CreateAddress(d.deployer, d.nonce)
		d.nonce++
		if _, taken := d.feeds[addr]; !taken {
			d.feeds[addr] = feed
			return addr
		}
	}
}

// Register places feed at a fixed address, used when replaying a genesis file.
func (d *Directory) Register(addr common.Address, feed *Feed) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if addr == (common.Address{}) {
		return fmt.Errorf("feed address must not be zero")
	}
	if _, taken := d.feeds[addr]; taken {
		return fmt.Errorf("feed address %s already registered", addr.Hex())
	}
	d.feeds[addr] = feed
	return nil
}

// Feed implements the engine's feed lookup.
func (d *Directory) Feed(addr common.Address) (PriceFeed, bool) {
	f, ok := d.Lookup(addr)
	if !ok {
		return nil, false
	}
	return f, true
}

// Lookup returns the concrete feed, for operator actions such as SetPrice.
func (d *Directory) Lookup(addr common.Address) (*Feed, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	f, ok := d.feeds[addr]
	return f, ok
}
