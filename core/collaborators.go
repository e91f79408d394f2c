package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cloudx-io/nftescrow/oracle"
)

// NFTCustody moves NFTs. TransferFrom must fail unless operator is the owner
// or was authorized by from.
type NFTCustody interface {
	OwnerOf(collection common.Address, tokenID *big.Int) (common.Address, error)
	TransferFrom(operator, from, to, collection common.Address, tokenID *big.Int) error
}

// AssetLedger moves fungible balances. NativeAsset selects the native currency.
type AssetLedger interface {
	// TransferFrom draws on an allowance granted by from to operator.
	TransferFrom(asset, operator, from, to common.Address, amount *big.Int) error
	// Transfer moves funds the caller already controls.
	Transfer(asset, from, to common.Address, amount *big.Int) error
}

// FeedDirectory resolves a registered feed address to a readable feed.
type FeedDirectory interface {
	Feed(addr common.Address) (oracle.PriceFeed, bool)
}

// Journal is implemented by ledgers that can undo a failed transaction.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

// Sink receives the events of each committed transaction, in order.
type Sink interface {
	Publish(events []Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(events []Event)

func (f SinkFunc) Publish(events []Event) { f(events) }
