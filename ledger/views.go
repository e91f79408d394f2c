package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Assets exposes the ledger's fungible balances, native currency included,
// through the transfer capability the settlement engine consumes.
type Assets struct{ l *Ledger }

func (l *Ledger) Assets() Assets { return Assets{l: l} }

// TransferFrom moves amount from -> to on behalf of operator. Tokens require
// an allowance unless operator == from; the native asset has no allowances.
func (a Assets) TransferFrom(asset, operator, from, to common.Address, amount *big.Int) error {
	if asset == NativeAsset {
		if operator != from {
			return ErrInsufficientAllowance
		}
		return a.l.transferNative(from, to, amount)
	}
	return a.l.transferTokenFrom(asset, operator, from, to, amount)
}

// Transfer moves amount held by from to to.
func (a Assets) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if asset == NativeAsset {
		return a.l.transferNative(from, to, amount)
	}
	return a.l.transferToken(asset, from, to, amount)
}

// NFTs exposes NFT ownership through the custody capability the settlement
// engine consumes.
type NFTs struct{ l *Ledger }

func (l *Ledger) NFTs() NFTs { return NFTs{l: l} }

func (n NFTs) OwnerOf(collection common.Address, tokenID *big.Int) (common.Address, error) {
	return n.l.OwnerOf(collection, tokenID)
}

// TransferFrom moves a token, requiring operator to be the owner, the
// token's approved address or an approved operator.
func (n NFTs) TransferFrom(operator, from, to, collection common.Address, tokenID *big.Int) error {
	return n.l.transferNFT(operator, from, to, collection, tokenID)
}
