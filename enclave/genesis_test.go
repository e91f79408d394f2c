package main

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/nftescrow/core"
)

func TestLoadGenesis(t *testing.T) {
	g, err := LoadGenesis("testdata/genesis.yaml")
	assert.NoError(t, err)

	check.Equal(t, testAdmin, g.Admin)
	check.Equal(t, uint64(3600), g.MaxPriceAge)
	assert.NotNil(t, g.Native.Feed)
	check.Equal(t, "2000", g.Native.Feed.Price)
	assert.Equal(t, 2, len(g.Tokens))
	check.Equal(t, uint8(6), g.Tokens[0].Decimals)
	check.Equal(t, "1.0001", g.Tokens[0].Feed.Price)
	check.Nil(t, g.Tokens[1].Feed)
	assert.Equal(t, 1, len(g.Collections))
	check.Equal(t, 2, len(g.Collections[0].Tokens))
}

func TestLoadGenesisErrors(t *testing.T) {
	_, err := LoadGenesis(filepath.Join(t.TempDir(), "missing.yaml"))
	check.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	assert.NoError(t, os.WriteFile(path, []byte("admin: [unterminated"), 0o600))
	_, err = LoadGenesis(path)
	check.Error(t, err)
}

func TestBuildChain(t *testing.T) {
	g, err := LoadGenesis("testdata/genesis.yaml")
	assert.NoError(t, err)

	var published []core.Event
	chain, err := BuildChain(g, testStart, core.SinkFunc(func(evs []core.Event) {
		published = append(published, evs...)
	}), nil)
	assert.NoError(t, err)

	admin := common.HexToAddress(testAdmin)
	alice := common.HexToAddress(testAlice)
	escrow := common.HexToAddress(testEscrow)

	check.Equal(t, admin, chain.Engine.Admin())
	check.Equal(t, escrow, chain.Engine.Address())

	usdc, ok := chain.Tokens["USDC"]
	assert.True(t, ok)
	check.NotEqual(t, common.Address{}, usdc)
	check.Equal(t, common.HexToAddress("0x000000000000000000000000000000000000beef"), chain.Tokens["WETH"])

	check.Equal(t, mustAmount(t, "10").String(), chain.Ledger.BalanceOf(alice).String())
	bal, err := chain.Ledger.TokenBalance(usdc, alice)
	assert.NoError(t, err)
	check.Equal(t, mustAmount(t, "2500.5").String(), bal.String())
	allowance, err := chain.Ledger.Allowance(usdc, alice, escrow)
	assert.NoError(t, err)
	check.Equal(t, mustAmount(t, "1000").String(), allowance.String())

	// Feeds are registered for native and USDC but not WETH
	check.Equal(t, 2, len(published))
	for _, ev := range published {
		check.Equal(t, core.EventPriceFeedSet, ev.Kind)
	}
	nativeFeed, ok := chain.Engine.PriceFeed(core.NativeAsset)
	assert.True(t, ok)
	usdcFeed, ok := chain.Engine.PriceFeed(usdc)
	assert.True(t, ok)
	check.NotEqual(t, nativeFeed, usdcFeed)
	_, ok = chain.Engine.PriceFeed(chain.Tokens["WETH"])
	check.False(t, ok)

	price, err := chain.Engine.LatestPrice(usdc)
	assert.NoError(t, err)
	check.Equal(t, "100010000", price.String())

	// Deployed feeds never share an address with ledger contracts
	check.NotEqual(t, usdc, nativeFeed)
	check.NotEqual(t, usdc, usdcFeed)

	// The escrow approval lets the admin auction a minted token
	punks := chain.Collections["Punks"]
	owner, err := chain.Ledger.OwnerOf(punks, big.NewInt(2))
	assert.NoError(t, err)
	check.Equal(t, admin, owner)

	id, err := chain.Engine.CreateAuction(core.TxContext{Caller: admin, Time: testStart}, 60, punks, big.NewInt(1), big.NewInt(2))
	assert.NoError(t, err)
	check.Equal(t, uint64(0), id)
	chain.Ledger.Commit()
}

func TestBuildChainRejectsInvalidGenesis(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *Genesis)
	}{
		{"missing admin", func(g *Genesis) { g.Admin = "" }},
		{"missing escrow", func(g *Genesis) { g.Escrow = "" }},
		{"bad deployer", func(g *Genesis) { g.Deployer = "deployer" }},
		{"bad balance", func(g *Genesis) { g.Native.Balances[0].Amount = "lots" }},
		{"balance without account", func(g *Genesis) { g.Native.Balances[0].Account = "" }},
		{"bad feed price", func(g *Genesis) { g.Native.Feed.Price = "0.000000001" }},
		{"duplicate symbol", func(g *Genesis) { g.Tokens = append(g.Tokens, g.Tokens[0]) }},
		{"token without symbol", func(g *Genesis) { g.Tokens[0].Symbol = "" }},
		{"duplicate mint", func(g *Genesis) {
			g.Collections[0].Tokens = append(g.Collections[0].Tokens, g.Collections[0].Tokens[0])
		}},
		{"feed address reused", func(g *Genesis) { g.Tokens[0].Feed.Address = testNativeFeed }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testGenesis()
			tt.mutate(&g)
			_, err := BuildChain(g, testStart, nil, nil)
			check.Error(t, err)
		})
	}
}
