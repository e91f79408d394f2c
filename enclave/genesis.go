package main

import (
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"

	"github.com/cloudx-io/nftescrow/core"
	"github.com/cloudx-io/nftescrow/enclaveapi"
	"github.com/cloudx-io/nftescrow/ledger"
	"github.com/cloudx-io/nftescrow/oracle"
)

// Genesis is the initial world the enclave starts from. Amounts are decimal
// strings in whole units (18 decimals); feed prices use the feed's decimals.
type Genesis struct {
	Admin       string           `yaml:"admin"`
	Escrow      string           `yaml:"escrow"`
	Deployer    string           `yaml:"deployer,omitempty"` // defaults to admin
	MaxPriceAge uint64           `yaml:"max_price_age"`
	Native      NativeSpec       `yaml:"native"`
	Tokens      []TokenSpec      `yaml:"tokens,omitempty"`
	Collections []CollectionSpec `yaml:"collections,omitempty"`
}

type NativeSpec struct {
	Feed     *FeedSpec     `yaml:"feed,omitempty"`
	Balances []BalanceSpec `yaml:"balances,omitempty"`
}

type TokenSpec struct {
	Symbol     string        `yaml:"symbol"`
	Address    string        `yaml:"address,omitempty"`
	Decimals   uint8         `yaml:"decimals"`
	Feed       *FeedSpec     `yaml:"feed,omitempty"`
	Balances   []BalanceSpec `yaml:"balances,omitempty"`
	Allowances []BalanceSpec `yaml:"allowances,omitempty"` // granted to the escrow account
}

// FeedSpec deploys a feed and registers it for the enclosing asset.
// Decimals defaults to 8.
type FeedSpec struct {
	Address  string `yaml:"address,omitempty"`
	Price    string `yaml:"price"`
	Decimals uint8  `yaml:"decimals,omitempty"`
}

type BalanceSpec struct {
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

type CollectionSpec struct {
	Name     string     `yaml:"name"`
	Address  string     `yaml:"address,omitempty"`
	Tokens   []MintSpec `yaml:"tokens,omitempty"`
	Approved []string   `yaml:"approved,omitempty"` // owners that approve the escrow account as operator
}

type MintSpec struct {
	Owner   string `yaml:"owner"`
	TokenID string `yaml:"token_id"`
}

// Chain is everything built from a genesis file.
type Chain struct {
	Ledger      *ledger.Ledger
	Feeds       *oracle.Directory
	Engine      *core.Engine
	Tokens      map[string]common.Address
	Collections map[string]common.Address
}

func LoadGenesis(path string) (Genesis, error) {
	var g Genesis
	b, err := os.ReadFile(path)
	if err != nil {
		return g, fmt.Errorf("failed to read genesis: %w", err)
	}
	if err := yaml.Unmarshal(b, &g); err != nil {
		return g, fmt.Errorf("failed to parse genesis %s: %w", path, err)
	}
	return g, nil
}

// feedDeployer derives the account feeds are deployed from, so feed
// addresses never collide with tokens and collections.
func feedDeployer(deployer common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(deployer.Bytes(), []byte("feeds")))
}

// BuildChain replays g at time at. Price-feed registrations go through the
// engine, so their events reach sink like any other.
func BuildChain(g Genesis, at uint64, sink core.Sink, logger *slog.Logger) (*Chain, error) {
	admin, err := enclaveapi.ParseAddress(g.Admin)
	if err != nil || admin == (common.Address{}) {
		return nil, fmt.Errorf("genesis admin: invalid address %q", g.Admin)
	}
	escrow, err := enclaveapi.ParseAddress(g.Escrow)
	if err != nil || escrow == (common.Address{}) {
		return nil, fmt.Errorf("genesis escrow: invalid address %q", g.Escrow)
	}
	deployer := admin
	if g.Deployer != "" {
		if deployer, err = enclaveapi.ParseAddress(g.Deployer); err != nil {
			return nil, fmt.Errorf("genesis deployer: %w", err)
		}
	}

	l := ledger.New(deployer)
	feeds := oracle.NewDirectory(feedDeployer(deployer))
	engine, err := core.NewEngine(core.Config{
		Admin:       admin,
		Address:     escrow,
		NFTs:        l.NFTs(),
		Assets:      l.Assets(),
		Feeds:       feeds,
		Journal:     l,
		Sink:        sink,
		MaxPriceAge: g.MaxPriceAge,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	c := &Chain{
		Ledger:      l,
		Feeds:       feeds,
		Engine:      engine,
		Tokens:      make(map[string]common.Address),
		Collections: make(map[string]common.Address),
	}
	adminTx := core.TxContext{Caller: admin, Time: at}

	for _, b := range g.Native.Balances {
		account, amount, err := parseBalance(b)
		if err != nil {
			return nil, fmt.Errorf("native balance: %w", err)
		}
		if err := l.Mint(account, amount); err != nil {
			return nil, fmt.Errorf("failed to mint native balance for %s: %w", b.Account, err)
		}
	}
	if err := c.registerFeed(adminTx, core.NativeAsset, g.Native.Feed); err != nil {
		return nil, fmt.Errorf("native feed: %w", err)
	}

	for _, t := range g.Tokens {
		if err := c.addToken(t, escrow, adminTx); err != nil {
			return nil, fmt.Errorf("token %s: %w", t.Symbol, err)
		}
	}
	for _, spec := range g.Collections {
		if err := c.addCollection(spec, escrow); err != nil {
			return nil, fmt.Errorf("collection %s: %w", spec.Name, err)
		}
	}

	l.Commit()
	return c, nil
}

func (c *Chain) addToken(t TokenSpec, escrow common.Address, adminTx core.TxContext) error {
	if t.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if _, dup := c.Tokens[t.Symbol]; dup {
		return fmt.Errorf("duplicate symbol")
	}

	addr, err := enclaveapi.ParseAddress(t.Address)
	if err != nil {
		return err
	}
	if addr == (common.Address{}) {
		addr = c.Ledger.DeployToken(t.Symbol, t.Decimals)
	} else if err := c.Ledger.RegisterToken(addr, t.Symbol, t.Decimals); err != nil {
		return err
	}
	c.Tokens[t.Symbol] = addr

	for _, b := range t.Balances {
		account, amount, err := parseBalance(b)
		if err != nil {
			return err
		}
		if err := c.Ledger.MintToken(addr, account, amount); err != nil {
			return fmt.Errorf("failed to mint for %s: %w", b.Account, err)
		}
	}
	for _, a := range t.Allowances {
		owner, amount, err := parseBalance(a)
		if err != nil {
			return err
		}
		if err := c.Ledger.Approve(addr, owner, escrow, amount); err != nil {
			return fmt.Errorf("failed to approve escrow for %s: %w", a.Account, err)
		}
	}
	return c.registerFeed(adminTx, addr, t.Feed)
}

func (c *Chain) addCollection(spec CollectionSpec, escrow common.Address) error {
	addr, err := enclaveapi.ParseAddress(spec.Address)
	if err != nil {
		return err
	}
	if addr == (common.Address{}) {
		addr = c.Ledger.DeployCollection(spec.Name)
	} else if err := c.Ledger.RegisterCollection(addr, spec.Name); err != nil {
		return err
	}
	c.Collections[spec.Name] = addr

	for _, m := range spec.Tokens {
		owner, err := enclaveapi.ParseAddress(m.Owner)
		if err != nil {
			return err
		}
		tokenID, err := enclaveapi.ParseTokenID(m.TokenID)
		if err != nil {
			return err
		}
		if err := c.Ledger.MintNFT(addr, owner, tokenID); err != nil {
			return fmt.Errorf("failed to mint token %s: %w", m.TokenID, err)
		}
	}
	for _, o := range spec.Approved {
		owner, err := enclaveapi.ParseAddress(o)
		if err != nil {
			return err
		}
		if err := c.Ledger.SetApprovalForAll(addr, owner, escrow, true); err != nil {
			return fmt.Errorf("failed to approve escrow for %s: %w", o, err)
		}
	}
	return nil
}

func (c *Chain) registerFeed(adminTx core.TxContext, asset common.Address, spec *FeedSpec) error {
	if spec == nil {
		return nil
	}
	decimals := spec.Decimals
	if decimals == 0 {
		decimals = oracle.DefaultDecimals
	}
	answer, err := enclaveapi.ParseUnits(spec.Price, int32(decimals))
	if err != nil {
		return err
	}
	feed := oracle.NewFeedWithDecimals(answer, adminTx.Time, decimals, oracle.DefaultDescription)

	addr, err := enclaveapi.ParseAddress(spec.Address)
	if err != nil {
		return err
	}
	if addr == (common.Address{}) {
		addr = c.Feeds.Deploy(feed)
	} else if err := c.Feeds.Register(addr, feed); err != nil {
		return err
	}
	return c.Engine.SetPriceFeed(adminTx, asset, addr)
}

func parseBalance(b BalanceSpec) (common.Address, *big.Int, error) {
	account, err := enclaveapi.ParseAddress(b.Account)
	if err != nil {
		return common.Address{}, nil, err
	}
	if account == (common.Address{}) {
		return common.Address{}, nil, fmt.Errorf("account is required")
	}
	amount, err := enclaveapi.ParseAmount(b.Amount)
	if err != nil {
		return common.Address{}, nil, err
	}
	return account, amount, nil
}
