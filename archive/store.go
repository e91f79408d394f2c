// Package archive persists committed auction events to PostgreSQL. Events
// are stored verbatim and folded into per-auction and per-feed tables.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/cloudx-io/nftescrow/core"
	"github.com/cloudx-io/nftescrow/enclaveapi"
)

const schema = `
CREATE TABLE IF NOT EXISTS auction_events (
	id          UUID PRIMARY KEY,
	sequence    BIGINT NOT NULL UNIQUE,
	kind        VARCHAR(32) NOT NULL,
	auction_id  BIGINT NOT NULL,
	block_time  BIGINT NOT NULL,
	payload     JSONB NOT NULL,
	archived_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS auctions (
	id               BIGINT PRIMARY KEY,
	seller           VARCHAR(42) NOT NULL,
	collection       VARCHAR(42) NOT NULL,
	token_id         NUMERIC(78, 0) NOT NULL,
	starting_price   NUMERIC(78, 18) NOT NULL,
	highest_bid      NUMERIC(78, 18) DEFAULT 0,
	highest_bidder   VARCHAR(42),
	settlement_asset VARCHAR(42),
	ended            BOOLEAN DEFAULT FALSE,
	created_at       BIGINT NOT NULL,
	updated_at       BIGINT NOT NULL,
	last_sequence    BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS price_feeds (
	asset         VARCHAR(42) PRIMARY KEY,
	feed          VARCHAR(42) NOT NULL,
	last_sequence BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_auction_events_auction_id ON auction_events(auction_id);
CREATE INDEX IF NOT EXISTS idx_auctions_seller ON auctions(seller);
`

const (
	insertEventQuery = `
		INSERT INTO auction_events (id, sequence, kind, auction_id, block_time, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`
	insertAuctionQuery = `
		INSERT INTO auctions (id, seller, collection, token_id, starting_price, created_at, updated_at, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	updateBidQuery = `
		UPDATE auctions
		SET highest_bid = $2,
		    highest_bidder = $3,
		    settlement_asset = $4,
		    updated_at = $5,
		    last_sequence = $6
		WHERE id = $1 AND last_sequence < $6
	`
	endAuctionQuery = `
		UPDATE auctions
		SET ended = TRUE,
		    highest_bid = $2,
		    highest_bidder = $3,
		    settlement_asset = $4,
		    updated_at = $5,
		    last_sequence = $6
		WHERE id = $1 AND last_sequence < $6
	`
	upsertFeedQuery = `
		INSERT INTO price_feeds (asset, feed, last_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset) DO UPDATE
		SET feed = EXCLUDED.feed, last_sequence = EXCLUDED.last_sequence
		WHERE price_feeds.last_sequence < EXCLUDED.last_sequence
	`
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// txRunner runs fn inside a transaction, committing when fn returns nil.
type txRunner func(ctx context.Context, fn func(execer) error) error

// Store writes events to PostgreSQL.
type Store struct {
	db   *sql.DB
	inTx txRunner
}

// NewPostgresStore opens and pings the database at connStr.
func NewPostgresStore(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db, inTx: sqlTx(db)}, nil
}

func sqlTx(db *sql.DB) txRunner {
	return func(ctx context.Context, fn func(execer) error) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}
}

// InitSchema creates the archive tables.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Apply archives ev and updates the read tables in one transaction. It
// reports false when ev was already archived, in which case nothing changes.
func (s *Store) Apply(ctx context.Context, ev enclaveapi.EventView) (bool, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("failed to marshal event: %w", err)
	}

	inserted := false
	err = s.inTx(ctx, func(db execer) error {
		res, err := db.ExecContext(ctx, insertEventQuery, ev.ID, ev.Sequence, ev.Kind, ev.AuctionID, ev.Time, payload)
		if err != nil {
			return fmt.Errorf("failed to insert event %d: %w", ev.Sequence, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
		inserted = true
		return project(ctx, db, ev)
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// project folds ev into the auctions and price_feeds tables. Updates carry
// the event sequence so an older event never overwrites a newer one.
func project(ctx context.Context, db execer, ev enclaveapi.EventView) error {
	var err error
	switch core.EventKind(ev.Kind) {
	case core.EventAuctionCreated:
		_, err = db.ExecContext(ctx, insertAuctionQuery,
			ev.AuctionID, ev.Seller, ev.Collection, ev.TokenID, ev.Amount, ev.Time, ev.Sequence)
	case core.EventBidPlaced:
		_, err = db.ExecContext(ctx, updateBidQuery,
			ev.AuctionID, ev.Amount, ev.Bidder, ev.Asset, ev.Time, ev.Sequence)
	case core.EventAuctionEnded:
		_, err = db.ExecContext(ctx, endAuctionQuery,
			ev.AuctionID, ev.Amount, nullable(ev.Bidder), nullable(ev.Asset), ev.Time, ev.Sequence)
	case core.EventPriceFeedSet:
		_, err = db.ExecContext(ctx, upsertFeedQuery, ev.Asset, ev.Feed, ev.Sequence)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to project %s event %d: %w", ev.Kind, ev.Sequence, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
