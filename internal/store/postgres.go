package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Emmet-Finance/Bridge-Data/internal/model"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"
)

// Schema creates the registry tables. Amounts are NUMERIC(78,0), wide enough for uint256.
const Schema = `
CREATE TABLE IF NOT EXISTS registry_chains (
	chain_id       NUMERIC(20,0) PRIMARY KEY,
	cctp_claim     NUMERIC(78,0) NOT NULL,
	lp_release     NUMERIC(78,0) NOT NULL,
	mint           NUMERIC(78,0) NOT NULL,
	unlock         NUMERIC(78,0) NOT NULL,
	swap1          NUMERIC(78,0) NOT NULL,
	swap2          NUMERIC(78,0) NOT NULL,
	swap3          NUMERIC(78,0) NOT NULL,
	swap4          NUMERIC(78,0) NOT NULL,
	swap5          NUMERIC(78,0) NOT NULL,
	swap6          NUMERIC(78,0) NOT NULL,
	name           BYTEA NOT NULL,
	token_decimals SMALLINT NOT NULL,
	flags          BYTEA NOT NULL,
	price_feed     BYTEA NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS registry_tokens (
	symbol         TEXT PRIMARY KEY,
	target         BYTEA NOT NULL,
	token_decimals SMALLINT NOT NULL,
	price_decimals SMALLINT NOT NULL,
	price_feed     BYTEA NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS registry_strategies (
	chain_id       NUMERIC(20,0) NOT NULL,
	from_token     TEXT NOT NULL,
	to_token       TEXT NOT NULL,
	foreign_steps  BYTEA NOT NULL,
	incoming_steps BYTEA NOT NULL,
	local_steps    BYTEA NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, from_token, to_token)
);

CREATE TABLE IF NOT EXISTS registry_admin (
	id         SMALLINT PRIMARY KEY CHECK (id = 1),
	admin      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore persists registry state in PostgreSQL
type PostgresStore struct {
	db *sqlx.DB
}

// Connect opens a PostgreSQL connection and applies the schema
func Connect(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute migration: %w", err)
	}

	logrus.Info("Connected to registry database")
	return &PostgresStore{db: db}, nil
}

// InTransaction executes fn within a transaction
func (p *PostgresStore) InTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logrus.Warnf("Rollback failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type chainRow struct {
	ChainID       string `db:"chain_id"`
	CCTPClaim     string `db:"cctp_claim"`
	LPRelease     string `db:"lp_release"`
	Mint          string `db:"mint"`
	Unlock        string `db:"unlock"`
	Swap1         string `db:"swap1"`
	Swap2         string `db:"swap2"`
	Swap3         string `db:"swap3"`
	Swap4         string `db:"swap4"`
	Swap5         string `db:"swap5"`
	Swap6         string `db:"swap6"`
	Name          []byte `db:"name"`
	TokenDecimals int16  `db:"token_decimals"`
	Flags         []byte `db:"flags"`
	PriceFeed     []byte `db:"price_feed"`
}

type tokenRow struct {
	Symbol        string `db:"symbol"`
	Target        []byte `db:"target"`
	TokenDecimals int16  `db:"token_decimals"`
	PriceDecimals int16  `db:"price_decimals"`
	PriceFeed     []byte `db:"price_feed"`
}

type strategyRow struct {
	ChainID   string `db:"chain_id"`
	FromToken string `db:"from_token"`
	ToToken   string `db:"to_token"`
	Foreign   []byte `db:"foreign_steps"`
	Incoming  []byte `db:"incoming_steps"`
	Local     []byte `db:"local_steps"`
}

const upsertChain = `
INSERT INTO registry_chains (chain_id, cctp_claim, lp_release, mint, unlock, swap1, swap2, swap3, swap4, swap5, swap6,
	name, token_decimals, flags, price_feed)
VALUES (:chain_id, :cctp_claim, :lp_release, :mint, :unlock, :swap1, :swap2, :swap3, :swap4, :swap5, :swap6,
	:name, :token_decimals, :flags, :price_feed)
ON CONFLICT (chain_id) DO UPDATE SET
	cctp_claim = EXCLUDED.cctp_claim, lp_release = EXCLUDED.lp_release, mint = EXCLUDED.mint,
	unlock = EXCLUDED.unlock, swap1 = EXCLUDED.swap1, swap2 = EXCLUDED.swap2, swap3 = EXCLUDED.swap3,
	swap4 = EXCLUDED.swap4, swap5 = EXCLUDED.swap5, swap6 = EXCLUDED.swap6, name = EXCLUDED.name,
	token_decimals = EXCLUDED.token_decimals, flags = EXCLUDED.flags, price_feed = EXCLUDED.price_feed,
	updated_at = now()`

const upsertToken = `
INSERT INTO registry_tokens (symbol, target, token_decimals, price_decimals, price_feed)
VALUES (:symbol, :target, :token_decimals, :price_decimals, :price_feed)
ON CONFLICT (symbol) DO UPDATE SET
	target = EXCLUDED.target, token_decimals = EXCLUDED.token_decimals,
	price_decimals = EXCLUDED.price_decimals, price_feed = EXCLUDED.price_feed, updated_at = now()`

const upsertStrategy = `
INSERT INTO registry_strategies (chain_id, from_token, to_token, foreign_steps, incoming_steps, local_steps)
VALUES (:chain_id, :from_token, :to_token, :foreign_steps, :incoming_steps, :local_steps)
ON CONFLICT (chain_id, from_token, to_token) DO UPDATE SET
	foreign_steps = EXCLUDED.foreign_steps, incoming_steps = EXCLUDED.incoming_steps,
	local_steps = EXCLUDED.local_steps, updated_at = now()`

const upsertAdmin = `
INSERT INTO registry_admin (id, admin) VALUES (1, $1)
ON CONFLICT (id) DO UPDATE SET admin = EXCLUDED.admin, updated_at = now()`

// SaveChains upserts all chains in a single transaction
func (p *PostgresStore) SaveChains(ctx context.Context, ids []types.ChainID, entries []model.ChainEntry) error {
	return p.InTransaction(ctx, func(tx *sqlx.Tx) error {
		for i, id := range ids {
			if _, err := tx.NamedExecContext(ctx, upsertChain, newChainRow(id, entries[i])); err != nil {
				return fmt.Errorf("failed to save chain %d: %w", id, err)
			}
		}
		return nil
	})
}

func (p *PostgresStore) SaveToken(ctx context.Context, symbol string, entry model.TokenEntry) error {
	if _, err := p.db.NamedExecContext(ctx, upsertToken, newTokenRow(symbol, entry)); err != nil {
		return fmt.Errorf("failed to save token %s: %w", symbol, err)
	}
	return nil
}

func (p *PostgresStore) SaveStrategy(ctx context.Context, key model.StrategyKey, entry model.StrategyEntry) error {
	if _, err := p.db.NamedExecContext(ctx, upsertStrategy, newStrategyRow(key, entry)); err != nil {
		return fmt.Errorf("failed to save strategy %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) SaveAdmin(ctx context.Context, admin common.Address) error {
	if _, err := p.db.ExecContext(ctx, upsertAdmin, admin.Bytes()); err != nil {
		return fmt.Errorf("failed to save admin: %w", err)
	}
	return nil
}

// Load reads every table into a snapshot
func (p *PostgresStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := NewSnapshot()

	var chains []chainRow
	if err := p.db.SelectContext(ctx, &chains, `SELECT chain_id, cctp_claim, lp_release, mint, unlock,
		swap1, swap2, swap3, swap4, swap5, swap6, name, token_decimals, flags, price_feed FROM registry_chains`); err != nil {
		return nil, fmt.Errorf("failed to load chains: %w", err)
	}
	for _, row := range chains {
		id, entry, err := row.entry()
		if err != nil {
			return nil, err
		}
		snap.Chains[id] = entry
	}

	var tokens []tokenRow
	if err := p.db.SelectContext(ctx, &tokens, `SELECT symbol, target, token_decimals, price_decimals, price_feed
		FROM registry_tokens`); err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	for _, row := range tokens {
		snap.Tokens[row.Symbol] = row.entry()
	}

	var strategies []strategyRow
	if err := p.db.SelectContext(ctx, &strategies, `SELECT chain_id, from_token, to_token,
		foreign_steps, incoming_steps, local_steps FROM registry_strategies`); err != nil {
		return nil, fmt.Errorf("failed to load strategies: %w", err)
	}
	for _, row := range strategies {
		key, entry, err := row.entry()
		if err != nil {
			return nil, err
		}
		snap.Strategies[key] = entry
	}

	var admins [][]byte
	if err := p.db.SelectContext(ctx, &admins, `SELECT admin FROM registry_admin WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}
	if len(admins) == 1 {
		snap.Admin = common.BytesToAddress(admins[0])
	}

	logrus.WithFields(logrus.Fields{
		"chains":     len(snap.Chains),
		"tokens":     len(snap.Tokens),
		"strategies": len(snap.Strategies),
	}).Info("Loaded registry state")
	return snap, nil
}

// Close closes the database connection
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func newChainRow(id types.ChainID, e model.ChainEntry) chainRow {
	return chainRow{
		ChainID:       strconv.FormatUint(id, 10),
		CCTPClaim:     e.CCTPClaim.Dec(),
		LPRelease:     e.LPRelease.Dec(),
		Mint:          e.Mint.Dec(),
		Unlock:        e.Unlock.Dec(),
		Swap1:         e.Swap1.Dec(),
		Swap2:         e.Swap2.Dec(),
		Swap3:         e.Swap3.Dec(),
		Swap4:         e.Swap4.Dec(),
		Swap5:         e.Swap5.Dec(),
		Swap6:         e.Swap6.Dec(),
		Name:          append([]byte(nil), e.Name[:]...),
		TokenDecimals: int16(e.TokenDecimals),
		Flags:         append([]byte(nil), e.Flags[:]...),
		PriceFeed:     e.PriceFeed.Bytes(),
	}
}

func (r chainRow) entry() (types.ChainID, model.ChainEntry, error) {
	var e model.ChainEntry
	id, err := strconv.ParseUint(r.ChainID, 10, 64)
	if err != nil {
		return 0, e, fmt.Errorf("invalid chain id %q: %w", r.ChainID, err)
	}
	amounts := []struct {
		raw string
		dst *uint256.Int
	}{
		{r.CCTPClaim, &e.CCTPClaim}, {r.LPRelease, &e.LPRelease}, {r.Mint, &e.Mint},
		{r.Unlock, &e.Unlock}, {r.Swap1, &e.Swap1}, {r.Swap2, &e.Swap2}, {r.Swap3, &e.Swap3},
		{r.Swap4, &e.Swap4}, {r.Swap5, &e.Swap5}, {r.Swap6, &e.Swap6},
	}
	for _, a := range amounts {
		if err := model.ParseAmount(a.raw, a.dst); err != nil {
			return 0, e, fmt.Errorf("chain %d: %w", id, err)
		}
	}
	copy(e.Name[:], r.Name)
	copy(e.Flags[:], r.Flags)
	e.TokenDecimals = uint8(r.TokenDecimals)
	e.PriceFeed = common.BytesToAddress(r.PriceFeed)
	return id, e, nil
}

func newTokenRow(symbol string, e model.TokenEntry) tokenRow {
	return tokenRow{
		Symbol:        symbol,
		Target:        e.Target.Bytes(),
		TokenDecimals: int16(e.TokenDecimals),
		PriceDecimals: int16(e.PriceDecimals),
		PriceFeed:     e.PriceFeed.Bytes(),
	}
}

func (r tokenRow) entry() model.TokenEntry {
	return model.TokenEntry{
		Target:        common.BytesToAddress(r.Target),
		TokenDecimals: uint8(r.TokenDecimals),
		PriceDecimals: uint8(r.PriceDecimals),
		PriceFeed:     common.BytesToAddress(r.PriceFeed),
	}
}

func newStrategyRow(key model.StrategyKey, e model.StrategyEntry) strategyRow {
	return strategyRow{
		ChainID:   strconv.FormatUint(key.ChainID, 10),
		FromToken: key.FromToken,
		ToToken:   key.ToToken,
		Foreign:   encodeSteps(e.Foreign),
		Incoming:  encodeSteps(e.Incoming),
		Local:     encodeSteps(e.Local),
	}
}

func (r strategyRow) entry() (model.StrategyKey, model.StrategyEntry, error) {
	id, err := strconv.ParseUint(r.ChainID, 10, 64)
	if err != nil {
		return model.StrategyKey{}, model.StrategyEntry{}, fmt.Errorf("invalid chain id %q: %w", r.ChainID, err)
	}
	key := model.StrategyKey{ChainID: id, FromToken: r.FromToken, ToToken: r.ToToken}
	return key, model.StrategyEntry{
		Foreign:  decodeSteps(r.Foreign),
		Incoming: decodeSteps(r.Incoming),
		Local:    decodeSteps(r.Local),
	}, nil
}

func encodeSteps(steps []types.StepCode) []byte {
	out := make([]byte, len(steps))
	for i, s := range steps {
		out[i] = byte(s)
	}
	return out
}

func decodeSteps(raw []byte) []types.StepCode {
	out := make([]types.StepCode, len(raw))
	for i, b := range raw {
		out[i] = types.StepCode(b)
	}
	return out
}
