package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Emmet-Finance/Bridge-Data/internal/model"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func TestLoad(t *testing.T) {
	t.Setenv("SELF_CHAIN_ID", "56")
	t.Setenv("SELF_SYMBOL", "BNB")
	t.Setenv("ADMIN_ADDRESS", admin.Hex())
	t.Setenv("STRICT_STRATEGIES", "true")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("ORACLE_MAX_CHANGE", "0.25")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("PRICE_FEEDS", `[{"address":"0x5FbDB2315678afecb367f032d93F642f64180aa3","url":"http://feeds/pol","decimals":8}]`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, types.ChainID(56), cfg.SelfChainID)
	assert.Equal(t, "BNB", cfg.SelfSymbol)
	assert.Equal(t, admin, cfg.AdminAddress)
	assert.True(t, cfg.StrictStrategies)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, uint64(2500), cfg.OracleMaxChangeBps())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.SignatureMaxAge)
	require.Len(t, cfg.PriceFeeds, 1)
	assert.Equal(t, "http://feeds/pol", cfg.PriceFeeds[0].URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing chain id", map[string]string{"SELF_SYMBOL": "BNB", "ADMIN_ADDRESS": admin.Hex()}},
		{"missing symbol", map[string]string{"SELF_CHAIN_ID": "56", "ADMIN_ADDRESS": admin.Hex()}},
		{"bad admin", map[string]string{"SELF_CHAIN_ID": "56", "SELF_SYMBOL": "BNB", "ADMIN_ADDRESS": "0x12"}},
		{"bad feeds", map[string]string{"SELF_CHAIN_ID": "56", "SELF_SYMBOL": "BNB", "ADMIN_ADDRESS": admin.Hex(), "PRICE_FEEDS": "{"}},
		{"bad feed address", map[string]string{"SELF_CHAIN_ID": "56", "SELF_SYMBOL": "BNB", "ADMIN_ADDRESS": admin.Hex(), "PRICE_FEEDS": `[{"address":"nope"}]`}},
		{"negative signature age", map[string]string{"SELF_CHAIN_ID": "56", "SELF_SYMBOL": "BNB", "ADMIN_ADDRESS": admin.Hex(), "SIGNATURE_MAX_AGE": "-1m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"SELF_CHAIN_ID", "SELF_SYMBOL", "ADMIN_ADDRESS", "PRICE_FEEDS"} {
				t.Setenv(k, "")
				os.Unsetenv(k)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "12")
	t.Setenv("TEST_BAD_INT", "x")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_U64", "65534")

	assert.Equal(t, 12, GetEnvAsInt("TEST_INT", 1))
	assert.Equal(t, 1, GetEnvAsInt("TEST_BAD_INT", 1))
	assert.True(t, GetEnvAsBool("TEST_BOOL", false))
	assert.Equal(t, uint64(65534), GetEnvAsUint64("TEST_U64", 0))
	assert.Equal(t, "fallback", GetEnvOrDefault("TEST_UNSET_KEY", "fallback"))
	assert.Equal(t, time.Minute, GetEnvAsDuration("TEST_UNSET_KEY", time.Minute))
}

const seedYAML = `
feeds:
  - address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
    decimals: 8
    description: MATIC/USD
    price: "21400000"
chains:
  - chainId: 137
    name: POL
    tokenDecimals: 18
    lpRelease: "46728971960000000"
    swap1: "46728971960000000"
    flags: "0x01"
    priceFeed: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
  - chainId: 65534
    name: TON
    tokenDecimals: 9
tokens:
  - symbol: USDT
    target: "0x55d398326f99059fF775485246999027B3197955"
    tokenDecimals: 18
    priceDecimals: 8
strategies:
  - chainId: 137
    fromToken: USDT
    toToken: USDT
    foreign: [LPRelease, Swap1]
    incoming: ["0x06"]
    local: [Lock]
`

type recordingApplier struct {
	chainIDs   []types.ChainID
	chains     []model.ChainEntry
	tokens     map[string]model.TokenEntry
	strategies map[model.StrategyKey]model.StrategyEntry
	fail       error
}

func (r *recordingApplier) SetChains(_ context.Context, _ common.Address, ids []types.ChainID, entries []model.ChainEntry) error {
	if r.fail != nil {
		return r.fail
	}
	r.chainIDs, r.chains = ids, entries
	return nil
}

func (r *recordingApplier) SetToken(_ context.Context, _ common.Address, symbol string, target common.Address, td, pd uint8, feed common.Address) error {
	if r.tokens == nil {
		r.tokens = map[string]model.TokenEntry{}
	}
	r.tokens[symbol] = model.TokenEntry{Target: target, TokenDecimals: td, PriceDecimals: pd, PriceFeed: feed}
	return nil
}

func (r *recordingApplier) SetStrategies(_ context.Context, _ common.Address, chainID types.ChainID, from, to string, f, i, l []types.StepCode) error {
	if r.strategies == nil {
		r.strategies = map[model.StrategyKey]model.StrategyEntry{}
	}
	r.strategies[model.StrategyKey{ChainID: chainID, FromToken: from, ToToken: to}] = model.StrategyEntry{Foreign: f, Incoming: i, Local: l}
	return nil
}

func TestLoadSeed_Apply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Feeds, 1)
	assert.Equal(t, "21400000", seed.Feeds[0].Price)

	app := &recordingApplier{}
	require.NoError(t, seed.Apply(context.Background(), app, admin))

	assert.Equal(t, []types.ChainID{137, 65534}, app.chainIDs)
	assert.Equal(t, uint64(46728971960000000), app.chains[0].LPRelease.Uint64())
	assert.Equal(t, "POL", app.chains[0].NameString())
	assert.Equal(t, byte(0x01), app.chains[0].Flags[0])
	assert.Equal(t, uint8(9), app.chains[1].TokenDecimals)
	assert.Equal(t, uint8(18), app.tokens["USDT"].TokenDecimals)

	s := app.strategies[model.StrategyKey{ChainID: 137, FromToken: "USDT", ToToken: "USDT"}]
	assert.Equal(t, []types.StepCode{types.StepLPRelease, types.StepSwap1}, s.Foreign)
	assert.Equal(t, []types.StepCode{types.StepUnlock}, s.Incoming)
	assert.Equal(t, []types.StepCode{types.StepLock}, s.Local)
}

func TestSeed_MalformedWritesNothing(t *testing.T) {
	seed, err := ParseSeed([]byte(`
chains:
  - chainId: 137
    name: POL
strategies:
  - chainId: 137
    fromToken: USDT
    toToken: USDT
    foreign: [Teleport]
`))
	require.NoError(t, err)

	app := &recordingApplier{}
	assert.Error(t, seed.Apply(context.Background(), app, admin))
	assert.Empty(t, app.chainIDs)
}

func TestSeed_PropagatesWriteError(t *testing.T) {
	seed, err := ParseSeed([]byte("chains:\n  - chainId: 1\n"))
	require.NoError(t, err)

	boom := errors.New("unauthorized")
	err = seed.Apply(context.Background(), &recordingApplier{fail: boom}, admin)
	assert.ErrorIs(t, err, boom)
}

func TestParseSeed_Invalid(t *testing.T) {
	_, err := ParseSeed([]byte("chains: {"))
	assert.Error(t, err)
}
