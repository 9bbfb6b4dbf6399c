package store

import (
	"context"
	"testing"

	"github.com/Emmet-Finance/Bridge-Data/internal/model"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func polygonEntry() model.ChainEntry {
	var e model.ChainEntry
	e.LPRelease.SetUint64(46728971960000000)
	e.Swap1.SetUint64(46728971960000000)
	e.Name, _ = model.NewName("POL")
	e.TokenDecimals = 18
	e.Flags[0] = 0x01
	e.PriceFeed = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	return e
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	admin := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	key := model.StrategyKey{ChainID: 137, FromToken: "USDT", ToToken: "USDT"}

	require.NoError(t, s.SaveChains(ctx, []types.ChainID{137, 56}, []model.ChainEntry{polygonEntry(), {}}))
	require.NoError(t, s.SaveToken(ctx, "USDT", model.TokenEntry{TokenDecimals: 6, PriceDecimals: 8}))
	require.NoError(t, s.SaveStrategy(ctx, key, model.StrategyEntry{Foreign: []types.StepCode{8, 9}}))
	require.NoError(t, s.SaveAdmin(ctx, admin))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, snap.Admin)
	assert.Equal(t, polygonEntry(), snap.Chains[137])
	assert.Contains(t, snap.Chains, types.ChainID(56))
	assert.Equal(t, uint8(6), snap.Tokens["USDT"].TokenDecimals)
	assert.Equal(t, []types.StepCode{8, 9}, snap.Strategies[key].Foreign)
	assert.Empty(t, snap.Strategies[key].Local)
}

func TestMemoryStore_LoadIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := model.StrategyKey{ChainID: 56, FromToken: "USDC", ToToken: "USDC"}
	require.NoError(t, s.SaveStrategy(ctx, key, model.StrategyEntry{Foreign: []types.StepCode{2}}))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	snap.Strategies[key].Foreign[0] = 9

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StepCode(2), again.Strategies[key].Foreign[0])
}

func TestChainRow_RoundTrip(t *testing.T) {
	e := polygonEntry()
	e.Swap6.SetAllOne()

	id, got, err := newChainRow(65534, e).entry()
	require.NoError(t, err)
	assert.Equal(t, types.ChainID(65534), id)
	assert.Equal(t, e, got)
}

func TestChainRow_InvalidAmount(t *testing.T) {
	row := newChainRow(1, model.ChainEntry{})
	row.Mint = "-5"
	_, _, err := row.entry()
	assert.Error(t, err)
}

func TestTokenRow_RoundTrip(t *testing.T) {
	e := model.TokenEntry{
		Target:        common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
		TokenDecimals: 6,
		PriceDecimals: 8,
		PriceFeed:     common.HexToAddress("0x3E7d1eAB13ad0104d2750B8863b489D65364e32D"),
	}
	assert.Equal(t, e, newTokenRow("USDT", e).entry())
}

func TestStrategyRow_RoundTrip(t *testing.T) {
	key := model.StrategyKey{ChainID: 137, FromToken: "USDT", ToToken: "USDC"}
	e := model.StrategyEntry{
		Foreign:  []types.StepCode{8, 9},
		Incoming: []types.StepCode{0xff},
	}

	gotKey, got, err := newStrategyRow(key, e).entry()
	require.NoError(t, err)
	assert.Equal(t, key, gotKey)
	assert.Equal(t, e.Foreign, got.Foreign)
	assert.Equal(t, e.Incoming, got.Incoming)
	assert.NotNil(t, got.Local)
	assert.Empty(t, got.Local)
}

func TestChainRow_AmountsAreDecimal(t *testing.T) {
	ceiling, err := uint256.FromDecimal("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)
	var e model.ChainEntry
	e.CCTPClaim.Set(ceiling)
	row := newChainRow(1, e)
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", row.CCTPClaim)
	assert.Equal(t, "0", row.Mint)
}
