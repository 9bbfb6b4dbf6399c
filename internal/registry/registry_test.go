package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Emmet-Finance/Bridge-Data/internal/access"
	"github.com/Emmet-Finance/Bridge-Data/internal/estimate"
	"github.com/Emmet-Finance/Bridge-Data/internal/events"
	"github.com/Emmet-Finance/Bridge-Data/internal/model"
	"github.com/Emmet-Finance/Bridge-Data/internal/oracle"
	"github.com/Emmet-Finance/Bridge-Data/internal/store"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/Emmet-Finance/Bridge-Data/internal/validation"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	another = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	polFeed = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	bnbFeed = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	tonFeed = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
)

const (
	pricePOL = 21400000
	priceBNB = 58381000000
	priceTON = 282000000000000
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type failingStore struct {
	*store.MemoryStore
}

func (failingStore) SaveChains(context.Context, []types.ChainID, []model.ChainEntry) error {
	return errors.New("connection reset")
}

func newRegistry(t *testing.T, self types.ChainID, symbol string) *Registry {
	t.Helper()
	r, err := New(context.Background(), self, symbol, admin, Options{})
	require.NoError(t, err)
	return r
}

func chainEntry(name string, feed common.Address, lpRelease, swap1 uint64, decimals uint8) model.ChainEntry {
	var e model.ChainEntry
	e.Name, _ = model.NewName(name)
	e.LPRelease.SetUint64(lpRelease)
	e.Swap1.SetUint64(swap1)
	e.TokenDecimals = decimals
	e.PriceFeed = feed
	return e
}

func priceFeeds() *oracle.Directory {
	dir := oracle.NewDirectory()
	for addr, p := range map[common.Address]struct {
		price    uint64
		decimals uint8
	}{
		polFeed: {pricePOL, 8},
		bnbFeed: {priceBNB, 8},
		tonFeed: {priceTON, 14},
	} {
		f := oracle.NewStaticFeed(p.decimals, addr.Hex())
		f.UpdatePrice(uint256.NewInt(p.price))
		dir.Register(addr, f)
	}
	return dir
}

func TestUnsetChain(t *testing.T) {
	r := newRegistry(t, 56, "BNB")
	for _, id := range []types.ChainID{0, 1, 137, 65534} {
		assert.False(t, r.IsChainSupported(id))
		assert.Equal(t, model.ChainEntry{}, r.GetChain(id))
	}
}

func TestSetChain_RoundTrip(t *testing.T) {
	r := newRegistry(t, 56, "BNB")
	e := chainEntry("POL", polFeed, 46728971960000000, 46728971960000000, 18)
	e.Flags = [11]byte{0x01, 0x02}
	e.Swap6.SetAllOne()

	require.NoError(t, r.SetChain(context.Background(), admin, 137, e))
	assert.True(t, r.IsChainSupported(137))
	assert.Equal(t, e, r.GetChain(137))
	assert.Equal(t, "POL", r.GetChain(137).NameString())
}

func TestSetChain_AllZeroIsSupported(t *testing.T) {
	r := newRegistry(t, 56, "BNB")
	require.NoError(t, r.SetChain(context.Background(), admin, 100, model.ChainEntry{}))
	assert.True(t, r.IsChainSupported(100))
}

func TestSetChain_Unauthorized(t *testing.T) {
	r := newRegistry(t, 56, "BNB")
	err := r.SetChain(context.Background(), another, 137, chainEntry("POL", polFeed, 1, 1, 18))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, r.IsChainSupported(137))
}

func TestSetChains(t *testing.T) {
	ctx := context.Background()
	pol := chainEntry("POL", polFeed, 1, 2, 18)
	ton := chainEntry("TON", tonFeed, 3, 4, 9)

	batch := newRegistry(t, 56, "BNB")
	require.NoError(t, batch.SetChains(ctx, admin, []types.ChainID{137, 65534}, []model.ChainEntry{pol, ton}))

	single := newRegistry(t, 56, "BNB")
	require.NoError(t, single.SetChain(ctx, admin, 137, pol))
	require.NoError(t, single.SetChain(ctx, admin, 65534, ton))

	for _, id := range []types.ChainID{137, 65534} {
		assert.Equal(t, single.GetChain(id), batch.GetChain(id))
		assert.True(t, batch.IsChainSupported(id))
	}
}

func TestSetChains_LaterPairWins(t *testing.T) {
	r := newRegistry(t, 56, "BNB")
	first := chainEntry("A", polFeed, 1, 1, 18)
	second := chainEntry("B", polFeed, 2, 2, 18)
	require.NoError(t, r.SetChains(context.Background(), admin, []types.ChainID{137, 137}, []model.ChainEntry{first, second}))
	assert.Equal(t, second, r.GetChain(137))
}

func TestSetChains_Mismatch(t *testing.T) {
	r := newRegistry(t, 56, "BNB")
	err := r.SetChains(context.Background(), admin, []types.ChainID{137, 1}, []model.ChainEntry{chainEntry("POL", polFeed, 1, 1, 18)})
	assert.ErrorIs(t, err, ErrArgumentMismatch)
	assert.False(t, r.IsChainSupported(137))
	assert.False(t, r.IsChainSupported(1))
}

func TestSetChains_StoreFailureLeavesStateUnchanged(t *testing.T) {
	r, err := New(context.Background(), 56, "BNB", admin, Options{Store: failingStore{store.NewMemoryStore()}})
	require.NoError(t, err)

	err = r.SetChains(context.Background(), admin, []types.ChainID{137, 1}, []model.ChainEntry{{}, {}})
	assert.Error(t, err)
	assert.False(t, r.IsChainSupported(137))
	assert.False(t, r.IsChainSupported(1))
}

func TestGetForeignFee(t *testing.T) {
	r := newRegistry(t, 56, "BNB")
	var e model.ChainEntry
	for i, dst := range []*uint256.Int{&e.CCTPClaim, &e.Mint, &e.Unlock, &e.LPRelease,
		&e.Swap1, &e.Swap2, &e.Swap3, &e.Swap4, &e.Swap5, &e.Swap6} {
		dst.SetUint64(uint64(i + 1))
	}
	require.NoError(t, r.SetChain(context.Background(), admin, 137, e))

	table := map[types.StepCode]uint64{
		0x02: 1, 0x04: 2, 0x06: 3, 0x08: 4, 0x09: 5,
		0x0a: 6, 0x0b: 7, 0x0c: 8, 0x0d: 9, 0x0e: 10,
	}
	for step, want := range table {
		fee, err := r.GetForeignFee(137, step)
		require.NoError(t, err, step.String())
		assert.Equal(t, want, fee.Uint64(), step.String())
	}

	for _, step := range []types.StepCode{0x00, 0x01, 0x03, 0x05, 0x07, 0x0f, 0xff} {
		_, err := r.GetForeignFee(137, step)
		assert.ErrorIs(t, err, ErrUnknownStepCode, step.String())
	}

	fee, err := r.GetForeignFee(1, types.StepMint)
	require.NoError(t, err)
	assert.True(t, fee.IsZero(), "unset chain reads as zero")
}

func TestTokens(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, 56, "BNB")
	target := common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")

	assert.False(t, r.IsTokenSupported("USDT"))
	assert.Equal(t, model.TokenEntry{}, r.GetToken("USDT"))

	require.NoError(t, r.SetToken(ctx, admin, "USDT", target, 18, 8, bnbFeed))
	assert.True(t, r.IsTokenSupported("USDT"))
	assert.False(t, r.IsTokenSupported("usdt"), "symbols are case-sensitive")
	assert.Equal(t, model.TokenEntry{Target: target, TokenDecimals: 18, PriceDecimals: 8, PriceFeed: bnbFeed}, r.GetToken("USDT"))

	require.NoError(t, r.SetToken(ctx, admin, "USDT", target, 6, 8, common.Address{}))
	assert.Equal(t, uint8(6), r.GetToken("USDT").TokenDecimals)

	assert.ErrorIs(t, r.SetToken(ctx, another, "USDC", target, 6, 8, bnbFeed), ErrUnauthorized)
	assert.False(t, r.IsTokenSupported("USDC"))
}

func TestStrategies(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, 56, "BNB")

	foreign, incoming, local := r.GetStrategies(137, "USDT", "USDT")
	assert.NotNil(t, foreign)
	assert.Empty(t, foreign)
	assert.Empty(t, incoming)
	assert.Empty(t, local)
	assert.False(t, r.IsStrategySupported(137, "USDT", "USDT"))

	require.NoError(t, r.SetStrategies(ctx, admin, 137, "USDT", "USDT",
		[]types.StepCode{8, 9}, []types.StepCode{6}, []types.StepCode{3}))
	require.NoError(t, r.SetStrategies(ctx, admin, 137, "USDT", "USDT",
		[]types.StepCode{2}, nil, []types.StepCode{0x42}))

	foreign, incoming, local = r.GetStrategies(137, "USDT", "USDT")
	assert.Equal(t, []types.StepCode{2}, foreign)
	assert.Empty(t, incoming)
	assert.Equal(t, []types.StepCode{0x42}, local, "unknown codes are accepted at write time")
	assert.True(t, r.IsStrategySupported(137, "USDT", "USDT"))

	other, _, _ := r.GetStrategies(137, "USDT", "USDC")
	assert.Empty(t, other)
}

func TestStrategies_Isolation(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, 56, "BNB")
	in := []types.StepCode{8, 9}
	require.NoError(t, r.SetStrategies(ctx, admin, 137, "USDT", "USDT", in, nil, nil))

	in[0] = 2
	foreign, _, _ := r.GetStrategies(137, "USDT", "USDT")
	assert.Equal(t, []types.StepCode{8, 9}, foreign)

	foreign[1] = 2
	again, _, _ := r.GetStrategies(137, "USDT", "USDT")
	assert.Equal(t, []types.StepCode{8, 9}, again)
}

func TestStrategies_Strict(t *testing.T) {
	r, err := New(context.Background(), 56, "BNB", admin, Options{
		Validation: validation.ValidationOptions{StrictStepCodes: true},
	})
	require.NoError(t, err)

	err = r.SetStrategies(context.Background(), admin, 137, "USDT", "USDT", []types.StepCode{8, 0x42}, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownStepCode)
	assert.False(t, r.IsStrategySupported(137, "USDT", "USDT"))
}

func TestStrategies_Unauthorized(t *testing.T) {
	r := newRegistry(t, 56, "BNB")
	err := r.SetStrategies(context.Background(), another, 137, "USDT", "USDT", []types.StepCode{8}, nil, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpdateAdmin(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, 56, "BNB")
	assert.Equal(t, access.AdminRole, r.RoleOf(admin))
	assert.Equal(t, common.Hash{}, r.RoleOf(another))

	assert.ErrorIs(t, r.UpdateAdmin(ctx, another, another), ErrUnauthorized)

	require.NoError(t, r.UpdateAdmin(ctx, admin, another))
	assert.Equal(t, another, r.Admin())
	assert.Equal(t, access.AdminRole, r.RoleOf(another))
	assert.Equal(t, common.Hash{}, r.RoleOf(admin))

	assert.ErrorIs(t, r.SetChain(ctx, admin, 1, model.ChainEntry{}), ErrUnauthorized)
	assert.ErrorIs(t, r.UpdateAdmin(ctx, admin, admin), ErrUnauthorized)
	require.NoError(t, r.SetChain(ctx, another, 1, model.ChainEntry{}))
}

func TestNew_RestoresFromStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	first, err := New(ctx, 56, "BNB", admin, Options{Store: st})
	require.NoError(t, err)
	assert.False(t, first.Restored())
	pol := chainEntry("POL", polFeed, 1, 2, 18)
	require.NoError(t, first.SetChain(ctx, admin, 137, pol))
	require.NoError(t, first.SetToken(ctx, admin, "USDT", common.Address{}, 6, 8, common.Address{}))
	require.NoError(t, first.SetStrategies(ctx, admin, 137, "USDT", "USDT", []types.StepCode{8, 9}, nil, nil))
	require.NoError(t, first.UpdateAdmin(ctx, admin, another))

	second, err := New(ctx, 56, "BNB", admin, Options{Store: st})
	require.NoError(t, err)
	assert.True(t, second.Restored())
	assert.Equal(t, pol, second.GetChain(137))
	assert.True(t, second.IsTokenSupported("USDT"))
	foreign, _, _ := second.GetStrategies(137, "USDT", "USDT")
	assert.Equal(t, []types.StepCode{8, 9}, foreign)
	assert.Equal(t, another, second.Admin(), "persisted admin transfer survives restart")

	summary := second.Summary()
	assert.Equal(t, []types.ChainID{137}, summary.Chains)
	assert.Equal(t, []string{"USDT"}, summary.Tokens)
	assert.Equal(t, 1, summary.Strategies)
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	r, err := New(ctx, 56, "BNB", admin, Options{Events: rec})
	require.NoError(t, err)

	require.NoError(t, r.SetChains(ctx, admin, []types.ChainID{137, 1}, []model.ChainEntry{{}, {}}))
	require.NoError(t, r.SetToken(ctx, admin, "USDT", common.Address{}, 6, 8, common.Address{}))
	require.NoError(t, r.SetStrategies(ctx, admin, 137, "USDT", "USDT", []types.StepCode{8}, nil, nil))
	require.NoError(t, r.UpdateAdmin(ctx, admin, another))
	assert.Error(t, r.SetToken(ctx, admin, "USDC", common.Address{}, 6, 8, common.Address{}))

	var got []string
	for _, ev := range rec.events {
		got = append(got, ev.Type+" "+ev.Subject)
	}
	assert.Equal(t, []string{
		"ChainSet 137",
		"ChainSet 1",
		"TokenSet USDT",
		"StrategySet 137:USDT:USDT",
		"AdminUpdated " + another.Hex(),
	}, got)
}

func TestEstimate_BNBRegistry(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, 56, "BNB")
	require.NoError(t, r.SetChains(ctx, admin, []types.ChainID{56, 137}, []model.ChainEntry{
		chainEntry("BNB", bnbFeed, 976345043800000, 856443020800000, 18),
		chainEntry("POL", polFeed, 46728971960000000, 46728971960000000, 18),
	}))
	require.NoError(t, r.SetStrategies(ctx, admin, 137, "USDT", "USDT", []types.StepCode{8, 9}, nil, nil))

	fee, err := estimate.New(r, priceFeeds()).EstimateForeignFees(ctx, 137, "USDT", "USDT")
	require.NoError(t, err)

	want := uint64((46728971960000000 + 46728971960000000) * pricePOL / priceBNB)
	assert.Equal(t, want, fee.Uint64())
}

func TestEstimate_POLRegistryIsNotSymmetric(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, 137, "POL")
	require.NoError(t, r.SetChains(ctx, admin, []types.ChainID{137, 56}, []model.ChainEntry{
		chainEntry("POL", polFeed, 46728971960000000, 46728971960000000, 18),
		chainEntry("BNB", bnbFeed, 976345043800000, 856443020800000, 18),
	}))
	require.NoError(t, r.SetStrategies(ctx, admin, 56, "USDT", "USDT", []types.StepCode{8, 9}, nil, nil))

	fee, err := estimate.New(r, priceFeeds()).EstimateForeignFees(ctx, 56, "USDT", "USDT")
	require.NoError(t, err)

	sum := uint256.NewInt(976345043800000 + 856443020800000)
	want := new(uint256.Int).Mul(sum, uint256.NewInt(priceBNB))
	want.Div(want, uint256.NewInt(pricePOL))
	assert.Equal(t, want.Dec(), fee.Dec())
	assert.NotEqual(t, uint64((46728971960000000+46728971960000000)*pricePOL/priceBNB), fee.Uint64())
}

func TestEstimate_TON(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, 137, "POL")
	require.NoError(t, r.SetChains(ctx, admin, []types.ChainID{137, 65534}, []model.ChainEntry{
		chainEntry("POL", polFeed, 0, 0, 18),
		chainEntry("TON", tonFeed, 177304965, 177304965, 9),
	}))
	require.NoError(t, r.SetStrategies(ctx, admin, 65534, "USDT", "USDT", []types.StepCode{8, 9}, nil, nil))

	fee, err := estimate.New(r, priceFeeds()).EstimateForeignFees(ctx, 65534, "USDT", "USDT")
	require.NoError(t, err)
	assert.Equal(t, "4672897208411214", fee.Dec())
}

func TestEstimate_UnknownStepInStrategy(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, 56, "BNB")
	require.NoError(t, r.SetChains(ctx, admin, []types.ChainID{56, 137}, []model.ChainEntry{
		chainEntry("BNB", bnbFeed, 0, 0, 18),
		chainEntry("POL", polFeed, 1, 1, 18),
	}))
	require.NoError(t, r.SetStrategies(ctx, admin, 137, "USDT", "USDT", []types.StepCode{8, 0x42}, nil, nil))

	_, err := estimate.New(r, priceFeeds()).EstimateForeignFees(ctx, 137, "USDT", "USDT")
	assert.ErrorIs(t, err, ErrUnknownStepCode)
}

func TestEstimate_ZeroFeed(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, 56, "BNB")
	require.NoError(t, r.SetChains(ctx, admin, []types.ChainID{56, 137}, []model.ChainEntry{
		chainEntry("BNB", bnbFeed, 0, 0, 18),
		chainEntry("POL", common.Address{}, 1, 1, 18),
	}))
	require.NoError(t, r.SetStrategies(ctx, admin, 137, "USDT", "USDT", []types.StepCode{8}, nil, nil))

	_, err := estimate.New(r, priceFeeds()).EstimateForeignFees(ctx, 137, "USDT", "USDT")
	assert.ErrorIs(t, err, ErrOracleUnavailable)
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, 56, "BNB")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = r.SetChain(ctx, admin, types.ChainID(i), chainEntry("X", polFeed, uint64(i), uint64(i), 18))
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = r.IsChainSupported(types.ChainID(i))
			_ = r.GetChain(types.ChainID(i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		assert.True(t, r.IsChainSupported(types.ChainID(i)))
	}
}
