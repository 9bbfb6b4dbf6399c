package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Emmet-Finance/Bridge-Data/internal/circuitbreaker"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var feedAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func TestDirectory_Resolve(t *testing.T) {
	dir := NewDirectory()
	feed := NewStaticFeed(8, "MATIC/USD")
	dir.Register(feedAddr, feed)

	got, err := dir.Feed(feedAddr)
	require.NoError(t, err)
	assert.Equal(t, "MATIC/USD", got.Description())
	assert.Equal(t, 1, dir.Len())

	_, err = dir.Feed(common.Address{})
	assert.ErrorIs(t, err, ErrOracleUnavailable)

	_, err = dir.Feed(common.HexToAddress("0x01"))
	assert.ErrorIs(t, err, ErrOracleUnavailable)
}

func TestStaticFeed(t *testing.T) {
	feed := NewStaticFeed(14, "TON/USD")

	_, err := feed.Price(context.Background())
	assert.Error(t, err, "feed without a published price must fail")

	feed.UpdatePrice(uint256.NewInt(282000000000000))
	price, err := feed.Price(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(282000000000000), price.Uint64())
	assert.Equal(t, uint8(14), feed.Decimals())

	price.SetUint64(1)
	again, _ := feed.Price(context.Background())
	assert.Equal(t, uint64(282000000000000), again.Uint64(), "callers must not alias the stored price")
}

func TestHTTPFeed_Price(t *testing.T) {
	tests := []struct {
		name string
		body string
		want uint64
	}{
		{"adapter envelope", `{"jobRunId":"1","data":{"result":58381000000}}`, 58381000000},
		{"string result", `{"data":{"result":"21400000"}}`, 21400000},
		{"bare result", `{"result":199600000000}`, 199600000000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			feed := NewHTTPFeed(types.FeedConfig{URL: srv.URL, Decimals: 8, Description: "BNB/USD", APIKey: "secret"})
			price, err := feed.Price(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, price.Uint64())
		})
	}
}

func TestHTTPFeed_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not found", http.StatusNotFound, `not here`},
		{"missing result", http.StatusOK, `{"data":{}}`},
		{"fractional price", http.StatusOK, `{"result":1.5}`},
		{"garbage", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			feed := NewHTTPFeed(types.FeedConfig{URL: srv.URL, Description: "ETH/USD"})
			_, err := feed.Price(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestGuardedFeed(t *testing.T) {
	inner := NewStaticFeed(8, "BNB/USD")
	inner.UpdatePrice(uint256.NewInt(1000))
	feed := NewGuardedFeed(inner, circuitbreaker.New(circuitbreaker.Thresholds{MaxChangeBps: 1000, RejectZero: true}))

	price, err := feed.Price(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), price.Uint64())

	inner.UpdatePrice(uint256.NewInt(2000))
	_, err = feed.Price(context.Background())
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, circuitbreaker.StateOpen, feed.State())

	feed.Reset()
	assert.Equal(t, circuitbreaker.StateClosed, feed.State())
	assert.Equal(t, uint8(8), feed.Decimals())
}
