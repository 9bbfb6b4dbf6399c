// Package estimate converts the foreign-side fees of a bridge route into the
// native currency of the chain running the registry.
package estimate

import (
	"context"
	"errors"
	"fmt"

	"github.com/Emmet-Finance/Bridge-Data/internal/model"
	"github.com/Emmet-Finance/Bridge-Data/internal/oracle"
	"github.com/Emmet-Finance/Bridge-Data/internal/telemetry"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrArithmeticOverflow is returned when a fee sum or conversion exceeds 256 bits
var ErrArithmeticOverflow = errors.New("arithmetic overflow")

// Inputs is a consistent read of the registry for one route
type Inputs struct {
	// Steps is the foreign phase of the route's strategy
	Steps []types.StepCode

	// Foreign is the entry of the route's chain, Local the entry of the registry's own chain
	Foreign model.ChainEntry
	Local   model.ChainEntry
}

// Source provides estimate inputs
type Source interface {
	EstimateInputs(chainID types.ChainID, fromToken, toToken string) Inputs
}

// Quote is a fee estimate with the values it was derived from
type Quote struct {
	Route           model.StrategyKey `json:"route"`
	Steps           []types.StepCode  `json:"steps"`
	Sum             *uint256.Int      `json:"sum"`
	ForeignPrice    *uint256.Int      `json:"foreignPrice"`
	LocalPrice      *uint256.Int      `json:"localPrice"`
	ForeignDecimals uint8             `json:"foreignPriceDecimals"`
	LocalDecimals   uint8             `json:"localPriceDecimals"`
	Fee             *uint256.Int      `json:"fee"`
}

// Estimator computes fee estimates
type Estimator struct {
	source Source
	feeds  oracle.Resolver
}

// New creates an estimator reading routes from source and prices through feeds
func New(source Source, feeds oracle.Resolver) *Estimator {
	return &Estimator{source: source, feeds: feeds}
}

// EstimateForeignFees returns sum(foreign fees) * foreignPrice / localPrice.
// Prices are used as raw integers; no decimals rescaling is applied.
func (e *Estimator) EstimateForeignFees(ctx context.Context, chainID types.ChainID, fromToken, toToken string) (*uint256.Int, error) {
	q, err := e.Quote(ctx, chainID, fromToken, toToken)
	if err != nil {
		return nil, err
	}
	return q.Fee, nil
}

// Quote computes the estimate of a route and returns it with its inputs
func (e *Estimator) Quote(ctx context.Context, chainID types.ChainID, fromToken, toToken string) (*Quote, error) {
	route := model.StrategyKey{ChainID: chainID, FromToken: fromToken, ToToken: toToken}
	ctx, span := telemetry.Tracer().Start(ctx, "EstimateForeignFees")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("chain_id", int64(chainID)),
		attribute.String("from_token", fromToken),
		attribute.String("to_token", toToken),
	)

	q, err := e.quote(ctx, route)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logrus.WithFields(logrus.Fields{
			"route": route.String(),
			"error": err,
		}).Warn("Fee estimate failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("fee", q.Fee.Dec()))

	logrus.WithFields(logrus.Fields{
		"route":         route.String(),
		"sum":           q.Sum.Dec(),
		"foreign_price": q.ForeignPrice.Dec(),
		"local_price":   q.LocalPrice.Dec(),
		"fee":           q.Fee.Dec(),
	}).Debug("Fee estimated")
	return q, nil
}

func (e *Estimator) quote(ctx context.Context, route model.StrategyKey) (*Quote, error) {
	in := e.source.EstimateInputs(route.ChainID, route.FromToken, route.ToToken)

	sum, err := SumFees(in.Foreign, in.Steps)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", route, err)
	}

	foreignPrice, foreignDecimals, err := e.price(ctx, in.Foreign.PriceFeed)
	if err != nil {
		return nil, fmt.Errorf("foreign price of chain %d: %w", route.ChainID, err)
	}
	localPrice, localDecimals, err := e.price(ctx, in.Local.PriceFeed)
	if err != nil {
		return nil, fmt.Errorf("local price: %w", err)
	}

	fee, err := Convert(sum, foreignPrice, localPrice)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", route, err)
	}

	return &Quote{
		Route:           route,
		Steps:           in.Steps,
		Sum:             sum,
		ForeignPrice:    foreignPrice,
		LocalPrice:      localPrice,
		ForeignDecimals: foreignDecimals,
		LocalDecimals:   localDecimals,
		Fee:             fee,
	}, nil
}

func (e *Estimator) price(ctx context.Context, addr common.Address) (*uint256.Int, uint8, error) {
	feed, err := e.feeds.Feed(addr)
	if err != nil {
		return nil, 0, err
	}
	price, err := feed.Price(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", oracle.ErrOracleUnavailable, err)
	}
	return price, feed.Decimals(), nil
}

// SumFees adds the fee component of every step in order
func SumFees(entry model.ChainEntry, steps []types.StepCode) (*uint256.Int, error) {
	sum := new(uint256.Int)
	for _, step := range steps {
		fee, err := entry.Fee(step)
		if err != nil {
			return nil, err
		}
		if _, overflow := sum.AddOverflow(sum, &fee); overflow {
			return nil, fmt.Errorf("%w: fee sum at step %s", ErrArithmeticOverflow, step)
		}
	}
	return sum, nil
}

// Convert returns sum * foreignPrice / localPrice, multiplying first and truncating
func Convert(sum, foreignPrice, localPrice *uint256.Int) (*uint256.Int, error) {
	if localPrice.IsZero() {
		return nil, fmt.Errorf("%w: local price is zero", oracle.ErrOracleUnavailable)
	}
	out, overflow := new(uint256.Int).MulOverflow(sum, foreignPrice)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrArithmeticOverflow, sum.Dec(), foreignPrice.Dec())
	}
	return out.Div(out, localPrice), nil
}
