package oracle

import (
	"context"
	"fmt"

	"github.com/Emmet-Finance/Bridge-Data/internal/circuitbreaker"
	"github.com/holiman/uint256"
)

// GuardedFeed passes readings of another feed through a circuit breaker
type GuardedFeed struct {
	PriceFeed
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedFeed wraps feed with breaker
func NewGuardedFeed(feed PriceFeed, breaker *circuitbreaker.CircuitBreaker) *GuardedFeed {
	return &GuardedFeed{PriceFeed: feed, breaker: breaker}
}

// Price returns the inner reading once the breaker accepts it
func (g *GuardedFeed) Price(ctx context.Context) (*uint256.Int, error) {
	price, err := g.PriceFeed.Price(ctx)
	if err != nil {
		return nil, err
	}
	if err := g.breaker.Check(price); err != nil {
		return nil, fmt.Errorf("%s: %w", g.Description(), err)
	}
	return price, nil
}

// State exposes the breaker state for status reporting
func (g *GuardedFeed) State() circuitbreaker.State {
	return g.breaker.GetState()
}

// Reset closes the breaker
func (g *GuardedFeed) Reset() {
	g.breaker.Reset()
}
