package registry

import (
	"context"
	"fmt"

	"github.com/Emmet-Finance/Bridge-Data/internal/events"
	"github.com/Emmet-Finance/Bridge-Data/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// SetToken stores or overwrites the metadata of a token symbol. Symbols are case-sensitive.
func (r *Registry) SetToken(ctx context.Context, caller common.Address, symbol string, target common.Address,
	tokenDecimals, priceDecimals uint8, priceFeed common.Address) error {
	entry := model.TokenEntry{
		Target:        target,
		TokenDecimals: tokenDecimals,
		PriceDecimals: priceDecimals,
		PriceFeed:     priceFeed,
	}

	r.mu.Lock()
	if err := r.guard.RequireAdmin(caller); err != nil {
		r.mu.Unlock()
		return err
	}
	if err := r.store.SaveToken(ctx, symbol, entry); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to persist token: %w", err)
	}
	r.tokens[symbol] = tokenRecord{entry: entry, present: true}
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"symbol": symbol,
		"target": target.Hex(),
	}).Info("Token set")
	r.publish(events.TokenSet, caller, symbol, map[string]interface{}{
		"token": model.NewTokenSpec(entry),
	})
	return nil
}

// GetToken returns the metadata of a symbol, or the zero entry when unset
func (r *Registry) GetToken(symbol string) model.TokenEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tokens[symbol].entry
}

// IsTokenSupported reports whether an entry was ever written for symbol
func (r *Registry) IsTokenSupported(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tokens[symbol].present
}
