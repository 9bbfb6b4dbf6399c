package registry

import (
	"context"
	"fmt"

	"github.com/Emmet-Finance/Bridge-Data/internal/estimate"
	"github.com/Emmet-Finance/Bridge-Data/internal/events"
	"github.com/Emmet-Finance/Bridge-Data/internal/model"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/Emmet-Finance/Bridge-Data/internal/validation"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// SetStrategies replaces the step plan of a route. Step codes are checked
// only when strict validation is configured.
func (r *Registry) SetStrategies(ctx context.Context, caller common.Address, chainID types.ChainID, fromToken, toToken string,
	foreign, incoming, local []types.StepCode) error {
	key := model.StrategyKey{ChainID: chainID, FromToken: fromToken, ToToken: toToken}
	entry := model.StrategyEntry{Foreign: foreign, Incoming: incoming, Local: local}.Clone()

	r.mu.Lock()
	if err := r.guard.RequireAdmin(caller); err != nil {
		r.mu.Unlock()
		return err
	}
	if err := validation.ValidateStrategy(key, entry, r.validation); err != nil {
		r.mu.Unlock()
		return err
	}
	if err := r.store.SaveStrategy(ctx, key, entry); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to persist strategy: %w", err)
	}
	r.strategies[key] = strategyRecord{entry: entry, present: true}
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"route":    key.String(),
		"foreign":  len(entry.Foreign),
		"incoming": len(entry.Incoming),
		"local":    len(entry.Local),
	}).Info("Strategy set")
	r.publish(events.StrategySet, caller, key.String(), map[string]interface{}{
		"foreign":  entry.Foreign,
		"incoming": entry.Incoming,
		"local":    entry.Local,
	})
	return nil
}

// GetStrategies returns copies of the three phases of a route; all empty when unset
func (r *Registry) GetStrategies(chainID types.ChainID, fromToken, toToken string) (foreign, incoming, local []types.StepCode) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.strategies[model.StrategyKey{ChainID: chainID, FromToken: fromToken, ToToken: toToken}].entry.Clone()
	return s.Foreign, s.Incoming, s.Local
}

// IsStrategySupported reports whether a plan was ever written for the route
func (r *Registry) IsStrategySupported(chainID types.ChainID, fromToken, toToken string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategies[model.StrategyKey{ChainID: chainID, FromToken: fromToken, ToToken: toToken}].present
}

// EstimateInputs captures, in one consistent read, everything the estimator needs for a route
func (r *Registry) EstimateInputs(chainID types.ChainID, fromToken, toToken string) estimate.Inputs {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.strategies[model.StrategyKey{ChainID: chainID, FromToken: fromToken, ToToken: toToken}].entry
	return estimate.Inputs{
		Steps:   append([]types.StepCode(nil), s.Foreign...),
		Foreign: r.chains[chainID].entry,
		Local:   r.chains[r.selfChainID].entry,
	}
}
