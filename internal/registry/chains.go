package registry

import (
	"context"
	"fmt"

	"github.com/Emmet-Finance/Bridge-Data/internal/events"
	"github.com/Emmet-Finance/Bridge-Data/internal/model"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// SetChain stores or overwrites the entry of one chain. Fields are not validated.
func (r *Registry) SetChain(ctx context.Context, caller common.Address, chainID types.ChainID, entry model.ChainEntry) error {
	return r.SetChains(ctx, caller, []types.ChainID{chainID}, []model.ChainEntry{entry})
}

// SetChains applies every (id, entry) pair in order, or none of them
func (r *Registry) SetChains(ctx context.Context, caller common.Address, chainIDs []types.ChainID, entries []model.ChainEntry) error {
	r.mu.Lock()
	if err := r.guard.RequireAdmin(caller); err != nil {
		r.mu.Unlock()
		return err
	}
	if len(chainIDs) != len(entries) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d chain ids, %d entries", ErrArgumentMismatch, len(chainIDs), len(entries))
	}
	if err := r.store.SaveChains(ctx, chainIDs, entries); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to persist chains: %w", err)
	}
	for i, id := range chainIDs {
		r.chains[id] = chainRecord{entry: entries[i], present: true}
	}
	r.mu.Unlock()

	for i, id := range chainIDs {
		logrus.WithFields(logrus.Fields{
			"chain_id":   id,
			"name":       entries[i].NameString(),
			"price_feed": entries[i].PriceFeed.Hex(),
		}).Info("Chain set")
		r.publish(events.ChainSet, caller, chainSubject(id), map[string]interface{}{
			"chain": model.NewChainSpec(entries[i]),
		})
	}
	return nil
}

// GetChain returns the entry of a chain, or the zero entry when unset
func (r *Registry) GetChain(chainID types.ChainID) model.ChainEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chains[chainID].entry
}

// IsChainSupported reports whether an entry was ever written for chainID
func (r *Registry) IsChainSupported(chainID types.ChainID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chains[chainID].present
}

// GetForeignFee returns the fee component of a chain designated by step
func (r *Registry) GetForeignFee(chainID types.ChainID, step types.StepCode) (uint256.Int, error) {
	return r.GetChain(chainID).Fee(step)
}
