// Package store persists registry state: chains, tokens, strategies and the admin identity.
package store

import (
	"context"
	"sync"

	"github.com/Emmet-Finance/Bridge-Data/internal/model"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is the full persisted state
type Snapshot struct {
	// Admin is the zero address when no transfer was ever persisted
	Admin      common.Address
	Chains     map[types.ChainID]model.ChainEntry
	Tokens     map[string]model.TokenEntry
	Strategies map[model.StrategyKey]model.StrategyEntry
}

// NewSnapshot returns an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Chains:     make(map[types.ChainID]model.ChainEntry),
		Tokens:     make(map[string]model.TokenEntry),
		Strategies: make(map[model.StrategyKey]model.StrategyEntry),
	}
}

// Store is the persistence contract of the registry. SaveChains must apply
// every pair or none.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	SaveChains(ctx context.Context, ids []types.ChainID, entries []model.ChainEntry) error
	SaveToken(ctx context.Context, symbol string, entry model.TokenEntry) error
	SaveStrategy(ctx context.Context, key model.StrategyKey, entry model.StrategyEntry) error
	SaveAdmin(ctx context.Context, admin common.Address) error
	Close() error
}

// MemoryStore keeps state in process memory
type MemoryStore struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snap: NewSnapshot()}
}

// Load returns a deep copy of the stored state
func (m *MemoryStore) Load(_ context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := NewSnapshot()
	out.Admin = m.snap.Admin
	for id, e := range m.snap.Chains {
		out.Chains[id] = e
	}
	for sym, e := range m.snap.Tokens {
		out.Tokens[sym] = e
	}
	for k, e := range m.snap.Strategies {
		out.Strategies[k] = e.Clone()
	}
	return out, nil
}

func (m *MemoryStore) SaveChains(_ context.Context, ids []types.ChainID, entries []model.ChainEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		m.snap.Chains[id] = entries[i]
	}
	return nil
}

func (m *MemoryStore) SaveToken(_ context.Context, symbol string, entry model.TokenEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Tokens[symbol] = entry
	return nil
}

func (m *MemoryStore) SaveStrategy(_ context.Context, key model.StrategyKey, entry model.StrategyEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Strategies[key] = entry.Clone()
	return nil
}

func (m *MemoryStore) SaveAdmin(_ context.Context, admin common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Admin = admin
	return nil
}

func (m *MemoryStore) Close() error { return nil }
