// Package registry holds the chain, token and strategy tables of the bridge
// together with the admin guard protecting them.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Emmet-Finance/Bridge-Data/internal/access"
	"github.com/Emmet-Finance/Bridge-Data/internal/events"
	"github.com/Emmet-Finance/Bridge-Data/internal/model"
	"github.com/Emmet-Finance/Bridge-Data/internal/store"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/Emmet-Finance/Bridge-Data/internal/validation"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Options configures a Registry
type Options struct {
	// Store persists writes; defaults to a MemoryStore
	Store store.Store

	// Validation applies to strategy writes
	Validation validation.ValidationOptions

	// Events receives a notification after each committed write; optional
	Events events.Sink
}

type chainRecord struct {
	entry   model.ChainEntry
	present bool
}

type tokenRecord struct {
	entry   model.TokenEntry
	present bool
}

type strategyRecord struct {
	entry   model.StrategyEntry
	present bool
}

// Registry is the fee registry of one bridge deployment.
// Writes are serialized and all-or-nothing; reads observe the last committed state.
type Registry struct {
	selfChainID types.ChainID
	selfSymbol  string

	mu         sync.RWMutex
	guard      *access.Guard
	chains     map[types.ChainID]chainRecord
	tokens     map[string]tokenRecord
	strategies map[model.StrategyKey]strategyRecord

	store      store.Store
	validation validation.ValidationOptions
	events     events.Sink

	// restored is set when the store held chains, tokens or strategies at start
	restored bool
}

// New creates a registry owned by (selfChainID, selfSymbol) and restores any
// state held by the store. A persisted admin takes precedence over admin.
func New(ctx context.Context, selfChainID types.ChainID, selfSymbol string, admin common.Address, opts Options) (*Registry, error) {
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}

	snap, err := opts.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to restore registry: %w", err)
	}

	if snap.Admin != (common.Address{}) {
		if snap.Admin != admin {
			logrus.WithFields(logrus.Fields{
				"configured": admin.Hex(),
				"persisted":  snap.Admin.Hex(),
			}).Warn("Using persisted admin")
		}
		admin = snap.Admin
	} else if err := opts.Store.SaveAdmin(ctx, admin); err != nil {
		return nil, fmt.Errorf("failed to persist admin: %w", err)
	}

	r := &Registry{
		selfChainID: selfChainID,
		selfSymbol:  selfSymbol,
		guard:       access.NewGuard(admin),
		chains:      make(map[types.ChainID]chainRecord, len(snap.Chains)),
		tokens:      make(map[string]tokenRecord, len(snap.Tokens)),
		strategies:  make(map[model.StrategyKey]strategyRecord, len(snap.Strategies)),
		store:       opts.Store,
		validation:  opts.Validation,
		events:      opts.Events,
		restored:    len(snap.Chains)+len(snap.Tokens)+len(snap.Strategies) > 0,
	}
	for id, e := range snap.Chains {
		r.chains[id] = chainRecord{entry: e, present: true}
	}
	for sym, e := range snap.Tokens {
		r.tokens[sym] = tokenRecord{entry: e, present: true}
	}
	for key, e := range snap.Strategies {
		r.strategies[key] = strategyRecord{entry: e.Clone(), present: true}
	}

	logrus.WithFields(logrus.Fields{
		"self_chain_id": selfChainID,
		"self_symbol":   selfSymbol,
		"admin":         admin.Hex(),
		"chains":        len(r.chains),
		"tokens":        len(r.tokens),
		"strategies":    len(r.strategies),
	}).Info("Registry initialized")
	return r, nil
}

// Restored reports whether New found registry state in the store
func (r *Registry) Restored() bool { return r.restored }

// SelfChainID is the chain whose native currency estimates are expressed in
func (r *Registry) SelfChainID() types.ChainID { return r.selfChainID }

// SelfSymbol is the native currency symbol of the owning chain
func (r *Registry) SelfSymbol() string { return r.selfSymbol }

// Summary reports the size of each table
type Summary struct {
	SelfChainID types.ChainID   `json:"selfChainId"`
	SelfSymbol  string          `json:"selfSymbol"`
	Admin       string          `json:"admin"`
	Chains      []types.ChainID `json:"chains"`
	Tokens      []string        `json:"tokens"`
	Strategies  int             `json:"strategies"`
}

// Summary returns the registered chain ids and token symbols in sorted order
func (r *Registry) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Summary{
		SelfChainID: r.selfChainID,
		SelfSymbol:  r.selfSymbol,
		Admin:       r.guard.Admin().Hex(),
		Chains:      make([]types.ChainID, 0, len(r.chains)),
		Tokens:      make([]string, 0, len(r.tokens)),
		Strategies:  len(r.strategies),
	}
	for id := range r.chains {
		s.Chains = append(s.Chains, id)
	}
	for sym := range r.tokens {
		s.Tokens = append(s.Tokens, sym)
	}
	sort.Slice(s.Chains, func(i, j int) bool { return s.Chains[i] < s.Chains[j] })
	sort.Strings(s.Tokens)
	return s
}

func (r *Registry) publish(typ string, caller common.Address, subject string, data map[string]interface{}) {
	if r.events == nil {
		return
	}
	r.events.Publish(events.Event{
		Type:    typ,
		Time:    time.Now().UTC(),
		Actor:   caller.Hex(),
		Subject: subject,
		Data:    data,
	})
}

func chainSubject(id types.ChainID) string {
	return strconv.FormatUint(id, 10)
}
