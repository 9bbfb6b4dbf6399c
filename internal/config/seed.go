package config

import (
	"context"
	"fmt"
	"os"

	"github.com/Emmet-Finance/Bridge-Data/internal/model"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Seed is the initial registry content loaded from a YAML file
type Seed struct {
	Feeds      []types.FeedConfig `yaml:"feeds"`
	Chains     []ChainSeed        `yaml:"chains"`
	Tokens     []TokenSeed        `yaml:"tokens"`
	Strategies []StrategySeed     `yaml:"strategies"`
}

// ChainSeed is one chain entry of the seed
type ChainSeed struct {
	ChainID         types.ChainID `yaml:"chainId"`
	model.ChainSpec `yaml:",inline"`
}

// TokenSeed is one token entry of the seed
type TokenSeed struct {
	Symbol          string `yaml:"symbol"`
	model.TokenSpec `yaml:",inline"`
}

// StrategySeed is one route of the seed. Steps are names ("LPRelease") or numbers ("0x08").
type StrategySeed struct {
	model.StrategyKey `yaml:",inline"`
	Foreign           []string `yaml:"foreign"`
	Incoming          []string `yaml:"incoming"`
	Local             []string `yaml:"local"`
}

// Applier receives the seed content
type Applier interface {
	SetChains(ctx context.Context, caller common.Address, chainIDs []types.ChainID, entries []model.ChainEntry) error
	SetToken(ctx context.Context, caller common.Address, symbol string, target common.Address,
		tokenDecimals, priceDecimals uint8, priceFeed common.Address) error
	SetStrategies(ctx context.Context, caller common.Address, chainID types.ChainID, fromToken, toToken string,
		foreign, incoming, local []types.StepCode) error
}

// LoadSeed reads and parses a seed file
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses seed YAML
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	return &seed, nil
}

type preparedStrategy struct {
	key   model.StrategyKey
	entry model.StrategyEntry
}

// Apply writes the seed through a as caller. Every entry is converted before the
// first write, so a malformed seed changes nothing.
func (s *Seed) Apply(ctx context.Context, a Applier, caller common.Address) error {
	ids := make([]types.ChainID, 0, len(s.Chains))
	entries := make([]model.ChainEntry, 0, len(s.Chains))
	for _, c := range s.Chains {
		e, err := c.Entry()
		if err != nil {
			return fmt.Errorf("chain %d: %w", c.ChainID, err)
		}
		ids = append(ids, c.ChainID)
		entries = append(entries, e)
	}

	tokens := make([]model.TokenEntry, 0, len(s.Tokens))
	for _, t := range s.Tokens {
		if t.Symbol == "" {
			return fmt.Errorf("token without symbol")
		}
		e, err := t.Entry()
		if err != nil {
			return fmt.Errorf("token %s: %w", t.Symbol, err)
		}
		tokens = append(tokens, e)
	}

	strategies := make([]preparedStrategy, 0, len(s.Strategies))
	for _, st := range s.Strategies {
		var (
			p   = preparedStrategy{key: st.StrategyKey}
			err error
		)
		if p.entry.Foreign, err = types.ParseSteps(st.Foreign); err != nil {
			return fmt.Errorf("strategy %s: %w", st.StrategyKey, err)
		}
		if p.entry.Incoming, err = types.ParseSteps(st.Incoming); err != nil {
			return fmt.Errorf("strategy %s: %w", st.StrategyKey, err)
		}
		if p.entry.Local, err = types.ParseSteps(st.Local); err != nil {
			return fmt.Errorf("strategy %s: %w", st.StrategyKey, err)
		}
		strategies = append(strategies, p)
	}

	if len(ids) > 0 {
		if err := a.SetChains(ctx, caller, ids, entries); err != nil {
			return err
		}
	}
	for i, t := range s.Tokens {
		e := tokens[i]
		if err := a.SetToken(ctx, caller, t.Symbol, e.Target, e.TokenDecimals, e.PriceDecimals, e.PriceFeed); err != nil {
			return err
		}
	}
	for _, p := range strategies {
		if err := a.SetStrategies(ctx, caller, p.key.ChainID, p.key.FromToken, p.key.ToToken,
			p.entry.Foreign, p.entry.Incoming, p.entry.Local); err != nil {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"chains":     len(ids),
		"tokens":     len(tokens),
		"strategies": len(strategies),
	}).Info("Applied registry seed")
	return nil
}
