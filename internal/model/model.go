// Package model defines the core data structures for the bridge fee registry.
package model

import (
	"bytes"
	"fmt"

	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Fixed widths of the chain label fields
const (
	NameLength  = 16
	FlagsLength = 11
)

// ChainEntry is the fee table and metadata of one chain.
// Fee components are denominated in the smallest unit of that chain's native currency.
type ChainEntry struct {
	CCTPClaim uint256.Int
	LPRelease uint256.Int
	Mint      uint256.Int
	Unlock    uint256.Int
	Swap1     uint256.Int
	Swap2     uint256.Int
	Swap3     uint256.Int
	Swap4     uint256.Int
	Swap5     uint256.Int
	Swap6     uint256.Int

	// Name is a display label, no uniqueness is enforced
	Name [NameLength]byte

	// TokenDecimals is the precision of the native currency
	TokenDecimals uint8

	// Flags is owned by the orchestrator and opaque here
	Flags [FlagsLength]byte

	// PriceFeed references the oracle for the native currency; may be zero
	PriceFeed common.Address
}

// Fee returns the fee component designated by a step code
func (c ChainEntry) Fee(step types.StepCode) (uint256.Int, error) {
	switch step {
	case types.StepCCTPClaim:
		return c.CCTPClaim, nil
	case types.StepMint:
		return c.Mint, nil
	case types.StepUnlock:
		return c.Unlock, nil
	case types.StepLPRelease:
		return c.LPRelease, nil
	case types.StepSwap1:
		return c.Swap1, nil
	case types.StepSwap2:
		return c.Swap2, nil
	case types.StepSwap3:
		return c.Swap3, nil
	case types.StepSwap4:
		return c.Swap4, nil
	case types.StepSwap5:
		return c.Swap5, nil
	case types.StepSwap6:
		return c.Swap6, nil
	}
	return uint256.Int{}, fmt.Errorf("%w: %s has no foreign fee", types.ErrUnknownStepCode, step)
}

// NameString returns the label without its zero padding
func (c ChainEntry) NameString() string {
	return string(bytes.TrimRight(c.Name[:], "\x00"))
}

// TokenEntry is the metadata of one token symbol
type TokenEntry struct {
	Target        common.Address
	TokenDecimals uint8
	PriceDecimals uint8
	PriceFeed     common.Address
}

// StrategyKey identifies a route
type StrategyKey struct {
	ChainID   types.ChainID `json:"chainId" yaml:"chainId"`
	FromToken string        `json:"fromToken" yaml:"fromToken"`
	ToToken   string        `json:"toToken" yaml:"toToken"`
}

func (k StrategyKey) String() string {
	return fmt.Sprintf("%d:%s:%s", k.ChainID, k.FromToken, k.ToToken)
}

// StrategyEntry is the ordered step plan of a route, split by phase
type StrategyEntry struct {
	Foreign  []types.StepCode
	Incoming []types.StepCode
	Local    []types.StepCode
}

// Clone returns a deep copy; nil phases become empty slices
func (s StrategyEntry) Clone() StrategyEntry {
	return StrategyEntry{
		Foreign:  cloneSteps(s.Foreign),
		Incoming: cloneSteps(s.Incoming),
		Local:    cloneSteps(s.Local),
	}
}

func cloneSteps(in []types.StepCode) []types.StepCode {
	out := make([]types.StepCode, len(in))
	copy(out, in)
	return out
}

// NewName pads a label to the fixed name width
func NewName(label string) ([NameLength]byte, error) {
	var out [NameLength]byte
	if len(label) > NameLength {
		return out, fmt.Errorf("name %q exceeds %d bytes", label, NameLength)
	}
	copy(out[:], label)
	return out, nil
}
