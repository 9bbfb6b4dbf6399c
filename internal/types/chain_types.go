// Package types contains shared type definitions used across multiple packages
package types

import (
	"errors"
	"fmt"
	"strconv"
)

// ChainID is the numeric identifier of a blockchain network.
// Non-EVM networks use identifiers assigned by the bridge (TON is 65534).
type ChainID = uint64

// Well-known chain identifiers
const (
	ChainEthereum  ChainID = 1
	ChainOptimism  ChainID = 10
	ChainBSC       ChainID = 56
	ChainGnosis    ChainID = 100
	ChainPolygon   ChainID = 137
	ChainFire      ChainID = 995
	ChainBase      ChainID = 8453
	ChainArbitrum  ChainID = 42161
	ChainAvalanche ChainID = 43114
	ChainTON       ChainID = 65534
)

// StepCode names one atomic bridging action inside a strategy
type StepCode uint8

// Bridging steps
const (
	StepNone StepCode = 0x00

	// CCTP
	StepCCTPBurn  StepCode = 0x01
	StepCCTPClaim StepCode = 0x02

	// Lock and mint
	StepLock   StepCode = 0x03
	StepMint   StepCode = 0x04
	StepBurn   StepCode = 0x05
	StepUnlock StepCode = 0x06

	// Liquidity
	StepLPStake   StepCode = 0x07
	StepLPRelease StepCode = 0x08

	// Swaps
	StepSwap1 StepCode = 0x09
	StepSwap2 StepCode = 0x0a
	StepSwap3 StepCode = 0x0b
	StepSwap4 StepCode = 0x0c
	StepSwap5 StepCode = 0x0d
	StepSwap6 StepCode = 0x0e
)

// ErrUnknownStepCode is returned when a step code has no meaning for the requested operation
var ErrUnknownStepCode = errors.New("unknown step code")

var stepNames = map[StepCode]string{
	StepNone:      "None",
	StepCCTPBurn:  "CCTPBurn",
	StepCCTPClaim: "CCTPClaim",
	StepLock:      "Lock",
	StepMint:      "Mint",
	StepBurn:      "Burn",
	StepUnlock:    "Unlock",
	StepLPStake:   "LPStake",
	StepLPRelease: "LPRelease",
	StepSwap1:     "Swap1",
	StepSwap2:     "Swap2",
	StepSwap3:     "Swap3",
	StepSwap4:     "Swap4",
	StepSwap5:     "Swap5",
	StepSwap6:     "Swap6",
}

// IsDefined reports whether the code belongs to the bridging step enumeration
func (s StepCode) IsDefined() bool {
	_, ok := stepNames[s]
	return ok
}

// HasForeignFee reports whether a chain fee table carries a component for this step
func (s StepCode) HasForeignFee() bool {
	switch s {
	case StepCCTPClaim, StepMint, StepUnlock, StepLPRelease,
		StepSwap1, StepSwap2, StepSwap3, StepSwap4, StepSwap5, StepSwap6:
		return true
	}
	return false
}

func (s StepCode) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("StepCode(0x%02x)", uint8(s))
}

// ParseStepCode accepts either a step name ("LPRelease") or a number ("8", "0x08")
func ParseStepCode(raw string) (StepCode, error) {
	for code, name := range stepNames {
		if name == raw {
			return code, nil
		}
	}
	v, err := strconv.ParseUint(raw, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid step code %q", raw)
	}
	return StepCode(v), nil
}

// ParseSteps converts step names or numbers to codes
func ParseSteps(raw []string) ([]StepCode, error) {
	out := make([]StepCode, 0, len(raw))
	for _, r := range raw {
		step, err := ParseStepCode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, nil
}

// MarshalJSON encodes the code as a number, so step lists encode as arrays
func (s StepCode) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(s), 10)), nil
}

// UnmarshalJSON accepts a number or a string understood by ParseStepCode
func (s *StepCode) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	step, err := ParseStepCode(raw)
	if err != nil {
		return err
	}
	*s = step
	return nil
}

// FeedConfig describes how to reach a price feed by its registry address.
// Feeds without a URL are static and start at Price.
type FeedConfig struct {
	Address     string `json:"address" yaml:"address"`
	URL         string `json:"url,omitempty" yaml:"url,omitempty"`
	Decimals    uint8  `json:"decimals" yaml:"decimals"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	APIKey      string `json:"api_key,omitempty" yaml:"apiKey,omitempty"`
	Price       string `json:"price,omitempty" yaml:"price,omitempty"`
}
