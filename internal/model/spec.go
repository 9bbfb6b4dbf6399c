package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// ChainSpec is the wire and seed-file form of a ChainEntry.
// Amounts are decimal strings so values above 2^53 survive JSON clients.
type ChainSpec struct {
	CCTPClaim     string `json:"cctpClaim" yaml:"cctpClaim"`
	LPRelease     string `json:"lpRelease" yaml:"lpRelease"`
	Mint          string `json:"mint" yaml:"mint"`
	Unlock        string `json:"unlock" yaml:"unlock"`
	Swap1         string `json:"swap1" yaml:"swap1"`
	Swap2         string `json:"swap2" yaml:"swap2"`
	Swap3         string `json:"swap3" yaml:"swap3"`
	Swap4         string `json:"swap4" yaml:"swap4"`
	Swap5         string `json:"swap5" yaml:"swap5"`
	Swap6         string `json:"swap6" yaml:"swap6"`
	Name          string `json:"name" yaml:"name"`
	TokenDecimals uint8  `json:"tokenDecimals" yaml:"tokenDecimals"`
	Flags         string `json:"flags" yaml:"flags"`
	PriceFeed     string `json:"priceFeed" yaml:"priceFeed"`
}

// Entry converts to a ChainEntry, rejecting malformed amounts, labels and addresses
func (s ChainSpec) Entry() (ChainEntry, error) {
	var (
		e   ChainEntry
		err error
	)
	amounts := []struct {
		field string
		raw   string
		dst   *uint256.Int
	}{
		{"cctpClaim", s.CCTPClaim, &e.CCTPClaim},
		{"lpRelease", s.LPRelease, &e.LPRelease},
		{"mint", s.Mint, &e.Mint},
		{"unlock", s.Unlock, &e.Unlock},
		{"swap1", s.Swap1, &e.Swap1},
		{"swap2", s.Swap2, &e.Swap2},
		{"swap3", s.Swap3, &e.Swap3},
		{"swap4", s.Swap4, &e.Swap4},
		{"swap5", s.Swap5, &e.Swap5},
		{"swap6", s.Swap6, &e.Swap6},
	}
	for _, a := range amounts {
		if err := ParseAmount(a.raw, a.dst); err != nil {
			return ChainEntry{}, fmt.Errorf("%s: %w", a.field, err)
		}
	}

	if e.Name, err = NewName(s.Name); err != nil {
		return ChainEntry{}, err
	}
	if s.Flags != "" {
		raw, err := hexutil.Decode(s.Flags)
		if err != nil {
			return ChainEntry{}, fmt.Errorf("flags: %w", err)
		}
		if len(raw) > FlagsLength {
			return ChainEntry{}, fmt.Errorf("flags exceed %d bytes", FlagsLength)
		}
		copy(e.Flags[:], raw)
	}
	if e.PriceFeed, err = ParseAddress(s.PriceFeed); err != nil {
		return ChainEntry{}, fmt.Errorf("priceFeed: %w", err)
	}
	e.TokenDecimals = s.TokenDecimals
	return e, nil
}

// NewChainSpec renders an entry in wire form
func NewChainSpec(e ChainEntry) ChainSpec {
	return ChainSpec{
		CCTPClaim:     e.CCTPClaim.Dec(),
		LPRelease:     e.LPRelease.Dec(),
		Mint:          e.Mint.Dec(),
		Unlock:        e.Unlock.Dec(),
		Swap1:         e.Swap1.Dec(),
		Swap2:         e.Swap2.Dec(),
		Swap3:         e.Swap3.Dec(),
		Swap4:         e.Swap4.Dec(),
		Swap5:         e.Swap5.Dec(),
		Swap6:         e.Swap6.Dec(),
		Name:          e.NameString(),
		TokenDecimals: e.TokenDecimals,
		Flags:         hexutil.Encode(e.Flags[:]),
		PriceFeed:     e.PriceFeed.Hex(),
	}
}

// TokenSpec is the wire and seed-file form of a TokenEntry
type TokenSpec struct {
	Target        string `json:"target" yaml:"target"`
	TokenDecimals uint8  `json:"tokenDecimals" yaml:"tokenDecimals"`
	PriceDecimals uint8  `json:"priceDecimals" yaml:"priceDecimals"`
	PriceFeed     string `json:"priceFeed" yaml:"priceFeed"`
}

// Entry converts to a TokenEntry
func (s TokenSpec) Entry() (TokenEntry, error) {
	target, err := ParseAddress(s.Target)
	if err != nil {
		return TokenEntry{}, fmt.Errorf("target: %w", err)
	}
	feed, err := ParseAddress(s.PriceFeed)
	if err != nil {
		return TokenEntry{}, fmt.Errorf("priceFeed: %w", err)
	}
	return TokenEntry{
		Target:        target,
		TokenDecimals: s.TokenDecimals,
		PriceDecimals: s.PriceDecimals,
		PriceFeed:     feed,
	}, nil
}

// NewTokenSpec renders an entry in wire form
func NewTokenSpec(e TokenEntry) TokenSpec {
	return TokenSpec{
		Target:        e.Target.Hex(),
		TokenDecimals: e.TokenDecimals,
		PriceDecimals: e.PriceDecimals,
		PriceFeed:     e.PriceFeed.Hex(),
	}
}

// ParseAmount reads a decimal amount; the empty string is zero
func ParseAmount(raw string, dst *uint256.Int) error {
	if raw == "" {
		dst.Clear()
		return nil
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	dst.Set(v)
	return nil
}

// ParseAddress reads a hex address; the empty string is the zero address
func ParseAddress(raw string) (common.Address, error) {
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}
