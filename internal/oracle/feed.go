// Package oracle provides clients for the native-currency price feeds referenced by the registry.
package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// ErrOracleUnavailable is returned when no price can be produced for a feed reference
var ErrOracleUnavailable = errors.New("price oracle unavailable")

// PriceFeed is the read contract of a price oracle.
// The returned value is a raw integer scaled by Decimals.
type PriceFeed interface {
	Price(ctx context.Context) (*uint256.Int, error)
	Decimals() uint8
	Description() string
}

// Resolver maps the feed reference stored in a registry entry to a client
type Resolver interface {
	Feed(addr common.Address) (PriceFeed, error)
}

// Directory is an in-process Resolver
type Directory struct {
	mu    sync.RWMutex
	feeds map[common.Address]PriceFeed
}

// NewDirectory creates an empty feed directory
func NewDirectory() *Directory {
	return &Directory{feeds: make(map[common.Address]PriceFeed)}
}

// Register binds a feed to an address, replacing any previous binding
func (d *Directory) Register(addr common.Address, feed PriceFeed) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.feeds[addr] = feed
	logrus.WithFields(logrus.Fields{
		"address":     addr.Hex(),
		"description": feed.Description(),
		"decimals":    feed.Decimals(),
	}).Info("Registered price feed")
}

// Feed resolves an address; the zero address never resolves
func (d *Directory) Feed(addr common.Address) (PriceFeed, error) {
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("%w: price feed not set", ErrOracleUnavailable)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	feed, ok := d.feeds[addr]
	if !ok {
		return nil, fmt.Errorf("%w: no feed at %s", ErrOracleUnavailable, addr.Hex())
	}
	return feed, nil
}

// Len returns the number of registered feeds
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.feeds)
}

// Addresses returns the registered feed addresses in ascending order
func (d *Directory) Addresses() []common.Address {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]common.Address, 0, len(d.feeds))
	for addr := range d.feeds {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// StaticFeed holds a price pushed by an operator
type StaticFeed struct {
	mu          sync.RWMutex
	price       *uint256.Int
	decimals    uint8
	description string
}

// NewStaticFeed creates a feed with no price yet
func NewStaticFeed(decimals uint8, description string) *StaticFeed {
	return &StaticFeed{decimals: decimals, description: description}
}

// UpdatePrice replaces the current price
func (f *StaticFeed) UpdatePrice(price *uint256.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = new(uint256.Int).Set(price)
}

// Price returns a copy of the current price
func (f *StaticFeed) Price(_ context.Context) (*uint256.Int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.price == nil {
		return nil, fmt.Errorf("%s: no price published", f.description)
	}
	return new(uint256.Int).Set(f.price), nil
}

func (f *StaticFeed) Decimals() uint8     { return f.decimals }
func (f *StaticFeed) Description() string { return f.description }
