// Package circuitbreaker protects fee estimates against erroneous price feed readings.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, prices are rejected
	StateHalfOpen              // Testing if the feed has recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is returned while the breaker rejects readings
var ErrOpen = errors.New("circuit breaker open")

const basisPoints = 10_000

// Thresholds defines the limits that will trigger the circuit breaker
type Thresholds struct {
	// MaxChangeBps is the largest accepted move between consecutive readings,
	// in basis points of the previous reading. Zero disables the check.
	MaxChangeBps uint64 `json:"max_change_bps"`

	// RejectZero trips on a zero price
	RejectZero bool `json:"reject_zero"`
}

// CircuitBreaker watches the readings of one price feed
type CircuitBreaker struct {
	thresholds Thresholds

	state    State
	lastTrip time.Time

	// Duration before a recovery attempt
	resetDelay time.Duration

	mu sync.RWMutex

	// Last accepted reading, used for change comparison
	lastGood *uint256.Int

	successCount     int
	successThreshold int

	onTripCallback func(reason string, price *uint256.Int)
}

// New creates a new CircuitBreaker with the provided thresholds
func New(t Thresholds) *CircuitBreaker {
	return &CircuitBreaker{
		thresholds:       t,
		state:            StateClosed,
		resetDelay:       5 * time.Minute,
		successThreshold: 3,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of accepted readings needed to close the circuit
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	cb.successThreshold = threshold
	return cb
}

// WithTripCallback sets a callback function that is called when the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(reason string, price *uint256.Int)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// Check evaluates a reading. While open it rejects every reading until the
// reset delay has elapsed; a reading violating the thresholds trips the circuit.
func (cb *CircuitBreaker) Check(price *uint256.Int) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastTrip) <= cb.resetDelay {
			return ErrOpen
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
		logrus.Info("Circuit breaker half-open: testing feed recovery")
	}

	if price == nil || (cb.thresholds.RejectZero && price.IsZero()) {
		reason := "zero price reading"
		cb.trip(reason, price)
		return fmt.Errorf("%w: %s", ErrOpen, reason)
	}

	// In half-open state the previous reading is stale, so only closed
	// state compares against it
	if cb.state == StateClosed && cb.lastGood != nil && !cb.lastGood.IsZero() && cb.thresholds.MaxChangeBps > 0 {
		if bps := changeBps(cb.lastGood, price); bps > cb.thresholds.MaxChangeBps {
			reason := fmt.Sprintf("price change too drastic: %d bps (threshold: %d bps)", bps, cb.thresholds.MaxChangeBps)
			cb.trip(reason, price)
			return fmt.Errorf("%w: %s", ErrOpen, reason)
		}
	}

	cb.lastGood = new(uint256.Int).Set(price)

	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			logrus.Info("Circuit breaker closed: feed has recovered")
		}
	}
	return nil
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forcibly resets the circuit breaker to closed state. The next reading
// becomes the new baseline.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.successCount = 0
	cb.lastGood = nil
	logrus.Info("Circuit breaker manually reset to closed state")
}

// LastGoodPrice returns a copy of the last accepted reading, or nil
func (cb *CircuitBreaker) LastGoodPrice() *uint256.Int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	if cb.lastGood == nil {
		return nil
	}
	return new(uint256.Int).Set(cb.lastGood)
}

// trip sets the circuit breaker to open state with the current time
func (cb *CircuitBreaker) trip(reason string, price *uint256.Int) {
	cb.state = StateOpen
	cb.lastTrip = time.Now()
	logrus.Warnf("Circuit breaker tripped: %s", reason)

	if cb.onTripCallback != nil {
		go cb.onTripCallback(reason, price)
	}
}

// changeBps returns |cur-prev| * 10000 / prev, saturating at MaxUint64
func changeBps(prev, cur *uint256.Int) uint64 {
	diff := new(uint256.Int)
	if cur.Gt(prev) {
		diff.Sub(cur, prev)
	} else {
		diff.Sub(prev, cur)
	}
	scaled, overflow := new(uint256.Int).MulOverflow(diff, uint256.NewInt(basisPoints))
	if overflow {
		return ^uint64(0)
	}
	scaled.Div(scaled, prev)
	if !scaled.IsUint64() {
		return ^uint64(0)
	}
	return scaled.Uint64()
}
