package wallet

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryGateway is an in-process Gateway for tests and the offline
// simulator. It enforces the same contract as the real wallet: deltas are
// atomic and a balance can never go below zero.
type MemoryGateway struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal

	failErr   error
	failCount int
	failHook  func(reason string) error
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{balances: make(map[string]decimal.Decimal)}
}

func key(userID string, currency Currency) string {
	return userID + ":" + string(currency)
}

// SetBalance seeds a balance directly, bypassing delta bookkeeping.
func (g *MemoryGateway) SetBalance(userID string, currency Currency, amount decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[key(userID, currency)] = amount
}

func (g *MemoryGateway) GetBalance(_ context.Context, userID string, currency Currency) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balances[key(userID, currency)], nil
}

func (g *MemoryGateway) ApplyDelta(_ context.Context, userID string, currency Currency, delta decimal.Decimal, reason string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failCount > 0 {
		g.failCount--
		return decimal.Zero, g.failErr
	}
	if g.failHook != nil {
		if err := g.failHook(reason); err != nil {
			return decimal.Zero, err
		}
	}

	k := key(userID, currency)
	next := g.balances[k].Add(delta)
	if next.IsNegative() {
		return decimal.Zero, ErrInsufficientFunds
	}
	g.balances[k] = next
	return next, nil
}

// FailNext makes the next n ApplyDelta calls return err, simulating a
// wallet outage in tests.
func (g *MemoryGateway) FailNext(n int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failCount = n
	g.failErr = err
}

// FailWhen installs a hook consulted on every ApplyDelta; a non-nil return
// fails that call. Pass nil to clear.
func (g *MemoryGateway) FailWhen(hook func(reason string) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failHook = hook
}
