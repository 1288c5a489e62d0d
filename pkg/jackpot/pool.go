package jackpot

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/brightspin-gaming/slot-engine/game"
)

// Pool is one game's progressive jackpot. Many sessions contribute to and
// draw from the same pool concurrently, so every read-modify-write happens
// under the pool's own lock, independent of any per-session lock.
type Pool struct {
	gameID string

	mu     sync.Mutex
	amount decimal.Decimal
	dirty  bool

	seed             decimal.Decimal
	contributionRate decimal.Decimal
	payoutFraction   decimal.Decimal
}

// NewPool seeds a pool from the game's jackpot configuration.
func NewPool(gameID string, cfg game.JackpotConfig) *Pool {
	seed := decimal.NewFromFloat(cfg.SeedAmount)
	return &Pool{
		gameID:           gameID,
		amount:           seed,
		seed:             seed,
		contributionRate: decimal.NewFromFloat(cfg.ContributionRate),
		payoutFraction:   decimal.NewFromFloat(cfg.PayoutFraction),
	}
}

// GameID returns the owning game.
func (p *Pool) GameID() string {
	return p.gameID
}

// Amount returns the current pool value.
func (p *Pool) Amount() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.amount
}

// Contribute grows the pool by the configured fraction of a wager and
// returns the new pool value. Called on every spin regardless of outcome.
func (p *Pool) Contribute(bet decimal.Decimal) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.amount = p.amount.Add(bet.Mul(p.contributionRate))
	p.dirty = true
	return p.amount
}

// TryAward pays out the configured fraction of the pool, floored to a whole
// currency unit, and deducts it. The award can never exceed the pool value
// at award time and the pool can never go negative; a pool too small to
// yield a whole unit awards nothing.
func (p *Pool) TryAward() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	award := p.amount.Mul(p.payoutFraction).Floor()
	if !award.IsPositive() || award.GreaterThan(p.amount) {
		return decimal.Zero
	}
	p.amount = p.amount.Sub(award)
	p.dirty = true
	return award
}

// Restore overwrites the pool value from persisted state at startup.
// Negative persisted values are clamped to the seed.
func (p *Pool) Restore(amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if amount.IsNegative() {
		amount = p.seed
	}
	p.amount = amount
	p.dirty = false
}

// snapshot returns the current value and whether it changed since the last
// flush, clearing the dirty flag when take is set.
func (p *Pool) snapshot(take bool) (decimal.Decimal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dirty := p.dirty
	if take {
		p.dirty = false
	}
	return p.amount, dirty
}
