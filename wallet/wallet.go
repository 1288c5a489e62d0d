package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency is a tagged currency code. Using a named type instead of free
// strings keeps invalid currencies out of wallet calls at compile time.
type Currency string

const (
	// CurrencyGC is gold coins, the play-money currency.
	CurrencyGC Currency = "GC"
	// CurrencySC is sweeps coins, the promotional currency.
	CurrencySC Currency = "SC"
	// CurrencyUSD is used by the offline simulator only.
	CurrencyUSD Currency = "USD"
)

// ParseCurrency validates a currency code from the transport layer.
func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(s); c {
	case CurrencyGC, CurrencySC, CurrencyUSD:
		return c, nil
	default:
		return "", fmt.Errorf("unknown currency %q", s)
	}
}

func (c Currency) String() string {
	return string(c)
}

// ErrInsufficientFunds is returned by ApplyDelta when a debit would take
// the balance below zero. Callers distinguish it from transport failures,
// which are retryable.
var ErrInsufficientFunds = errors.New("wallet: insufficient funds")

// Gateway is the system of record for durable balances. The session ledger
// reads from and writes through it but never owns it. Both operations are
// expected to be atomic on the wallet side.
type Gateway interface {
	GetBalance(ctx context.Context, userID string, currency Currency) (decimal.Decimal, error)

	// ApplyDelta atomically adjusts a balance by delta (negative for bets,
	// positive for wins) and returns the new balance. The reason string is
	// recorded by the wallet for reconciliation.
	ApplyDelta(ctx context.Context, userID string, currency Currency, delta decimal.Decimal, reason string) (decimal.Decimal, error)
}
