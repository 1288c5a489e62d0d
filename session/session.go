package session

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brightspin-gaming/slot-engine/wallet"
)

// State is a session's lifecycle state.
type State int

const (
	StateActive State = iota
	StateEnded
)

func (s State) String() string {
	if s == StateEnded {
		return "ended"
	}
	return "active"
}

// Session is one continuous period of play by one user on one game. The
// balance here is a cache of the wallet's durable balance, reconciled on
// every spin; the wallet stays the source of truth.
//
// All mutable fields are guarded by mu. The ledger holds mu for the whole
// of a spin so a session never processes two spins at once.
type Session struct {
	mu sync.Mutex

	ID       string
	UserID   string
	GameID   string
	Currency wallet.Currency
	State    State

	StartingBalance decimal.Decimal
	Balance         decimal.Decimal
	TotalBet        decimal.Decimal
	TotalWin        decimal.Decimal
	SpinCount       int

	// Free-spin round state. FreeSpinBet is the wager the triggering spin
	// was placed at; free spins evaluate at that stake without charging it.
	FreeSpinsRemaining int
	FreeSpinMultiplier int
	FreeSpinBet        decimal.Decimal

	CreatedAt    time.Time
	LastActivity time.Time
	EndedAt      time.Time
}

// Snapshot is a read-only copy of session state safe to hand to transports.
type Snapshot struct {
	ID                 string          `json:"sessionId"`
	UserID             string          `json:"userId"`
	GameID             string          `json:"gameId"`
	Currency           string          `json:"currency"`
	State              string          `json:"state"`
	StartingBalance    decimal.Decimal `json:"startingBalance"`
	Balance            decimal.Decimal `json:"balance"`
	TotalBet           decimal.Decimal `json:"totalBet"`
	TotalWin           decimal.Decimal `json:"totalWin"`
	SpinCount          int             `json:"spinCount"`
	FreeSpinsRemaining int             `json:"freeSpinsRemaining"`
	CreatedAt          time.Time       `json:"createdAt"`
	LastActivity       time.Time       `json:"lastActivity"`
}

// Snapshot copies the session under its lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:                 s.ID,
		UserID:             s.UserID,
		GameID:             s.GameID,
		Currency:           s.Currency.String(),
		State:              s.State.String(),
		StartingBalance:    s.StartingBalance,
		Balance:            s.Balance,
		TotalBet:           s.TotalBet,
		TotalWin:           s.TotalWin,
		SpinCount:          s.SpinCount,
		FreeSpinsRemaining: s.FreeSpinsRemaining,
		CreatedAt:          s.CreatedAt,
		LastActivity:       s.LastActivity,
	}
}
