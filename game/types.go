package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Rarity classifies a symbol's drop class.
type Rarity int

const (
	RarityCommon Rarity = iota
	RarityRare
	RarityEpic
	RarityLegendary
)

var rarityNames = map[Rarity]string{
	RarityCommon:    "common",
	RarityRare:      "rare",
	RarityEpic:      "epic",
	RarityLegendary: "legendary",
}

func (r Rarity) String() string {
	if name, ok := rarityNames[r]; ok {
		return name
	}
	return fmt.Sprintf("rarity(%d)", int(r))
}

// ParseRarity parses a rarity name as it appears in game definition files.
func ParseRarity(s string) (Rarity, error) {
	for r, name := range rarityNames {
		if name == s {
			return r, nil
		}
	}
	return RarityCommon, fmt.Errorf("unknown rarity %q", s)
}

// MarshalJSON renders the rarity name.
func (r Rarity) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON accepts the rarity name.
func (r *Rarity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRarity(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Symbol represents a symbol on the game board
type Symbol struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Value  int    `json:"value"`
	Rarity Rarity `json:"rarity"`
	Weight int    `json:"weight"`
}

// Position is a single cell address on the grid.
type Position struct {
	Reel int `json:"reel"`
	Row  int `json:"row"`
}

// Grid is one spin's board: symbol IDs indexed [reel][row]. A grid is owned
// by the spin that produced it and discarded after evaluation; only the
// SpinResult snapshot survives.
type Grid [][]int

// At returns the symbol ID at the given cell.
func (g Grid) At(reel, row int) int {
	return g[reel][row]
}

// Count returns how many cells hold the given symbol anywhere on the grid.
func (g Grid) Count(symbolID int) int {
	n := 0
	for _, reel := range g {
		for _, id := range reel {
			if id == symbolID {
				n++
			}
		}
	}
	return n
}

// Clone returns an independent copy, used to snapshot the grid into a SpinResult.
func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for i, reel := range g {
		out[i] = make([]int, len(reel))
		copy(out[i], reel)
	}
	return out
}

// PaylineWin represents a winning line on the game board
type PaylineWin struct {
	LineID     int             `json:"lineId"`
	SymbolID   int             `json:"symbol"`
	Count      int             `json:"sameItem"`
	Multiplier decimal.Decimal `json:"multiplier"`
	WinAmount  decimal.Decimal `json:"winAmount"`
	Positions  []Position      `json:"winPositions,omitempty"`
}

// Features carries the per-spin feature detection results.
type Features struct {
	ScatterCount       int  `json:"scatterCount"`
	WildCount          int  `json:"wildCount"`
	FreeSpinsAwarded   int  `json:"freeSpinsAwarded"`
	FreeSpinMultiplier int  `json:"freeSpinMultiplier,omitempty"`
	JackpotEligible    bool `json:"-"`
}

// SpinResult represents the outcome of a single spin. Created once per spin,
// immutable thereafter, persisted for audit.
type SpinResult struct {
	SpinID           string          `json:"spinId"`
	GameID           string          `json:"gameId"`
	SessionID        string          `json:"sessionId,omitempty"`
	Grid             Grid            `json:"reels"`
	Winlines         []PaylineWin    `json:"winlines,omitempty"`
	TotalWin         decimal.Decimal `json:"totalWin"`
	TotalBet         decimal.Decimal `json:"totalBet"`
	Multiplier       int             `json:"multiplier"`
	ScatterCount     int             `json:"scatterCount,omitempty"`
	WildCount        int             `json:"wildCount,omitempty"`
	FreeSpinsAwarded int             `json:"freeSpinsAwarded,omitempty"`
	FreeSpin         bool            `json:"freeSpin,omitempty"`
	JackpotHit       bool            `json:"jackpotHit,omitempty"`
	JackpotWin       decimal.Decimal `json:"jackpotWin"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// ToJSON serializes the spin result for the audit store.
func (sr *SpinResult) ToJSON() ([]byte, error) {
	return json.Marshal(sr)
}

// SpinResultFromJSON deserializes an audited spin result.
func SpinResultFromJSON(data []byte) (*SpinResult, error) {
	var sr SpinResult
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, err
	}
	return &sr, nil
}

// DisplayMultiplier computes the client-facing win multiplier. This is a
// display convenience, not a financial calculation.
func DisplayMultiplier(totalWin, bet decimal.Decimal) int {
	if totalWin.LessThanOrEqual(decimal.Zero) || bet.LessThanOrEqual(decimal.Zero) {
		return 1
	}
	return int(totalWin.Div(bet).IntPart()) + 1
}
