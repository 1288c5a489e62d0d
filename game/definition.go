package game

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SymbolConfig holds symbol configuration as it appears in game definition files
type SymbolConfig struct {
	ID     int    `mapstructure:"id" json:"id"`
	Name   string `mapstructure:"name" json:"name"`
	Value  int    `mapstructure:"value" json:"value"`
	Rarity string `mapstructure:"rarity" json:"rarity"`
	Weight int    `mapstructure:"weight" json:"weight"`
}

// ScatterConfig holds the scatter / free-spin feature configuration
type ScatterConfig struct {
	Symbol          int `mapstructure:"symbol" json:"symbol"`
	TriggerCount    int `mapstructure:"trigger_count" json:"triggerCount"`
	SpinsPerScatter int `mapstructure:"spins_per_scatter" json:"spinsPerScatter"`
	Multiplier      int `mapstructure:"multiplier" json:"multiplier"`
}

// JackpotConfig holds the progressive jackpot configuration for a game
type JackpotConfig struct {
	HitProbability   float64 `mapstructure:"hit_probability" json:"hitProbability"`
	ContributionRate float64 `mapstructure:"contribution_rate" json:"contributionRate"`
	PayoutFraction   float64 `mapstructure:"payout_fraction" json:"payoutFraction"`
	SeedAmount       float64 `mapstructure:"seed_amount" json:"seedAmount"`
}

// Definition holds a complete game definition: symbol set, paylines, pay
// table, RTP target and feature configuration. Definitions are static data
// supplied at game-definition time and validated once at load; a definition
// that fails validation never accepts spins.
type Definition struct {
	GameID     string  `mapstructure:"game_id" json:"gameId"`
	GameName   string  `mapstructure:"game_name" json:"gameName"`
	Reels      int     `mapstructure:"reels" json:"reels"`
	Rows       int     `mapstructure:"rows" json:"rows"`
	MinMatch   int     `mapstructure:"min_match" json:"minMatch"`
	RTP        float64 `mapstructure:"rtp" json:"rtp"`
	Volatility string  `mapstructure:"volatility" json:"volatility"`

	Symbols    []SymbolConfig `mapstructure:"symbols" json:"symbols"`
	WildSymbol int            `mapstructure:"wild_symbol" json:"wildSymbol"`
	Scatter    ScatterConfig  `mapstructure:"scatter" json:"scatter"`

	// Paylines: one row index per reel.
	Paylines [][]int `mapstructure:"paylines" json:"paylines"`

	// PayTable: symbol ID -> multipliers indexed by run length - 1.
	// Entries below MinMatch must be zero.
	PayTable map[int][]float64 `mapstructure:"pay_table" json:"payTable"`

	// RunWeights biases the planted run length when the generator decides a
	// spin should win: index 0 weights MinMatch, the last index a full-reel
	// run. Defaults to 70/20/10.
	RunWeights []int `mapstructure:"run_weights" json:"runWeights"`

	MinBet float64 `mapstructure:"min_bet" json:"minBet"`
	MaxBet float64 `mapstructure:"max_bet" json:"maxBet"`

	Jackpot JackpotConfig `mapstructure:"jackpot" json:"jackpot"`
}

// DefaultRunWeights is used when a definition does not set run_weights.
var DefaultRunWeights = []int{70, 20, 10}

// Validate checks the definition's structural invariants. It is called once
// when a game is registered; a validation failure is fatal for that game.
func (d *Definition) Validate() error {
	if d.GameID == "" {
		return fmt.Errorf("game_id is required")
	}
	if d.Reels < 3 || d.Rows < 1 {
		return fmt.Errorf("grid %dx%d is too small", d.Reels, d.Rows)
	}
	if d.RTP <= 0 || d.RTP >= 1 {
		return fmt.Errorf("rtp %v must be in (0,1)", d.RTP)
	}
	if d.MinMatch < 2 || d.MinMatch > d.Reels {
		return fmt.Errorf("min_match %d must be in [2,%d]", d.MinMatch, d.Reels)
	}
	if len(d.Symbols) == 0 {
		return fmt.Errorf("symbol set is empty")
	}

	ids := make(map[int]bool, len(d.Symbols))
	for _, s := range d.Symbols {
		if ids[s.ID] {
			return fmt.Errorf("duplicate symbol id %d", s.ID)
		}
		if s.Weight <= 0 {
			return fmt.Errorf("symbol %d has non-positive weight", s.ID)
		}
		if _, err := ParseRarity(s.Rarity); err != nil {
			return fmt.Errorf("symbol %d: %w", s.ID, err)
		}
		ids[s.ID] = true
	}

	if d.WildSymbol != 0 && !ids[d.WildSymbol] {
		return fmt.Errorf("wild_symbol %d is not in the symbol set", d.WildSymbol)
	}
	if d.Scatter.Symbol != 0 {
		if !ids[d.Scatter.Symbol] {
			return fmt.Errorf("scatter symbol %d is not in the symbol set", d.Scatter.Symbol)
		}
		if d.Scatter.TriggerCount <= 0 || d.Scatter.SpinsPerScatter <= 0 {
			return fmt.Errorf("scatter feature needs positive trigger_count and spins_per_scatter")
		}
	}

	if len(d.Paylines) == 0 {
		return fmt.Errorf("at least one payline is required")
	}
	for i, line := range d.Paylines {
		if len(line) != d.Reels {
			return fmt.Errorf("payline %d has %d positions, want %d", i, len(line), d.Reels)
		}
		for reel, row := range line {
			if row < 0 || row >= d.Rows {
				return fmt.Errorf("payline %d reel %d: row %d out of range", i, reel, row)
			}
		}
	}

	if len(d.PayTable) == 0 {
		return fmt.Errorf("pay table is empty")
	}
	for symbolID, mults := range d.PayTable {
		if !ids[symbolID] {
			return fmt.Errorf("pay table references unknown symbol %d", symbolID)
		}
		if len(mults) > d.Reels {
			return fmt.Errorf("pay table for symbol %d has %d entries, max %d", symbolID, len(mults), d.Reels)
		}
		for i, m := range mults {
			if m < 0 {
				return fmt.Errorf("pay table for symbol %d has negative multiplier", symbolID)
			}
			if i+1 < d.MinMatch && m != 0 {
				return fmt.Errorf("pay table for symbol %d pays below min_match", symbolID)
			}
		}
	}

	if d.RunWeights != nil {
		want := d.Reels - d.MinMatch + 1
		if len(d.RunWeights) != want {
			return fmt.Errorf("run_weights has %d entries, want %d", len(d.RunWeights), want)
		}
		total := 0
		for _, w := range d.RunWeights {
			if w < 0 {
				return fmt.Errorf("run_weights must be non-negative")
			}
			total += w
		}
		if total == 0 {
			return fmt.Errorf("run_weights must not sum to zero")
		}
	}

	if d.Jackpot.HitProbability < 0 || d.Jackpot.HitProbability >= 1 {
		return fmt.Errorf("jackpot hit_probability %v must be in [0,1)", d.Jackpot.HitProbability)
	}
	if d.Jackpot.ContributionRate < 0 || d.Jackpot.ContributionRate > 0.1 {
		return fmt.Errorf("jackpot contribution_rate %v must be in [0,0.1]", d.Jackpot.ContributionRate)
	}
	if d.Jackpot.PayoutFraction < 0 || d.Jackpot.PayoutFraction > 1 {
		return fmt.Errorf("jackpot payout_fraction %v must be in [0,1]", d.Jackpot.PayoutFraction)
	}

	if d.MinBet < 0 || (d.MaxBet != 0 && d.MaxBet < d.MinBet) {
		return fmt.Errorf("bet range [%v,%v] is invalid", d.MinBet, d.MaxBet)
	}

	return nil
}

// runWeights returns the configured run-length weights or the default.
func (d *Definition) runWeights() []int {
	if len(d.RunWeights) > 0 {
		return d.RunWeights
	}
	want := d.Reels - d.MinMatch + 1
	if len(DefaultRunWeights) == want {
		return DefaultRunWeights
	}
	// Grid shapes without three possible run lengths fall back to flat weights.
	flat := make([]int, want)
	for i := range flat {
		flat[i] = 1
	}
	return flat
}

// Multiplier returns the payout multiplier for a run of count identical
// symbols, zero when the run does not pay.
func (d *Definition) Multiplier(symbolID, count int) decimal.Decimal {
	if count < d.MinMatch {
		return decimal.Zero
	}
	mults, ok := d.PayTable[symbolID]
	if !ok || count > len(mults) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(mults[count-1])
}

// SymbolByID returns the symbol config for an ID.
func (d *Definition) SymbolByID(id int) (SymbolConfig, bool) {
	for _, s := range d.Symbols {
		if s.ID == id {
			return s, true
		}
	}
	return SymbolConfig{}, false
}

// payingSymbols lists symbols eligible to be planted as a winning run:
// anything in the pay table except scatter and wild.
func (d *Definition) payingSymbols() []int {
	out := make([]int, 0, len(d.PayTable))
	for _, s := range d.Symbols {
		if s.ID == d.Scatter.Symbol || s.ID == d.WildSymbol {
			continue
		}
		if _, ok := d.PayTable[s.ID]; ok {
			out = append(out, s.ID)
		}
	}
	return out
}

// Normalize converts the definition to a client-facing map.
func (d *Definition) Normalize() map[string]interface{} {
	return map[string]interface{}{
		"gameId":   d.GameID,
		"gameName": d.GameName,
		"reels":    d.Reels,
		"rows":     d.Rows,
		"paylines": len(d.Paylines),
		"minBet":   d.MinBet,
		"maxBet":   d.MaxBet,
		"payTable": d.PayTable,
		"symbols":  d.Symbols,
		"scatter":  d.Scatter,
		"wild":     d.WildSymbol,
	}
}
