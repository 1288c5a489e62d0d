package game

import (
	"github.com/shopspring/decimal"
)

// Evaluator scores grids against a definition's paylines and pay table. It
// holds no mutable state: the same grid and bet always produce the same
// result.
//
// Payout policy: every winning line pays multiplier x the full bet amount.
// The bet is not split across active lines.
type Evaluator struct {
	def *Definition
}

func NewEvaluator(def *Definition) *Evaluator {
	return &Evaluator{def: def}
}

// Evaluate returns every winning payline and the summed line win. Jackpot
// awards are not part of the line win; the caller adds them separately.
func (e *Evaluator) Evaluate(grid Grid, bet decimal.Decimal) ([]PaylineWin, decimal.Decimal) {
	var wins []PaylineWin
	total := decimal.Zero

	for lineID, line := range e.def.Paylines {
		win, ok := e.evaluateLine(lineID, line, grid, bet)
		if ok {
			wins = append(wins, win)
			total = total.Add(win.WinAmount)
		}
	}
	return wins, total
}

// evaluateLine counts the run of matching symbols from the line's first
// reel. Wilds substitute for the line's base symbol and are resolved before
// the run is counted; scatters never participate in line wins, so a line
// opening with a scatter cannot pay.
func (e *Evaluator) evaluateLine(lineID int, line []int, grid Grid, bet decimal.Decimal) (PaylineWin, bool) {
	def := e.def
	wild := def.WildSymbol
	scatter := def.Scatter.Symbol

	symbols := make([]int, len(line))
	for reel, row := range line {
		symbols[reel] = grid[reel][row]
	}

	if scatter != 0 && symbols[0] == scatter {
		return PaylineWin{}, false
	}

	// Leading wilds adopt the first concrete symbol on the line. A line of
	// nothing but wilds falls back to the wild's own pay table entry.
	base := symbols[0]
	for _, s := range symbols {
		if wild == 0 || s != wild {
			base = s
			break
		}
	}
	if scatter != 0 && base == scatter {
		return PaylineWin{}, false
	}

	count := 0
	for _, s := range symbols {
		if s != base && (wild == 0 || s != wild) {
			break
		}
		count++
	}

	mult := def.Multiplier(base, count)
	if !mult.IsPositive() {
		return PaylineWin{}, false
	}

	positions := make([]Position, count)
	for reel := 0; reel < count; reel++ {
		positions[reel] = Position{Reel: reel, Row: line[reel]}
	}

	return PaylineWin{
		LineID:     lineID,
		SymbolID:   base,
		Count:      count,
		Multiplier: mult,
		WinAmount:  mult.Mul(bet),
		Positions:  positions,
	}, true
}
