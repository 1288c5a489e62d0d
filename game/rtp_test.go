package game

import (
	"testing"

	"github.com/shopspring/decimal"
)

// rtpDefinition is calibrated so that the expected payout ratio lands on the
// configured RTP target: eight equal-weight symbols, one payline, no wild or
// scatter, and a flat pay table whose planted-run expectation works out to
// just under 1.0x the bet per planted spin.
func rtpDefinition() *Definition {
	symbols := make([]SymbolConfig, 0, 8)
	names := []string{"A", "K", "Q", "J", "ten", "nine", "cherry", "lemon"}
	for i, name := range names {
		symbols = append(symbols, SymbolConfig{
			ID: i + 1, Name: name, Value: 10, Rarity: "common", Weight: 1,
		})
	}

	payTable := make(map[int][]float64, len(symbols))
	for _, s := range symbols {
		payTable[s.ID] = []float64{0, 0, 0.6, 1.2, 2.4}
	}

	return &Definition{
		GameID:     "rtp-bench",
		GameName:   "RTP Bench",
		Reels:      5,
		Rows:       3,
		MinMatch:   3,
		RTP:        0.96,
		Symbols:    symbols,
		Paylines:   [][]int{{1, 1, 1, 1, 1}},
		PayTable:   payTable,
		RunWeights: []int{70, 20, 10},
		MinBet:     1,
		MaxBet:     100,
	}
}

func TestObservedRTPConvergesToTarget(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 100k spin simulation in short mode")
	}

	def := rtpDefinition()
	if err := def.Validate(); err != nil {
		t.Fatalf("bench definition invalid: %v", err)
	}

	gen := NewSeededGenerator(def, 20250901)
	ev := NewEvaluator(def)
	bet := decimal.NewFromInt(10)

	const spins = 100_000
	totalBet := decimal.Zero
	totalWin := decimal.Zero
	for i := 0; i < spins; i++ {
		_, win := ev.Evaluate(gen.Generate().Grid, bet)
		totalBet = totalBet.Add(bet)
		totalWin = totalWin.Add(win)
	}

	observed, _ := totalWin.Div(totalBet).Float64()
	if observed < def.RTP-0.02 || observed > def.RTP+0.02 {
		t.Fatalf("observed RTP %.4f outside [%.4f, %.4f] after %d spins",
			observed, def.RTP-0.02, def.RTP+0.02, spins)
	}
}
