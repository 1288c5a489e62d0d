package game

import (
	"math/rand"
	"sync"
	"time"
)

// Outcome is one raw generator result before evaluation.
type Outcome struct {
	Grid            Grid
	JackpotEligible bool
}

// Generator produces spin grids biased toward the definition's RTP target.
// A single generator is shared by every session on its game, so all RNG
// access is serialized; rand.Rand is not safe for concurrent use.
type Generator struct {
	def *Definition

	mu  sync.Mutex
	rng *rand.Rand

	cumWeights  []int
	totalWeight int
	paying      []int
	runWeights  []int
	runTotal    int
}

// NewGenerator builds a generator with a time-seeded source for production
// spins.
func NewGenerator(def *Definition) *Generator {
	return newGenerator(def, rand.NewSource(time.Now().UnixNano()))
}

// NewSeededGenerator builds a deterministic generator for replay and tests.
// The same seed and definition always yield the same sequence of outcomes.
func NewSeededGenerator(def *Definition, seed int64) *Generator {
	return newGenerator(def, rand.NewSource(seed))
}

func newGenerator(def *Definition, src rand.Source) *Generator {
	g := &Generator{
		def:        def,
		rng:        rand.New(src),
		cumWeights: make([]int, len(def.Symbols)),
		paying:     def.payingSymbols(),
		runWeights: def.runWeights(),
	}
	for i, s := range def.Symbols {
		g.totalWeight += s.Weight
		g.cumWeights[i] = g.totalWeight
	}
	for _, w := range g.runWeights {
		g.runTotal += w
	}
	return g
}

// Generate produces one spin outcome. With probability rtp the grid carries
// a planted winning run on a randomly chosen payline; the remaining cells
// are always filled at weighted random, so incidental wins beyond the
// planted line are possible in both branches and are paid in full.
func (g *Generator) Generate() Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	def := g.def
	grid := make(Grid, def.Reels)
	for reel := range grid {
		grid[reel] = make([]int, def.Rows)
		for row := range grid[reel] {
			grid[reel][row] = g.randomSymbol()
		}
	}

	if g.rng.Float64() < def.RTP && len(g.paying) > 0 {
		symbol := g.paying[g.rng.Intn(len(g.paying))]
		line := def.Paylines[g.rng.Intn(len(def.Paylines))]
		runLen := def.MinMatch + g.weightedIndex(g.runWeights, g.runTotal)
		for reel := 0; reel < runLen; reel++ {
			grid[reel][line[reel]] = symbol
		}
	}

	// Independent of the win draw; an eligible spin only pays jackpot when
	// the evaluator finds a non-zero win.
	eligible := def.Jackpot.HitProbability > 0 && g.rng.Float64() < def.Jackpot.HitProbability

	return Outcome{Grid: grid, JackpotEligible: eligible}
}

func (g *Generator) randomSymbol() int {
	n := g.rng.Intn(g.totalWeight)
	for i, cum := range g.cumWeights {
		if n < cum {
			return g.def.Symbols[i].ID
		}
	}
	return g.def.Symbols[len(g.def.Symbols)-1].ID
}

func (g *Generator) weightedIndex(weights []int, total int) int {
	n := g.rng.Intn(total)
	for i, w := range weights {
		if n < w {
			return i
		}
		n -= w
	}
	return len(weights) - 1
}
