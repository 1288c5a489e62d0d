package game

// DetectFeatures scans the whole grid for feature symbols. Scatter counting
// ignores payline positions entirely; any cell qualifies.
func DetectFeatures(def *Definition, grid Grid) Features {
	f := Features{}
	if def.Scatter.Symbol != 0 {
		f.ScatterCount = grid.Count(def.Scatter.Symbol)
		if f.ScatterCount >= def.Scatter.TriggerCount {
			f.FreeSpinsAwarded = f.ScatterCount * def.Scatter.SpinsPerScatter
			f.FreeSpinMultiplier = def.Scatter.Multiplier
		}
	}
	if def.WildSymbol != 0 {
		f.WildCount = grid.Count(def.WildSymbol)
	}
	return f
}
