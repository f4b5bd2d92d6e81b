package pricing

import "math"

// modeBudget is the rough per-target token budget observed for a scan
// mode.
type modeBudget struct {
	inputPerTarget  int
	outputPerTarget int
	cachedRatio     float64
}

var modeBudgets = map[string]modeBudget{
	"quick":    {inputPerTarget: 100_000, outputPerTarget: 30_000, cachedRatio: 0.3},
	"standard": {inputPerTarget: 400_000, outputPerTarget: 120_000, cachedRatio: 0.4},
	"deep":     {inputPerTarget: 1_200_000, outputPerTarget: 350_000, cachedRatio: 0.45},
}

const (
	whiteboxMultiplier     = 1.5
	additionalTargetFactor = 0.7
)

// Estimate is a pre-scan cost projection in USD.
type Estimate struct {
	Low   float64 `json:"estimated_cost_low"`
	Mid   float64 `json:"estimated_cost_mid"`
	High  float64 `json:"estimated_cost_high"`
	Model string  `json:"model"`
	Mode  string  `json:"scan_mode"`
}

// EstimateScanCost projects the cost of a scan before it starts.
// Additional targets cost 70% of the first; whitebox scans read source
// and run about 1.5x the tokens. Unknown modes use the deep budget.
func (db *DB) EstimateScanCost(model, mode string, targetCount int, whitebox bool) Estimate {
	budget, ok := modeBudgets[mode]
	if !ok {
		budget = modeBudgets["deep"]
	}

	totalInput := budget.inputPerTarget
	totalOutput := budget.outputPerTarget
	if targetCount > 1 {
		extra := float64(targetCount-1) * additionalTargetFactor
		totalInput += int(float64(budget.inputPerTarget) * extra)
		totalOutput += int(float64(budget.outputPerTarget) * extra)
	}
	if whitebox {
		totalInput = int(float64(totalInput) * whiteboxMultiplier)
		totalOutput = int(float64(totalOutput) * whiteboxMultiplier)
	}
	cached := int(float64(totalInput) * budget.cachedRatio)

	mid := db.Cost(model, totalInput, totalOutput, cached)
	round := func(v float64) float64 { return math.Round(v*10000) / 10000 }
	return Estimate{
		Low:   round(mid * 0.5),
		Mid:   round(mid),
		High:  round(mid * 2.0),
		Model: model,
		Mode:  mode,
	}
}
