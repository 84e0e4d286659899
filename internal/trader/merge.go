package trader

import "github.com/shopspring/decimal"

// MergeResult splits two outcome holdings into complete sets and leftovers.
type MergeResult struct {
	CompleteSets  float64
	RemainingUp   float64
	RemainingDown float64
}

// MergeUpDownAmounts computes how many complete Up+Down sets can be merged
// back into collateral. Negative inputs count as zero.
func MergeUpDownAmounts(up, down float64) MergeResult {
	u := decimal.Max(decimal.NewFromFloat(up), decimal.Zero)
	d := decimal.Max(decimal.NewFromFloat(down), decimal.Zero)
	sets := decimal.Min(u, d)
	return MergeResult{
		CompleteSets:  sets.InexactFloat64(),
		RemainingUp:   decimal.Max(u.Sub(sets), decimal.Zero).InexactFloat64(),
		RemainingDown: decimal.Max(d.Sub(sets), decimal.Zero).InexactFloat64(),
	}
}
