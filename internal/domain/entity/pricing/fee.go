package pricing

import "math"

// FeeTier maps a converted-amount ceiling to a fee percentage. Tiers are
// static configuration ordered ascending by ThresholdMax; the last tier uses
// +Inf as its sentinel ceiling.
type FeeTier struct {
	ThresholdMax float64 `json:"threshold_max"`
	Percent      float64 `json:"percent"`
}

// DefaultFeeTiers is the shipped fee schedule over the converted INR amount.
func DefaultFeeTiers() []FeeTier {
	return []FeeTier{
		{ThresholdMax: 10000, Percent: 1.5},
		{ThresholdMax: 50000, Percent: 1.0},
		{ThresholdMax: math.Inf(1), Percent: 0.75},
	}
}

// FeeBreakdown is the tiered fee applied to a converted amount.
// NetAmount + FeeAmount equals the input amount exactly at two decimals.
type FeeBreakdown struct {
	Percent   float64 `json:"percent"`
	FeeAmount float64 `json:"fee_amount"`
	NetAmount float64 `json:"net_amount"`
}
