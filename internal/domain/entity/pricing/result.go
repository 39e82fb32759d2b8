package pricing

// RateSource tells callers which rung of the fallback ladder produced the
// customer rate. ForcedMinimum signals degraded pricing confidence and must
// never be indistinguishable from a clean primary rate.
type RateSource string

const (
	RatePrimaryP2P        RateSource = "primary_p2p"
	RateFallbackReference RateSource = "fallback_reference"
	RateForcedMinimum     RateSource = "forced_minimum"
)

func (s RateSource) String() string {
	return string(s)
}

// Result is the pricing engine output. It is recomputed per request; only
// the market snapshot is cached, never the derived rate, unless a session
// has locked it.
type Result struct {
	BaseCostPerUnit   float64    `json:"base_cost_per_unit"`
	CustomerRate      float64    `json:"customer_rate"`
	ProfitMarginPct   float64    `json:"profit_margin_pct"`
	Source            RateSource `json:"rate_source"`
	SavingsVsLocalMin float64    `json:"savings_vs_local_min"`
	SavingsVsLocalMax float64    `json:"savings_vs_local_max"`
}
