package market

import "math"

// P2PListing is one sell offer from the USDT/INR peer-to-peer order book.
// Price is quoted in INR per USDT.
type P2PListing struct {
	Price               float64 `json:"price"`
	AvailableQty        float64 `json:"available_qty"`
	SellerTrades        int     `json:"seller_trades"`
	SellerCompletionPct float64 `json:"seller_completion_pct"`
	SellerName          string  `json:"seller_name"`
	SellerID            *string `json:"seller_id,omitempty"`
}

// Valid reports whether the listing may enter analysis at all. Entries with
// a non-finite or non-positive price are discarded before filtering.
func (l P2PListing) Valid() bool {
	if math.IsNaN(l.Price) || math.IsInf(l.Price, 0) || l.Price <= 0 {
		return false
	}
	if math.IsNaN(l.AvailableQty) || l.AvailableQty < 0 {
		return false
	}
	return true
}

// NormalizeCompletionPct maps a completion rate given either as a 0-1
// fraction or a 0-100 percentage onto the 0-100 scale.
func NormalizeCompletionPct(raw float64) float64 {
	if raw <= 1.0 {
		return raw * 100
	}
	if raw > 100 {
		return 100
	}
	return raw
}
