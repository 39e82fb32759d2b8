package market

import "time"

// SourceError describes one per-source fetch failure captured during an
// aggregation. Raw upstream payloads never appear here, only a safe summary.
type SourceError struct {
	Source  QuoteSource `json:"source"`
	Message string      `json:"message"`
}

// MarketSnapshot is the aggregator's composite output. It is constructed
// fresh on a cache miss and held immutable for the cache TTL window.
type MarketSnapshot struct {
	SpotPrice             *float64        `json:"spot_price,omitempty"`
	ReferenceRates        *ReferenceRates `json:"reference_rates,omitempty"`
	P2P                   P2PStats        `json:"p2p_stats"`
	NGNRateWithMarkup     float64         `json:"ngn_rate_with_markup"`
	UsedFallbackReference bool            `json:"used_fallback_reference"`
	FetchedAt             time.Time       `json:"fetched_at"`
	PartialErrors         []SourceError   `json:"partial_errors,omitempty"`
}

// Age reports how long ago the snapshot was assembled.
func (s *MarketSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}
