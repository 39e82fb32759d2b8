package market

import (
	"fmt"
	"math"
	"time"
)

// QuoteSource identifies which upstream produced a price observation.
type QuoteSource string

const (
	SourceSpotMarket     QuoteSource = "spot_market"
	SourceReferenceIndex QuoteSource = "reference_index"
	SourceP2POrderBook   QuoteSource = "p2p_order_book"
)

func (s QuoteSource) String() string {
	return string(s)
}

// PriceQuote is a single upstream price observation. Quotes are immutable
// once created and never persisted.
type PriceQuote struct {
	Source    QuoteSource `json:"source"`
	Value     float64     `json:"value"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// NewPriceQuote validates the observed value before wrapping it.
func NewPriceQuote(source QuoteSource, value float64) (PriceQuote, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return PriceQuote{}, fmt.Errorf("quote from %s must be finite and positive, got %v", source, value)
	}
	return PriceQuote{
		Source:    source,
		Value:     value,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// ReferenceRates is the dual-currency reference index observation: how many
// units of each fiat currency one USDT buys.
type ReferenceRates struct {
	NGNPerUSDT float64   `json:"ngn_per_usdt"`
	INRPerUSDT float64   `json:"inr_per_usdt"`
	FetchedAt  time.Time `json:"fetched_at"`
}
