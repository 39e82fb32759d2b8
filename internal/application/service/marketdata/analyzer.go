package marketdata

import (
	"errors"
	"sort"

	"github.com/horizonpay/pricing-service/internal/config"
	market "github.com/horizonpay/pricing-service/internal/domain/entity/market"
)

var (
	// ErrNoValidListings means the raw payload contained no parseable entries.
	ErrNoValidListings = errors.New("order book contained no valid listings")
	// ErrNoQualifyingListings means both the strict and the relaxed quality
	// filters rejected every listing. This is a hard stop: an unfiltered
	// result is never returned.
	ErrNoQualifyingListings = errors.New("no qualifying p2p listings after filtering")
)

// AnalyzeListings turns a raw order-book listing into quality-filtered,
// ranked pricing statistics. Pure computation, no I/O.
func AnalyzeListings(listings []market.P2PListing, cfg config.AnalyzerConfig) (market.P2PStats, error) {
	totalSeen := len(listings)

	valid := make([]market.P2PListing, 0, len(listings))
	for _, l := range listings {
		if !l.Valid() {
			continue
		}
		valid = append(valid, l)
	}
	if len(valid) == 0 {
		return market.P2PStats{}, ErrNoValidListings
	}

	qualified := filterListings(valid, cfg.StrictMinTrades, cfg.StrictMinCompletionPct, cfg.StrictMinQty, cfg.PriceMin, cfg.PriceMax)
	relaxed := false
	if len(qualified) == 0 {
		qualified = filterListings(valid, cfg.RelaxedMinTrades, cfg.RelaxedMinCompletionPct, cfg.RelaxedMinQty, cfg.PriceMin, cfg.PriceMax)
		relaxed = true
	}
	if len(qualified) == 0 {
		return market.P2PStats{}, ErrNoQualifyingListings
	}

	sort.Slice(qualified, func(i, j int) bool {
		return qualified[i].Price < qualified[j].Price
	})

	limit := cfg.TopAdsLimit
	if limit <= 0 {
		limit = 5
	}
	if len(qualified) > limit {
		qualified = qualified[:limit]
	}

	var sum, weightedSum, qtySum float64
	for _, ad := range qualified {
		sum += ad.Price
		weightedSum += ad.Price * ad.AvailableQty
		qtySum += ad.AvailableQty
	}
	vwap := qualified[0].Price
	if qtySum > 0 {
		vwap = weightedSum / qtySum
	}

	return market.P2PStats{
		TotalAdsSeen:          totalSeen,
		QualityAdsCount:       len(qualified),
		LowestQualifiedRate:   qualified[0].Price,
		SimpleAverage:         sum / float64(len(qualified)),
		VolumeWeightedAverage: vwap,
		TopRankedAds:          qualified,
		RelaxedFilterUsed:     relaxed,
	}, nil
}

func filterListings(listings []market.P2PListing, minTrades int, minCompletionPct, minQty, priceMin, priceMax float64) []market.P2PListing {
	out := make([]market.P2PListing, 0, len(listings))
	for _, l := range listings {
		if l.SellerTrades < minTrades {
			continue
		}
		if l.SellerCompletionPct < minCompletionPct {
			continue
		}
		if l.AvailableQty < minQty {
			continue
		}
		if l.Price < priceMin || l.Price > priceMax {
			continue
		}
		out = append(out, l)
	}
	return out
}
