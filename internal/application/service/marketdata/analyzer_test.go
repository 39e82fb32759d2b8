package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horizonpay/pricing-service/internal/config"
	market "github.com/horizonpay/pricing-service/internal/domain/entity/market"
)

func analyzerConfig() config.AnalyzerConfig {
	return config.AnalyzerConfig{
		StrictMinTrades:         100,
		StrictMinCompletionPct:  95,
		StrictMinQty:            50,
		RelaxedMinTrades:        20,
		RelaxedMinCompletionPct: 80,
		RelaxedMinQty:           10,
		PriceMin:                60,
		PriceMax:                120,
		TopAdsLimit:             5,
	}
}

func listing(price, qty float64, trades int, completion float64) market.P2PListing {
	return market.P2PListing{
		Price:               price,
		AvailableQty:        qty,
		SellerTrades:        trades,
		SellerCompletionPct: completion,
		SellerName:          "seller",
	}
}

func TestAnalyzeListings_StrictFiltering(t *testing.T) {
	listings := []market.P2PListing{
		listing(89.2, 120, 250, 98),
		listing(88.5, 300, 500, 99),
		listing(88.9, 80, 150, 97),
		listing(87.0, 40, 30, 70),    // fails trades, completion, qty
		listing(150.0, 200, 400, 99), // outside price band
		listing(88.7, 60, 90, 96),    // fails strict trades
	}

	stats, err := AnalyzeListings(listings, analyzerConfig())
	require.NoError(t, err)

	assert.Equal(t, 6, stats.TotalAdsSeen)
	assert.Equal(t, 3, stats.QualityAdsCount)
	assert.Equal(t, 88.5, stats.LowestQualifiedRate)
	assert.False(t, stats.RelaxedFilterUsed)

	for i := 1; i < len(stats.TopRankedAds); i++ {
		assert.LessOrEqual(t, stats.TopRankedAds[i-1].Price, stats.TopRankedAds[i].Price)
	}
}

func TestAnalyzeListings_TopAdsCapped(t *testing.T) {
	var listings []market.P2PListing
	for i := 0; i < 12; i++ {
		listings = append(listings, listing(88.0+float64(i)*0.1, 100, 300, 99))
	}

	stats, err := AnalyzeListings(listings, analyzerConfig())
	require.NoError(t, err)

	assert.Len(t, stats.TopRankedAds, 5)
	assert.Equal(t, 5, stats.QualityAdsCount)
	assert.Equal(t, 88.0, stats.LowestQualifiedRate)
}

func TestAnalyzeListings_VWAPWithinBounds(t *testing.T) {
	listings := []market.P2PListing{
		listing(88.0, 500, 300, 99),
		listing(89.0, 100, 300, 99),
		listing(90.0, 50, 300, 99),
	}

	stats, err := AnalyzeListings(listings, analyzerConfig())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, stats.VolumeWeightedAverage, 88.0)
	assert.LessOrEqual(t, stats.VolumeWeightedAverage, 90.0)
	assert.GreaterOrEqual(t, stats.SimpleAverage, 88.0)
	assert.LessOrEqual(t, stats.SimpleAverage, 90.0)
	// heavy weight on the cheapest ad pulls the VWAP below the mean
	assert.Less(t, stats.VolumeWeightedAverage, stats.SimpleAverage)
}

func TestAnalyzeListings_RelaxedFallback(t *testing.T) {
	listings := []market.P2PListing{
		listing(91.0, 20, 40, 85),
		listing(90.5, 15, 25, 82),
	}

	stats, err := AnalyzeListings(listings, analyzerConfig())
	require.NoError(t, err)

	assert.True(t, stats.RelaxedFilterUsed)
	assert.Equal(t, 2, stats.QualityAdsCount)
	assert.Equal(t, 90.5, stats.LowestQualifiedRate)
}

func TestAnalyzeListings_NoQualifying(t *testing.T) {
	listings := []market.P2PListing{
		listing(90.0, 1, 2, 10),
		listing(91.0, 2, 1, 20),
	}

	_, err := AnalyzeListings(listings, analyzerConfig())
	assert.ErrorIs(t, err, ErrNoQualifyingListings)
}

func TestAnalyzeListings_NoValid(t *testing.T) {
	listings := []market.P2PListing{
		{Price: -1, AvailableQty: 10},
		{Price: 0, AvailableQty: 10},
	}

	_, err := AnalyzeListings(listings, analyzerConfig())
	assert.ErrorIs(t, err, ErrNoValidListings)
}

func TestAnalyzeListings_ZeroQtyVWAP(t *testing.T) {
	listings := []market.P2PListing{
		listing(88.0, 0, 300, 99),
	}
	cfg := analyzerConfig()
	cfg.StrictMinQty = 0
	cfg.RelaxedMinQty = 0

	stats, err := AnalyzeListings(listings, cfg)
	require.NoError(t, err)
	assert.Equal(t, 88.0, stats.VolumeWeightedAverage)
}
