package market

// P2PStats holds the quality-filtered, ranked pricing statistics the analyzer
// derives from a raw order-book listing.
type P2PStats struct {
	TotalAdsSeen          int          `json:"total_ads_seen"`
	QualityAdsCount       int          `json:"quality_ads_count"`
	LowestQualifiedRate   float64      `json:"lowest_qualified_rate"`
	SimpleAverage         float64      `json:"simple_average"`
	VolumeWeightedAverage float64      `json:"volume_weighted_average"`
	TopRankedAds          []P2PListing `json:"top_ranked_ads"`
	RelaxedFilterUsed     bool         `json:"relaxed_filter_used"`
}
