package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/horizonpay/pricing-service/internal/apperr"
	"github.com/horizonpay/pricing-service/internal/config"
	market "github.com/horizonpay/pricing-service/internal/domain/entity/market"
	"github.com/horizonpay/pricing-service/internal/domain/interfaces"
	"github.com/horizonpay/pricing-service/internal/metrics"
)

const eventRateRefreshed = "pricing.rate_refreshed"

// Service aggregates the three upstream sources into a cached composite
// snapshot. P2P order-book data is load-bearing: without it no snapshot is
// produced at all.
type Service struct {
	spot      interfaces.SpotFetcher
	reference interfaces.ReferenceFetcher
	orderBook interfaces.OrderBookFetcher
	cache     interfaces.SnapshotCache
	publisher interfaces.EventPublisher

	analyzerCfg config.AnalyzerConfig
	pricingCfg  config.PricingConfig
	ttl         time.Duration
	timeout     time.Duration

	sink   *metrics.Sink
	logger *logrus.Entry
}

// NewService wires the aggregator. The publisher may be nil.
func NewService(
	spot interfaces.SpotFetcher,
	reference interfaces.ReferenceFetcher,
	orderBook interfaces.OrderBookFetcher,
	cache interfaces.SnapshotCache,
	publisher interfaces.EventPublisher,
	cfg *config.Config,
	sink *metrics.Sink,
	logger *logrus.Logger,
) *Service {
	return &Service{
		spot:        spot,
		reference:   reference,
		orderBook:   orderBook,
		cache:       cache,
		publisher:   publisher,
		analyzerCfg: cfg.Analyzer,
		pricingCfg:  cfg.Pricing,
		ttl:         cfg.Cache.TTL,
		timeout:     cfg.Upstream.FetchTimeout,
		sink:        sink,
		logger:      logger.WithField("component", "marketdata"),
	}
}

// GetMarketData returns the current composite snapshot, serving from cache
// when the cached snapshot is younger than the TTL and useCache is set.
// Two near-simultaneous misses may both refetch; the overwrite is benign.
func (s *Service) GetMarketData(ctx context.Context, useCache bool) (*market.MarketSnapshot, error) {
	if useCache {
		if snap, err := s.cache.Get(ctx); err == nil && snap != nil && snap.Age(time.Now().UTC()) < s.ttl {
			s.sink.CacheHit()
			return snap, nil
		}
	}
	s.sink.CacheMiss()

	return s.refreshAndStore(ctx)
}

// RunWarmer refreshes the snapshot on the given interval until ctx ends, so
// customer requests rarely pay for a cold fetch. Warmer refreshes bypass the
// admin hit/miss counters.
func (s *Service) RunWarmer(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.WithField("interval", interval.String()).Info("cache warmer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.refreshAndStore(ctx); err != nil {
				s.logger.WithError(err).Warn("background refresh failed")
			}
		}
	}
}

func (s *Service) refreshAndStore(ctx context.Context) (*market.MarketSnapshot, error) {
	snap, err := s.refresh(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, snap, s.ttl); err != nil {
		s.logger.WithError(err).Warn("failed to store snapshot in cache")
	}
	s.sink.SnapshotRefreshed()
	s.publishRefresh(ctx, snap)
	return snap, nil
}

// Flush discards the cached snapshot and resets the admin-facing cache
// counters. The next request refetches.
func (s *Service) Flush(ctx context.Context) error {
	if err := s.cache.Flush(ctx); err != nil {
		return err
	}
	s.sink.ResetCacheStats()
	return nil
}

type fetchOutcome struct {
	quote     market.PriceQuote
	reference market.ReferenceRates
	listings  []market.P2PListing
	err       error
}

// refresh runs the three fetches concurrently and joins them with partial
// failure tolerance: every outcome is captured independently, and a branch
// that times out is recorded as failed while its siblings continue.
func (s *Service) refresh(ctx context.Context) (*market.MarketSnapshot, error) {
	var (
		wg                     sync.WaitGroup
		spotOut, refOut, obOut fetchOutcome
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		fctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		spotOut.quote, spotOut.err = s.spot.FetchSpot(fctx)
	}()
	go func() {
		defer wg.Done()
		fctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		refOut.reference, refOut.err = s.reference.FetchReference(fctx)
	}()
	go func() {
		defer wg.Done()
		fctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		obOut.listings, obOut.err = s.orderBook.FetchOrderBook(fctx)
	}()
	wg.Wait()

	if obOut.err != nil {
		s.logger.WithError(obOut.err).Error("order book fetch failed; aggregation aborted")
		return nil, apperr.Fatal(obOut.err)
	}
	stats, err := AnalyzeListings(obOut.listings, s.analyzerCfg)
	if err != nil {
		s.logger.WithError(err).Error("p2p analysis failed; aggregation aborted")
		return nil, apperr.Fatal(err)
	}

	snap := &market.MarketSnapshot{
		P2P:       stats,
		FetchedAt: time.Now().UTC(),
	}

	if spotOut.err != nil {
		s.logger.WithError(spotOut.err).Warn("spot fetch failed; continuing without spot price")
		snap.PartialErrors = append(snap.PartialErrors, market.SourceError{
			Source:  market.SourceSpotMarket,
			Message: spotOut.err.Error(),
		})
	} else {
		value := spotOut.quote.Value
		snap.SpotPrice = &value
	}

	ngnRate := s.pricingCfg.ReferenceFallbackNGN
	if refOut.err != nil {
		s.logger.WithError(refOut.err).Warn("reference fetch failed; substituting fallback rate")
		snap.UsedFallbackReference = true
		snap.PartialErrors = append(snap.PartialErrors, market.SourceError{
			Source:  market.SourceReferenceIndex,
			Message: refOut.err.Error(),
		})
	} else {
		ref := refOut.reference
		snap.ReferenceRates = &ref
		ngnRate = ref.NGNPerUSDT
	}
	snap.NGNRateWithMarkup = ngnRate + s.pricingCfg.FlatMarkupNGN

	return snap, nil
}

func (s *Service) publishRefresh(ctx context.Context, snap *market.MarketSnapshot) {
	if s.publisher == nil {
		return
	}
	payload := map[string]any{
		"lowest_qualified_rate": snap.P2P.LowestQualifiedRate,
		"ngn_rate_with_markup":  snap.NGNRateWithMarkup,
		"used_fallback":         snap.UsedFallbackReference,
		"fetched_at":            snap.FetchedAt,
	}
	if err := s.publisher.Publish(ctx, eventRateRefreshed, payload); err != nil {
		s.logger.WithError(err).Warn("failed to publish rate refresh event")
	}
}
