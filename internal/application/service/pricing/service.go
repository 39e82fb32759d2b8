package pricing

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/horizonpay/pricing-service/internal/config"
	pricing "github.com/horizonpay/pricing-service/internal/domain/entity/pricing"
)

var (
	ErrInvalidRate = errors.New("rates must be finite and positive")
	ErrNoFeeTiers  = errors.New("fee schedule is empty")
)

// Rand is the injectable randomness used for competitive jitter. Tests pin
// deterministic output by supplying their own implementation.
type Rand interface {
	Float64() float64
}

type seededRand struct {
	r *rand.Rand
}

func (s seededRand) Float64() float64 {
	return s.r.Float64()
}

// NewRand returns the default time-seeded jitter source.
func NewRand() Rand {
	return seededRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Service derives the customer rate from aggregated market data. Pure given
// its configuration and the injected Rand.
type Service struct {
	cfg config.PricingConfig
	rng Rand
}

// NewService builds the pricing engine. A nil rng falls back to the seeded
// default.
func NewService(cfg config.PricingConfig, rng Rand) *Service {
	if rng == nil {
		rng = NewRand()
	}
	return &Service{cfg: cfg, rng: rng}
}

// CalculateRate walks the fallback ladder until a rung satisfies the
// configured minimum profit margin. Every returned result carries
// ProfitMarginPct >= MinProfitMarginPct up to rounding; a below-cost rate is
// never emitted.
//
// lowestINRPerUSDT is the best qualified P2P rate; ngnRateWithMarkup the
// aggregator's marked-up NGN leg; referenceINRPerUSDT the reference-index
// INR leg when available.
func (s *Service) CalculateRate(lowestINRPerUSDT, ngnRateWithMarkup float64, referenceINRPerUSDT *float64) (pricing.Result, error) {
	if !positiveFinite(lowestINRPerUSDT) || !positiveFinite(ngnRateWithMarkup) {
		return pricing.Result{}, fmt.Errorf("%w: p2p=%v ngn=%v", ErrInvalidRate, lowestINRPerUSDT, ngnRateWithMarkup)
	}

	baseCost := ngnRateWithMarkup / lowestINRPerUSDT

	rate := s.primaryCandidate(baseCost)
	if margin := marginPct(rate, baseCost); margin >= s.cfg.MinProfitMarginPct {
		return s.result(baseCost, rate, margin, pricing.RatePrimaryP2P), nil
	}

	if referenceINRPerUSDT != nil && positiveFinite(*referenceINRPerUSDT) {
		refCost := ngnRateWithMarkup / *referenceINRPerUSDT
		rate = round2(refCost*(1+s.cfg.TargetMarginPct/100) + s.rng.Float64()*s.cfg.FallbackJitterPct/100*refCost)
		margin := marginPct(rate, refCost)
		if margin < s.cfg.MinProfitMarginPct {
			rate = s.forcedMinimumRate(refCost)
			margin = marginPct(rate, refCost)
		}
		return s.result(refCost, rate, margin, pricing.RateFallbackReference), nil
	}

	rate = s.forcedMinimumRate(baseCost)
	return s.result(baseCost, rate, marginPct(rate, baseCost), pricing.RateForcedMinimum), nil
}

// primaryCandidate draws the first-rung rate. The band policy quotes from a
// fixed competitive window independent of cost; costplus derives it from the
// cost directly. Which one runs is configuration, not code.
func (s *Service) primaryCandidate(baseCost float64) float64 {
	if s.cfg.PrimaryPolicy == "costplus" {
		return round2(baseCost * (1 + s.cfg.TargetMarginPct/100))
	}
	return round2(s.cfg.BandLow + s.rng.Float64()*(s.cfg.BandHigh-s.cfg.BandLow))
}

// forcedMinimumRate prices exactly at the margin floor. Rounding is upward
// so the floor still holds after truncation to two decimals.
func (s *Service) forcedMinimumRate(cost float64) float64 {
	return math.Ceil(cost/(1-s.cfg.MinProfitMarginPct/100)*100) / 100
}

func (s *Service) result(cost, rate, margin float64, source pricing.RateSource) pricing.Result {
	return pricing.Result{
		BaseCostPerUnit:   cost,
		CustomerRate:      rate,
		ProfitMarginPct:   margin,
		Source:            source,
		SavingsVsLocalMin: round2(s.cfg.LocalMarketMin - rate),
		SavingsVsLocalMax: round2(s.cfg.LocalMarketMax - rate),
	}
}

// CalculateFee applies the tiered percentage fee to a converted amount. The
// boundary is inclusive: an amount exactly at a tier's ThresholdMax takes
// that tier's percent. NetAmount + FeeAmount reproduces the amount exactly
// at two decimals.
func CalculateFee(amount float64, tiers []pricing.FeeTier) (pricing.FeeBreakdown, error) {
	if len(tiers) == 0 {
		return pricing.FeeBreakdown{}, ErrNoFeeTiers
	}
	if !positiveFinite(amount) {
		return pricing.FeeBreakdown{}, fmt.Errorf("fee amount must be finite and positive, got %v", amount)
	}

	tier := tiers[len(tiers)-1]
	for _, t := range tiers {
		if amount <= t.ThresholdMax {
			tier = t
			break
		}
	}

	amt := decimal.NewFromFloat(amount).Round(2)
	fee := amt.Mul(decimal.NewFromFloat(tier.Percent)).Div(decimal.NewFromInt(100)).Round(2)
	net := amt.Sub(fee)

	return pricing.FeeBreakdown{
		Percent:   tier.Percent,
		FeeAmount: fee.InexactFloat64(),
		NetAmount: net.InexactFloat64(),
	}, nil
}

func marginPct(rate, cost float64) float64 {
	if rate <= 0 {
		return 0
	}
	return (rate - cost) / rate * 100
}

func positiveFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
