package interfaces

import (
	"context"
	"time"

	market "github.com/horizonpay/pricing-service/internal/domain/entity/market"
)

// SpotFetcher retrieves the single USDT/INR spot quote. Single-shot, no
// retries.
type SpotFetcher interface {
	FetchSpot(ctx context.Context) (market.PriceQuote, error)
}

// ReferenceFetcher retrieves the dual-currency reference index. Single-shot,
// no retries.
type ReferenceFetcher interface {
	FetchReference(ctx context.Context) (market.ReferenceRates, error)
}

// OrderBookFetcher retrieves the raw P2P listing page. Implementations retry
// with exponential backoff on transient failures.
type OrderBookFetcher interface {
	FetchOrderBook(ctx context.Context) ([]market.P2PListing, error)
}

// SnapshotCache holds the single composite market snapshot under a TTL.
// Concurrent refreshes may race; the overwrite is idempotent and last write
// wins on the single key.
type SnapshotCache interface {
	Get(ctx context.Context) (*market.MarketSnapshot, error)
	Set(ctx context.Context, snapshot *market.MarketSnapshot, ttl time.Duration) error
	Flush(ctx context.Context) error
}

// EventPublisher emits domain events to interested consumers. Implementations
// must be safe for concurrent use; a nil publisher is valid and means
// publishing is disabled.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}
