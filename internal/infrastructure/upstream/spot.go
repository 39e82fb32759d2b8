package upstream

import (
	"context"
	"fmt"

	"github.com/horizonpay/pricing-service/internal/apperr"
	market "github.com/horizonpay/pricing-service/internal/domain/entity/market"
)

// SpotFetcher pulls the single USDT/INR spot quote from a simple-price
// style endpoint: {"tether":{"inr":88.1}}.
type SpotFetcher struct {
	client *Client
	url    string
}

func NewSpotFetcher(client *Client, url string) *SpotFetcher {
	return &SpotFetcher{client: client, url: url}
}

func (f *SpotFetcher) FetchSpot(ctx context.Context) (market.PriceQuote, error) {
	source := market.SourceSpotMarket.String()

	var payload map[string]map[string]float64
	if err := f.client.getJSON(ctx, source, f.url, &payload); err != nil {
		return market.PriceQuote{}, err
	}

	value, ok := payload["tether"]["inr"]
	if !ok {
		return market.PriceQuote{}, apperr.External(source, "payload missing tether.inr", nil)
	}
	quote, err := market.NewPriceQuote(market.SourceSpotMarket, value)
	if err != nil {
		return market.PriceQuote{}, apperr.External(source, fmt.Sprintf("invalid spot value %v", value), err)
	}
	return quote, nil
}
