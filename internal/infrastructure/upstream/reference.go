package upstream

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/horizonpay/pricing-service/internal/apperr"
	market "github.com/horizonpay/pricing-service/internal/domain/entity/market"
)

// ReferenceFetcher pulls the dual-currency reference index in one call:
// {"tether":{"ngn":1650.2,"inr":88.3}}. Both legs must be present and
// positive or the whole observation is rejected.
type ReferenceFetcher struct {
	client *Client
	url    string
}

func NewReferenceFetcher(client *Client, url string) *ReferenceFetcher {
	return &ReferenceFetcher{client: client, url: url}
}

func (f *ReferenceFetcher) FetchReference(ctx context.Context) (market.ReferenceRates, error) {
	source := market.SourceReferenceIndex.String()

	var payload map[string]map[string]float64
	if err := f.client.getJSON(ctx, source, f.url, &payload); err != nil {
		return market.ReferenceRates{}, err
	}

	ngn, okNGN := payload["tether"]["ngn"]
	inr, okINR := payload["tether"]["inr"]
	if !okNGN || !okINR {
		return market.ReferenceRates{}, apperr.External(source, "payload missing tether.ngn or tether.inr", nil)
	}
	if !positive(ngn) || !positive(inr) {
		return market.ReferenceRates{}, apperr.External(source, fmt.Sprintf("non-positive reference rates ngn=%v inr=%v", ngn, inr), nil)
	}

	return market.ReferenceRates{
		NGNPerUSDT: ngn,
		INRPerUSDT: inr,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

func positive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
