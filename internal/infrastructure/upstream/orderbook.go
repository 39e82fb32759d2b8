package upstream

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/horizonpay/pricing-service/internal/apperr"
	"github.com/horizonpay/pricing-service/internal/config"
	market "github.com/horizonpay/pricing-service/internal/domain/entity/market"
)

const (
	orderBookAsset     = "USDT"
	orderBookFiat      = "INR"
	orderBookTradeType = "SELL"
	orderBookRows      = 20
)

// OrderBookFetcher pulls the P2P sell-side listing page. This source is
// load-bearing for pricing, so transient failures (network errors, 5xx,
// 429) are retried with exponential backoff before giving up.
type OrderBookFetcher struct {
	client   *Client
	url      string
	attempts int
	base     time.Duration
	logger   *logrus.Entry
}

func NewOrderBookFetcher(client *Client, cfg config.UpstreamConfig, logger *logrus.Logger) *OrderBookFetcher {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &OrderBookFetcher{
		client:   client,
		url:      cfg.OrderBookURL,
		attempts: attempts,
		base:     cfg.RetryBaseDelay,
		logger:   logger.WithField("component", "orderbook_fetcher"),
	}
}

type orderBookRequest struct {
	Asset     string   `json:"asset"`
	Fiat      string   `json:"fiat"`
	TradeType string   `json:"tradeType"`
	Page      int      `json:"page"`
	Rows      int      `json:"rows"`
	PayTypes  []string `json:"payTypes"`
}

type orderBookResponse struct {
	Data []struct {
		Adv struct {
			Price         string `json:"price"`
			SurplusAmount string `json:"surplusAmount"`
		} `json:"adv"`
		Advertiser struct {
			NickName        string  `json:"nickName"`
			UserNo          string  `json:"userNo"`
			MonthOrderCount int     `json:"monthOrderCount"`
			MonthFinishRate float64 `json:"monthFinishRate"`
		} `json:"advertiser"`
	} `json:"data"`
}

func (f *OrderBookFetcher) FetchOrderBook(ctx context.Context) ([]market.P2PListing, error) {
	source := market.SourceP2POrderBook.String()
	req := orderBookRequest{
		Asset:     orderBookAsset,
		Fiat:      orderBookFiat,
		TradeType: orderBookTradeType,
		Page:      1,
		Rows:      orderBookRows,
		PayTypes:  []string{},
	}

	backoff := retry.WithMaxRetries(uint64(f.attempts-1), retry.NewExponential(f.base))

	var payload orderBookResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		payload = orderBookResponse{}
		if err := f.client.postJSON(ctx, source, f.url, req, &payload); err != nil {
			if transient(err) {
				f.logger.WithError(err).Warn("order book fetch failed, retrying")
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	listings := make([]market.P2PListing, 0, len(payload.Data))
	for _, entry := range payload.Data {
		price, err := strconv.ParseFloat(entry.Adv.Price, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(entry.Adv.SurplusAmount, 64)
		if err != nil {
			continue
		}
		listing := market.P2PListing{
			Price:               price,
			AvailableQty:        qty,
			SellerTrades:        entry.Advertiser.MonthOrderCount,
			SellerCompletionPct: market.NormalizeCompletionPct(entry.Advertiser.MonthFinishRate),
			SellerName:          entry.Advertiser.NickName,
		}
		if id := entry.Advertiser.UserNo; id != "" {
			listing.SellerID = &id
		}
		if !listing.Valid() {
			continue
		}
		listings = append(listings, listing)
	}
	if len(listings) == 0 {
		return nil, apperr.External(source, "order book payload contained no parseable listings", nil)
	}
	return listings, nil
}

// transient classifies failures worth a retry. Client-side errors other
// than 429 are permanent.
func transient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError || se.code == http.StatusTooManyRequests
	}
	var ee *apperr.ExternalAPIError
	if errors.As(err, &ee) && ee.Message == "request failed" {
		return true
	}
	return false
}
