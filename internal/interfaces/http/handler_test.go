package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconversion "github.com/horizonpay/pricing-service/internal/application/service/conversion"
	appmarketdata "github.com/horizonpay/pricing-service/internal/application/service/marketdata"
	apppricing "github.com/horizonpay/pricing-service/internal/application/service/pricing"
	"github.com/horizonpay/pricing-service/internal/config"
	market "github.com/horizonpay/pricing-service/internal/domain/entity/market"
	"github.com/horizonpay/pricing-service/internal/infrastructure/cache"
	"github.com/horizonpay/pricing-service/internal/infrastructure/sessionstore"
	"github.com/horizonpay/pricing-service/internal/metrics"
)

type stubSpot struct{}

func (stubSpot) FetchSpot(context.Context) (market.PriceQuote, error) {
	return market.PriceQuote{Source: market.SourceSpotMarket, Value: 88.1, FetchedAt: time.Now().UTC()}, nil
}

type stubReference struct{}

func (stubReference) FetchReference(context.Context) (market.ReferenceRates, error) {
	return market.ReferenceRates{NGNPerUSDT: 1350.5, INRPerUSDT: 88.3, FetchedAt: time.Now().UTC()}, nil
}

type stubOrderBook struct{}

func (stubOrderBook) FetchOrderBook(context.Context) ([]market.P2PListing, error) {
	return []market.P2PListing{
		{Price: 88.5, AvailableQty: 300, SellerTrades: 500, SellerCompletionPct: 99, SellerName: "a"},
		{Price: 89.2, AvailableQty: 120, SellerTrades: 250, SellerCompletionPct: 98, SellerName: "b"},
	}, nil
}

type stubGateway struct {
	succeeded bool
	sigOK     bool
}

func (stubGateway) Initialize(_ context.Context, reference, _ string, _ float64) (string, error) {
	return "https://checkout.example/" + reference, nil
}

func (g stubGateway) Verify(context.Context, string) (bool, error) {
	return g.succeeded, nil
}

func (g stubGateway) VerifySignature([]byte, string) bool {
	return g.sigOK
}

type fixedRand struct{}

func (fixedRand) Float64() float64 { return 0 }

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{
		Cache:    config.CacheConfig{TTL: 10 * time.Minute},
		Upstream: config.UpstreamConfig{FetchTimeout: 2 * time.Second},
		Analyzer: config.AnalyzerConfig{
			StrictMinTrades:         100,
			StrictMinCompletionPct:  95,
			StrictMinQty:            50,
			RelaxedMinTrades:        20,
			RelaxedMinCompletionPct: 80,
			RelaxedMinQty:           10,
			PriceMin:                60,
			PriceMax:                120,
			TopAdsLimit:             5,
		},
		Pricing: config.PricingConfig{
			PrimaryPolicy:        "band",
			BandLow:              15.85,
			BandHigh:             15.98,
			MinProfitMarginPct:   0.8,
			TargetMarginPct:      1.5,
			FallbackJitterPct:    0.1,
			FlatMarkupNGN:        30,
			ReferenceFallbackNGN: 1650,
			LocalMarketMin:       16.5,
			LocalMarketMax:       17.5,
		},
		Transaction: config.TransactionConfig{
			MinAmountNGN: 1000,
			MaxAmountNGN: 5000000,
			SessionTTL:   5 * time.Minute,
		},
	}

	sink := metrics.NewSink()
	md := appmarketdata.NewService(stubSpot{}, stubReference{}, stubOrderBook{}, cache.NewMemoryCache(), nil, cfg, sink, logger)
	pricer := apppricing.NewService(cfg.Pricing, fixedRand{})
	conv := appconversion.NewService(
		md, pricer, sessionstore.NewMemoryStore(), stubGateway{succeeded: true, sigOK: true},
		nil, nil, cfg.Transaction, sink, logger,
	)

	return NewHandler(md, pricer, conv, nil, sink, cfg.Cache.TTL, "s3cret", nil)
}

func doRequest(h *Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(h, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetRates(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(h, http.MethodGet, "/api/rates", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, 15.85, body["exchange_rate"])
	assert.Equal(t, false, body["used_fallback"])
	p2p, ok := body["p2p"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), p2p["quality_ads_count"])
	assert.Equal(t, 88.5, p2p["lowest_qualified_rate"])
}

const convertBody = `{
	"amount_ngn": 50000,
	"from_currency": "NGN",
	"to_currency": "INR",
	"customer_name": "Ada Obi",
	"email": "ada@example.com",
	"receive_method": "bank",
	"account_number": "123456789012",
	"ifsc": "HDFC0SAVING"
}`

func TestConvertEndpoint(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(h, http.MethodPost, "/api/convert", convertBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["session_id"])
	assert.Equal(t, 15.85, body["exchange_rate"])
	assert.Equal(t, 1.5, body["fee_percent"])
}

func TestConvertEndpoint_Validation(t *testing.T) {
	h := newTestHandler(t)

	bad := strings.Replace(convertBody, `"amount_ngn": 50000`, `"amount_ngn": 10`, 1)
	rec := doRequest(h, http.MethodPost, "/api/convert", bad, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	violations, ok := body["violations"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, violations, "amount_ngn")
}

func TestPaymentLifecycle(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(h, http.MethodPost, "/api/convert", convertBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sessionID, ok := decodeBody(t, rec)["session_id"].(string)
	require.True(t, ok)

	rec = doRequest(h, http.MethodPost, "/api/payment/initialize",
		`{"session_id":"`+sessionID+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["authorization_url"], sessionID)

	rec = doRequest(h, http.MethodGet, "/api/payment/verify?reference="+sessionID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeBody(t, rec)["status"])

	rec = doRequest(h, http.MethodGet, "/api/payment/status/"+sessionID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeBody(t, rec)["status"])
}

func TestPaymentStatus_NotFound(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(h, http.MethodGet, "/api/payment/status/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhook_BadSignatureRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{
		Cache:    config.CacheConfig{TTL: time.Minute},
		Upstream: config.UpstreamConfig{FetchTimeout: time.Second},
	}
	sink := metrics.NewSink()
	md := appmarketdata.NewService(stubSpot{}, stubReference{}, stubOrderBook{}, cache.NewMemoryCache(), nil, cfg, sink, logger)
	pricer := apppricing.NewService(cfg.Pricing, fixedRand{})
	conv := appconversion.NewService(
		md, pricer, sessionstore.NewMemoryStore(), stubGateway{sigOK: false},
		nil, nil, cfg.Transaction, sink, logger,
	)
	h := NewHandler(md, pricer, conv, nil, sink, time.Minute, "", nil)

	rec := doRequest(h, http.MethodPost, "/api/webhook/paystack", `{"event":"charge.success"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAuth(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(h, http.MethodGet, "/api/admin/cache", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(h, http.MethodGet, "/api/admin/cache", "", map[string]string{"X-Admin-Secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(h, http.MethodGet, "/api/admin/cache", "", map[string]string{"X-Admin-Secret": "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	cacheInfo, ok := decodeBody(t, rec)["cache"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, cacheInfo, "ttl_seconds")

	rec = doRequest(h, http.MethodGet, "/api/admin/cache?admin_secret=s3cret", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminCacheFlush(t *testing.T) {
	h := newTestHandler(t)
	auth := map[string]string{"X-Admin-Secret": "s3cret"}

	rec := doRequest(h, http.MethodGet, "/api/rates", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(h, http.MethodPost, "/api/admin/cache/flush", "", auth)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminSessions_ArchiveDisabled(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(h, http.MethodGet, "/api/admin/sessions", "", map[string]string{"X-Admin-Secret": "s3cret"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
