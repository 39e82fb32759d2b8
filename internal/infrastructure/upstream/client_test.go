package upstream

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horizonpay/pricing-service/internal/config"
	"github.com/horizonpay/pricing-service/internal/metrics"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewClient(config.UpstreamConfig{
		FetchTimeout:   2 * time.Second,
		RequestsPerSec: 1000,
	}, metrics.NewSink(), logger)
}

func gzipBody(t *testing.T, payload string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFetchSpot_Plain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tether":{"inr":88.1}}`))
	}))
	defer srv.Close()

	quote, err := NewSpotFetcher(testClient(t), srv.URL).FetchSpot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 88.1, quote.Value)
}

func TestFetchSpot_Gzip(t *testing.T) {
	body := gzipBody(t, `{"tether":{"inr":88.1}}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "br")
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(body)
	}))
	defer srv.Close()

	quote, err := NewSpotFetcher(testClient(t), srv.URL).FetchSpot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 88.1, quote.Value)
}

func TestFetchSpot_Brotli(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, err := bw.Write([]byte(`{"tether":{"inr":88.1}}`))
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	quote, err := NewSpotFetcher(testClient(t), srv.URL).FetchSpot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 88.1, quote.Value)
}

func TestFetchSpot_Deflate(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"tether":{"inr":88.1}}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "deflate")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	quote, err := NewSpotFetcher(testClient(t), srv.URL).FetchSpot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 88.1, quote.Value)
}

func TestFetchSpot_RejectsNonPositive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tether":{"inr":-5}}`))
	}))
	defer srv.Close()

	_, err := NewSpotFetcher(testClient(t), srv.URL).FetchSpot(context.Background())
	assert.Error(t, err)
}

func TestFetchSpot_MissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tether":{}}`))
	}))
	defer srv.Close()

	_, err := NewSpotFetcher(testClient(t), srv.URL).FetchSpot(context.Background())
	assert.Error(t, err)
}

func TestFetchReference_BothLegs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tether":{"ngn":1650.5,"inr":88.3}}`))
	}))
	defer srv.Close()

	rates, err := NewReferenceFetcher(testClient(t), srv.URL).FetchReference(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1650.5, rates.NGNPerUSDT)
	assert.Equal(t, 88.3, rates.INRPerUSDT)
}

func TestFetchReference_MissingLeg(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tether":{"ngn":1650.5}}`))
	}))
	defer srv.Close()

	_, err := NewReferenceFetcher(testClient(t), srv.URL).FetchReference(context.Background())
	assert.Error(t, err)
}

const orderBookPayload = `{"data":[
	{"adv":{"price":"88.5","surplusAmount":"300"},
	 "advertiser":{"nickName":"a","userNo":"u1","monthOrderCount":500,"monthFinishRate":0.99}},
	{"adv":{"price":"89.2","surplusAmount":"120"},
	 "advertiser":{"nickName":"b","userNo":"u2","monthOrderCount":250,"monthFinishRate":0.98}},
	{"adv":{"price":"not-a-number","surplusAmount":"10"},
	 "advertiser":{"nickName":"c","userNo":"u3","monthOrderCount":10,"monthFinishRate":0.5}}
]}`

func orderBookConfig(url string) config.UpstreamConfig {
	return config.UpstreamConfig{
		OrderBookURL:   url,
		FetchTimeout:   2 * time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: 5 * time.Millisecond,
		RequestsPerSec: 1000,
	}
}

func TestFetchOrderBook_ParsesListings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(orderBookPayload))
	}))
	defer srv.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	fetcher := NewOrderBookFetcher(testClient(t), orderBookConfig(srv.URL), logger)

	listings, err := fetcher.FetchOrderBook(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, 88.5, listings[0].Price)
	assert.Equal(t, 300.0, listings[0].AvailableQty)
	assert.Equal(t, 500, listings[0].SellerTrades)
	assert.InDelta(t, 99.0, listings[0].SellerCompletionPct, 1e-9)
	require.NotNil(t, listings[0].SellerID)
	assert.Equal(t, "u1", *listings[0].SellerID)
}

func TestFetchOrderBook_RetriesTransientFailures(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(orderBookPayload))
	}))
	defer srv.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	fetcher := NewOrderBookFetcher(testClient(t), orderBookConfig(srv.URL), logger)

	listings, err := fetcher.FetchOrderBook(context.Background())
	require.NoError(t, err)
	assert.Len(t, listings, 2)
	assert.Equal(t, 3, requests)
}

func TestFetchOrderBook_GivesUpAfterRetries(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	fetcher := NewOrderBookFetcher(testClient(t), orderBookConfig(srv.URL), logger)

	_, err := fetcher.FetchOrderBook(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, requests)
}

func TestFetchOrderBook_NoRetryOnClientError(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	fetcher := NewOrderBookFetcher(testClient(t), orderBookConfig(srv.URL), logger)

	_, err := fetcher.FetchOrderBook(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, requests)
}
