package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/horizonpay/pricing-service/internal/apperr"
	"github.com/horizonpay/pricing-service/internal/config"
	"github.com/horizonpay/pricing-service/internal/metrics"
)

const acceptEncoding = "gzip, deflate, br"

// Client is the shared HTTP client behind all three market-data fetchers.
// It rate-limits outbound calls and handles compressed responses.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	sink    *metrics.Sink
	logger  *logrus.Entry
}

// NewClient builds the shared upstream client from the configured timeout
// and outbound rate limit.
func NewClient(cfg config.UpstreamConfig, sink *metrics.Sink, logger *logrus.Logger) *Client {
	burst := int(cfg.RequestsPerSec)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		http: &http.Client{
			Timeout: cfg.FetchTimeout,
			// Decompression is handled explicitly below so brotli and
			// deflate work alongside gzip.
			Transport: &http.Transport{DisableCompression: true},
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst),
		sink:    sink,
		logger:  logger.WithField("component", "upstream"),
	}
}

// statusError carries the HTTP status so callers can classify transient
// failures for retry.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// getJSON issues a GET and decodes the (possibly compressed) JSON response
// into out. Metrics record the attempt whether or not it succeeds.
func (c *Client) getJSON(ctx context.Context, source, url string, out any) error {
	return c.doJSON(ctx, source, http.MethodGet, url, nil, out)
}

// postJSON issues a POST with a JSON body.
func (c *Client) postJSON(ctx context.Context, source, url string, body, out any) error {
	return c.doJSON(ctx, source, http.MethodPost, url, body, out)
}

func (c *Client) doJSON(ctx context.Context, source, method, url string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperr.External(source, "rate limiter wait aborted", err)
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apperr.External(source, "encode request body", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return apperr.External(source, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	c.sink.RecordFetch(source, time.Since(started), err != nil)
	if err != nil {
		return apperr.External(source, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.logger.WithFields(logrus.Fields{"source": source, "status": resp.StatusCode}).Warn("upstream returned non-2xx")
		return apperr.External(source, "bad response", &statusError{code: resp.StatusCode})
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.External(source, "read response body", err)
	}
	plain, err := decodeBody(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return apperr.External(source, "decompress response body", err)
	}

	if err := json.Unmarshal(plain, out); err != nil {
		return apperr.External(source, "decode payload", err)
	}
	return nil
}

// decodeBody undoes the content encoding the server chose.
func decodeBody(raw []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			// Some servers send raw deflate streams without the zlib header.
			fr := flate.NewReader(bytes.NewReader(raw))
			defer fr.Close()
			return io.ReadAll(fr)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))
	default:
		return raw, nil
	}
}
