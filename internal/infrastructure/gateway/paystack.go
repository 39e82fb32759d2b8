package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/horizonpay/pricing-service/internal/apperr"
	"github.com/horizonpay/pricing-service/internal/config"
)

const sourceName = "payment_gateway"

// Paystack brokers checkout with the Paystack REST API. Amounts cross the
// wire in kobo.
type Paystack struct {
	http        *http.Client
	baseURL     string
	secretKey   string
	callbackURL string
	logger      *logrus.Entry
}

func NewPaystack(cfg config.GatewayConfig, logger *logrus.Logger) *Paystack {
	return &Paystack{
		http:        &http.Client{Timeout: 15 * time.Second},
		baseURL:     cfg.BaseURL,
		secretKey:   cfg.SecretKey,
		callbackURL: cfg.CallbackURL,
		logger:      logger.WithField("component", "paystack"),
	}
}

type initializeRequest struct {
	Reference   string `json:"reference"`
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// Initialize starts a checkout for the given reference and returns the
// hosted payment page URL.
func (p *Paystack) Initialize(ctx context.Context, reference, email string, amountNGN float64) (string, error) {
	body := initializeRequest{
		Reference:   reference,
		Email:       email,
		Amount:      toKobo(amountNGN),
		Currency:    "NGN",
		CallbackURL: p.callbackURL,
	}

	var out initializeResponse
	if err := p.do(ctx, http.MethodPost, "/transaction/initialize", body, &out); err != nil {
		return "", err
	}
	if !out.Status || out.Data.AuthorizationURL == "" {
		return "", apperr.External(sourceName, fmt.Sprintf("initialize rejected: %s", out.Message), nil)
	}
	return out.Data.AuthorizationURL, nil
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status string `json:"status"`
		Amount int64  `json:"amount"`
	} `json:"data"`
}

// Verify asks the gateway for the charge outcome. A false return with a nil
// error means the charge definitively did not succeed.
func (p *Paystack) Verify(ctx context.Context, reference string) (bool, error) {
	var out verifyResponse
	if err := p.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &out); err != nil {
		return false, err
	}
	if !out.Status {
		return false, apperr.External(sourceName, fmt.Sprintf("verify rejected: %s", out.Message), nil)
	}
	return out.Data.Status == "success", nil
}

// VerifySignature checks the webhook HMAC-SHA512 signature against the
// secret key.
func (p *Paystack) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func (p *Paystack) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apperr.External(sourceName, "encode request", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return apperr.External(sourceName, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return apperr.External(sourceName, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.WithFields(logrus.Fields{"path": path, "status": resp.StatusCode}).Warn("gateway returned non-2xx")
		return apperr.External(sourceName, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.External(sourceName, "decode response", err)
	}
	return nil
}

func toKobo(amountNGN float64) int64 {
	return int64(math.Round(amountNGN * 100))
}
