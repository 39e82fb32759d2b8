package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/horizonpay/pricing-service/internal/domain/entity/pricing"
)

// Status is the lifecycle state of a transaction session.
// Pending -> PaymentInitiated -> Completed | Failed | Expired.
type Status string

const (
	StatusPending          Status = "pending"
	StatusPaymentInitiated Status = "payment_initiated"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusExpired          Status = "expired"
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// FinancialSummary captures the amounts produced by the pricing engine and
// fee calculator at session-creation time. It never changes afterwards.
type FinancialSummary struct {
	AmountNGN      float64            `json:"amount_ngn"`
	ExchangeRate   float64            `json:"exchange_rate"`
	AmountINRGross float64            `json:"amount_inr_gross"`
	FeePercent     float64            `json:"fee_percent"`
	FeeINR         float64            `json:"fee_inr"`
	AmountINRNet   float64            `json:"amount_inr_net"`
	RateSource     pricing.RateSource `json:"rate_source"`
}

// SensitiveDetails holds recipient and payment identifiers. The session
// store encrypts this block at rest; reading it back requires the elevated
// capability exposed by the store.
type SensitiveDetails struct {
	CustomerName  string `json:"customer_name,omitempty"`
	Email         string `json:"email,omitempty"`
	ReceiveMethod string `json:"receive_method"`
	AccountNumber string `json:"account_number,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	UPIID         string `json:"upi_id,omitempty"`
}

// TransactionSession is a short-lived record brokered between conversion and
// payment. LockedRate is captured at creation and never recomputed.
type TransactionSession struct {
	ID               string           `json:"id"`
	Status           Status           `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	ExpiresAt        time.Time        `json:"expires_at"`
	LockedRate       float64          `json:"locked_rate"`
	Financial        FinancialSummary `json:"financial"`
	Sensitive        SensitiveDetails `json:"sensitive"`
	GatewayReference string           `json:"gateway_reference,omitempty"`
}

// New creates a pending session with a fresh opaque id and the given TTL.
func New(lockedRate float64, fin FinancialSummary, sens SensitiveDetails, ttl time.Duration) *TransactionSession {
	now := time.Now().UTC()
	return &TransactionSession{
		ID:         uuid.NewString(),
		Status:     StatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		LockedRate: lockedRate,
		Financial:  fin,
		Sensitive:  sens,
	}
}

// ExpiredAt reports whether the session is past its expiry at the given time.
func (t *TransactionSession) ExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
