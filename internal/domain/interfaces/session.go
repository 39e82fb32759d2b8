package interfaces

import (
	"context"
	"time"

	session "github.com/horizonpay/pricing-service/internal/domain/entity/session"
)

// SessionStore is the logical contract over transaction session persistence:
// create/read/update a record with a TTL. Updates are last-write-wins; no
// optimistic concurrency is promised.
type SessionStore interface {
	Create(ctx context.Context, s *session.TransactionSession, ttl time.Duration) error
	Get(ctx context.Context, id string) (*session.TransactionSession, error)
	Update(ctx context.Context, s *session.TransactionSession) error
}

// ArchiveFilter narrows the admin transaction listing.
type ArchiveFilter struct {
	Status string
	From   time.Time
	To     time.Time
	Limit  int
}

// ArchivedTransaction is the durable, non-sensitive record of a terminal
// session kept for the admin surface.
type ArchivedTransaction struct {
	SessionID    string    `json:"session_id"`
	Status       string    `json:"status"`
	AmountNGN    float64   `json:"amount_ngn"`
	AmountINRNet float64   `json:"amount_inr_net"`
	ExchangeRate float64   `json:"exchange_rate"`
	RateSource   string    `json:"rate_source"`
	Reference    string    `json:"reference"`
	CompletedAt  time.Time `json:"completed_at"`
}

// TransactionArchive records terminal transactions durably and serves the
// admin listing. A nil archive is valid and disables both.
type TransactionArchive interface {
	Record(ctx context.Context, txn *ArchivedTransaction) error
	List(ctx context.Context, filter ArchiveFilter) ([]ArchivedTransaction, error)
	Close()
}

// PaymentGateway brokers checkout with the external payment provider.
type PaymentGateway interface {
	Initialize(ctx context.Context, reference, email string, amountNGN float64) (authorizationURL string, err error)
	Verify(ctx context.Context, reference string) (succeeded bool, err error)
	VerifySignature(body []byte, signature string) bool
}
