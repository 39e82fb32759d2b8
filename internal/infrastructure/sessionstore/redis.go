package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	session "github.com/horizonpay/pricing-service/internal/domain/entity/session"
)

// ErrNotFound means no session exists under the given id, or it has already
// been evicted by its TTL.
var ErrNotFound = errors.New("session not found")

const keyPrefix = "horizonpay:session:"

// envelope is the at-rest shape: everything except the sensitive block in
// the clear, the sensitive block as an opaque ciphertext.
type envelope struct {
	ID               string                   `json:"id"`
	Status           session.Status           `json:"status"`
	CreatedAt        time.Time                `json:"created_at"`
	ExpiresAt        time.Time                `json:"expires_at"`
	LockedRate       float64                  `json:"locked_rate"`
	Financial        session.FinancialSummary `json:"financial"`
	SensitiveSealed  string                   `json:"sensitive_sealed"`
	GatewayReference string                   `json:"gateway_reference,omitempty"`
}

// RedisStore keeps transaction sessions in redis under a TTL, with the
// sensitive block encrypted before it leaves the process.
type RedisStore struct {
	client *redis.Client
	cipher *Cipher
}

func NewRedisStore(client *redis.Client, cipher *Cipher) *RedisStore {
	return &RedisStore{client: client, cipher: cipher}
}

func (s *RedisStore) Create(ctx context.Context, txn *session.TransactionSession, ttl time.Duration) error {
	raw, err := s.seal(txn)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyPrefix+txn.ID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("store session %s: %w", txn.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*session.TransactionSession, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return s.open(raw)
}

// Update rewrites the session preserving its remaining TTL.
func (s *RedisStore) Update(ctx context.Context, txn *session.TransactionSession) error {
	raw, err := s.seal(txn)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyPrefix+txn.ID, raw, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("update session %s: %w", txn.ID, err)
	}
	return nil
}

func (s *RedisStore) seal(txn *session.TransactionSession) ([]byte, error) {
	plain, err := json.Marshal(txn.Sensitive)
	if err != nil {
		return nil, fmt.Errorf("marshal sensitive block: %w", err)
	}
	sealed, err := s.cipher.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("encrypt sensitive block: %w", err)
	}
	return json.Marshal(envelope{
		ID:               txn.ID,
		Status:           txn.Status,
		CreatedAt:        txn.CreatedAt,
		ExpiresAt:        txn.ExpiresAt,
		LockedRate:       txn.LockedRate,
		Financial:        txn.Financial,
		SensitiveSealed:  sealed,
		GatewayReference: txn.GatewayReference,
	})
}

func (s *RedisStore) open(raw []byte) (*session.TransactionSession, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	plain, err := s.cipher.Decrypt(env.SensitiveSealed)
	if err != nil {
		return nil, fmt.Errorf("decrypt sensitive block: %w", err)
	}
	var sens session.SensitiveDetails
	if err := json.Unmarshal(plain, &sens); err != nil {
		return nil, fmt.Errorf("unmarshal sensitive block: %w", err)
	}
	return &session.TransactionSession{
		ID:               env.ID,
		Status:           env.Status,
		CreatedAt:        env.CreatedAt,
		ExpiresAt:        env.ExpiresAt,
		LockedRate:       env.LockedRate,
		Financial:        env.Financial,
		Sensitive:        sens,
		GatewayReference: env.GatewayReference,
	}, nil
}
