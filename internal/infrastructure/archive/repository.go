package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/horizonpay/pricing-service/internal/domain/interfaces"
)

const defaultListLimit = 100

// Repository keeps the durable, non-sensitive record of terminal
// transactions for the admin surface.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

const insertTransactionQuery = `
	INSERT INTO archived_transactions (
		session_id, status, amount_ngn, amount_inr_net,
		exchange_rate, rate_source, reference, completed_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	ON CONFLICT (session_id) DO NOTHING`

// Record stores one terminal transaction. A repeated record for the same
// session is a no-op, matching the idempotent completion path.
func (r *Repository) Record(ctx context.Context, txn *interfaces.ArchivedTransaction) error {
	if txn == nil {
		return errors.New("nil transaction")
	}
	_, err := r.pool.Exec(ctx, insertTransactionQuery,
		txn.SessionID,
		txn.Status,
		txn.AmountNGN,
		txn.AmountINRNet,
		txn.ExchangeRate,
		txn.RateSource,
		txn.Reference,
		txn.CompletedAt,
	)
	return err
}

// List returns archived transactions newest first, narrowed by the filter.
func (r *Repository) List(ctx context.Context, filter interfaces.ArchiveFilter) ([]interfaces.ArchivedTransaction, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status=$%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conditions = append(conditions, fmt.Sprintf("completed_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conditions = append(conditions, fmt.Sprintf("completed_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := `
		SELECT session_id, status, amount_ngn, amount_inr_net,
		       exchange_rate, rate_source, reference, completed_at
		FROM archived_transactions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY completed_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []interfaces.ArchivedTransaction
	for rows.Next() {
		var txn interfaces.ArchivedTransaction
		err := rows.Scan(
			&txn.SessionID,
			&txn.Status,
			&txn.AmountNGN,
			&txn.AmountINRNet,
			&txn.ExchangeRate,
			&txn.RateSource,
			&txn.Reference,
			&txn.CompletedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}
