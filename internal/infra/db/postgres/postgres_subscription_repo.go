package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"backlify-payments/internal/domain"
	"backlify-payments/internal/domain/model"
	"backlify-payments/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subColumns = `id, user_id, plan, api_scope, status, start_date, expiration_date, payment_order_id, created_at, updated_at`

func scanSub(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	if err := row.Scan(&s.ID, &s.UserID, &s.Plan, &s.APIScope, &s.Status, &s.StartDate, &s.ExpirationDate, &s.PaymentOrderID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *subscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string, apiScope *string) (*model.Subscription, error) {
	q := `
SELECT ` + subColumns + `
  FROM subscriptions
 WHERE user_id=$1 AND status='active' AND COALESCE(api_scope,'')=COALESCE($2,'')`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", userID, apiScope)
	if err != nil {
		return nil, err
	}
	return scanSub(row)
}

// Upsert relies on the partial unique index
// subscriptions_active_user_scope_uq (user_id, COALESCE(api_scope,'')) WHERE status='active'.
// A conflicting insert becomes an update of the existing active row: new plan,
// extended expiration, new funding order. Never "insert duplicate then fail".
func (r *subscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (user_id, plan, api_scope, status, start_date, expiration_date, payment_order_id, created_at, updated_at)
VALUES ($1,$2,$3,'active',$4,$5,$6,NOW(),NOW())
ON CONFLICT (user_id, COALESCE(api_scope,'')) WHERE status='active'
DO UPDATE SET
  plan=EXCLUDED.plan,
  expiration_date=EXCLUDED.expiration_date,
  payment_order_id=EXCLUDED.payment_order_id,
  updated_at=NOW()
RETURNING id, created_at;`

	row, err := pickRow(ctx, r.pool, tx, q, s.UserID, s.Plan, s.APIScope, s.StartDate, s.ExpirationDate, s.PaymentOrderID)
	if err != nil {
		return err
	}
	if err := row.Scan(&s.ID, &s.CreatedAt); err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	const q = `SELECT ` + subColumns + ` FROM subscriptions WHERE user_id=$1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// ExpireDue is the wall-clock sweep. It is idempotent: rows already expired
// are not matched again.
func (r *subscriptionRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	const q = `UPDATE subscriptions SET status='expired', updated_at=NOW() WHERE status='active' AND expiration_date <= $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return 0, err
		}
		return 0, domain.ErrOperationFailed
	}
	return cmd.RowsAffected(), nil
}
