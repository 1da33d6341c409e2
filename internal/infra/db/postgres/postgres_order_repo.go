package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"backlify-payments/internal/domain"
	"backlify-payments/internal/domain/model"
	"backlify-payments/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `id, order_id, user_login, plan, api_scope, amount, currency, description, status, payment_transaction_id, payment_details, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	if err := row.Scan(&o.ID, &o.OrderID, &o.UserLogin, &o.Plan, &o.APIScope, &o.Amount, &o.Currency, &o.Description, &o.Status, &o.TransactionID, &o.PaymentDetails, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return o, nil
}

func (r *orderRepo) Insert(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `
INSERT INTO orders (order_id, user_login, plan, api_scope, amount, currency, description, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, o.OrderID, o.UserLogin, o.Plan, o.APIScope, o.Amount, o.Currency, o.Description, o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&o.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateOrder
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *orderRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE order_id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", orderID)
	if err != nil {
		return nil, err
	}
	return scanOrder(row)
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanOrder(row)
}

func (r *orderRepo) ListByUser(ctx context.Context, tx repository.Tx, userLogin string, f repository.OrderFilter) ([]*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE user_login=$1`
	args := []interface{}{userLogin}
	if f.Status != nil {
		args = append(args, *f.Status)
		q += ` AND status=$2`
	}
	if f.Since != nil {
		args = append(args, *f.Since)
		q += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY created_at DESC`
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	q += ` LIMIT $` + strconv.Itoa(len(args)) + `;`

	return r.list(ctx, tx, q, args...)
}

func (r *orderRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, olderThan, limit)
}

func (r *orderRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Order, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// UpdateStatusIf is the single mutation path for orders: a compare-and-set on
// (order_id, status). Two concurrent callbacks for the same order race here
// and exactly one wins.
func (r *orderRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, orderID string, from []model.OrderStatus, to model.OrderStatus, txRef *string, details []byte) (bool, error) {
	const q = `
UPDATE orders
   SET status = $2,
       payment_transaction_id = COALESCE($3, payment_transaction_id),
       payment_details = COALESCE($4, payment_details),
       updated_at = NOW()
 WHERE order_id = $1
   AND status = ANY($5);`

	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, orderID, to, txRef, details, statuses)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}
