package repository

import (
	"context"
	"time"

	"backlify-payments/internal/domain/model"
)

// OrderFilter narrows ListByUser results.
type OrderFilter struct {
	Status *model.OrderStatus
	Since  *time.Time
	Limit  int
}

// OrderRepository owns the orders table. Every mutation reachable from a
// gateway callback keys on order_id, never on the serial id.
type OrderRepository interface {
	Insert(ctx context.Context, tx Tx, o *model.Order) error
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.Order, error)
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Order, error)
	ListByUser(ctx context.Context, tx Tx, userLogin string, f OrderFilter) ([]*model.Order, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Order, error)

	// UpdateStatusIf is a compare-and-set on (order_id, status): the row moves
	// to `to` only if its current status is one of `from`. Returns false when
	// the guard did not match. txRef and details are written when non-nil.
	UpdateStatusIf(ctx context.Context, tx Tx, orderID string, from []model.OrderStatus, to model.OrderStatus, txRef *string, details []byte) (bool, error)
}
