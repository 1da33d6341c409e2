//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"backlify-payments/internal/domain"
	"backlify-payments/internal/domain/model"
	"backlify-payments/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memOrderRepo is a small in-memory implementation used by unit tests. Its
// UpdateStatusIf has the same compare-and-set semantics as the Postgres repo.
type memOrderRepo struct {
	mu     sync.Mutex
	seq    int64
	store  map[string]*model.Order // by order_id
	insErr error
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{store: make(map[string]*model.Order)}
}

func (m *memOrderRepo) Insert(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if m.insErr != nil {
		return m.insErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[o.OrderID]; ok {
		return domain.ErrDuplicateOrder
	}
	m.seq++
	o.ID = m.seq
	cp := *o
	m.store[o.OrderID] = &cp
	return nil
}

func (m *memOrderRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.store {
		if o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memOrderRepo) ListByUser(ctx context.Context, tx repository.Tx, userLogin string, f repository.OrderFilter) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Order
	for _, o := range m.store {
		if o.UserLogin != userLogin {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memOrderRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Order
	for _, o := range m.store {
		if o.Status == model.OrderStatusPending && o.CreatedAt.Before(olderThan) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memOrderRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, orderID string, from []model.OrderStatus, to model.OrderStatus, txRef *string, details []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.store[orderID]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if o.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	o.Status = to
	if txRef != nil {
		o.TransactionID = txRef
	}
	if details != nil {
		o.PaymentDetails = details
	}
	o.UpdatedAt = time.Now()
	return true, nil
}

// memSubscriptionRepo emulates the partial unique index on
// (user_id, api_scope) where status='active': a conflicting upsert updates
// the existing active row.
type memSubscriptionRepo struct {
	mu    sync.Mutex
	seq   int64
	store []*model.Subscription
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{}
}

func scopeKey(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (m *memSubscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string, apiScope *string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.store {
		if s.UserID == userID && s.Status == model.SubscriptionStatusActive && scopeKey(s.APIScope) == scopeKey(apiScope) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSubscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.store {
		if s.UserID == sub.UserID && s.Status == model.SubscriptionStatusActive && scopeKey(s.APIScope) == scopeKey(sub.APIScope) {
			s.Plan = sub.Plan
			s.ExpirationDate = sub.ExpirationDate
			s.PaymentOrderID = sub.PaymentOrderID
			s.UpdatedAt = time.Now()
			sub.ID = s.ID
			return nil
		}
	}
	m.seq++
	sub.ID = m.seq
	cp := *sub
	m.store = append(m.store, &cp)
	return nil
}

func (m *memSubscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.store {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSubscriptionRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.store {
		if s.Status == model.SubscriptionStatusActive && !s.ExpirationDate.After(now) {
			s.Status = model.SubscriptionStatusExpired
			n++
		}
	}
	return n, nil
}

// memUserRepo serves the read-only user store.
type memUserRepo struct {
	mu    sync.RWMutex
	store map[string]*model.User // by login
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{store: make(map[string]*model.User)}
}

func (m *memUserRepo) add(id, login string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[login] = &model.User{ID: id, Login: login}
}

func (m *memUserRepo) FindByLogin(ctx context.Context, tx repository.Tx, login string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[login]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.store {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// mockTxManager serializes transactions with a mutex, the in-memory stand-in
// for the row locks a real transaction takes.
type mockTxManager struct {
	mu sync.Mutex
}

func newMockTxManager() *mockTxManager { return &mockTxManager{} }

func (m *mockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, nil)
}
