//go:build !integration

// File: internal/usecase/activation_uc_test.go
package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"backlify-payments/internal/domain"
	"backlify-payments/internal/domain/model"
	"backlify-payments/internal/domain/ports/adapter"
	"backlify-payments/internal/domain/ports/repository"
	"backlify-payments/internal/usecase"
)

const testUserID = "8d5c6aa3-8f48-4f8b-b5b1-2a4b8f0d9c11"

type activationFixture struct {
	orders *memOrderRepo
	subs   *memSubscriptionRepo
	users  *memUserRepo
	ledger usecase.OrderUseCase
	uc     usecase.ActivationUseCase
}

func newActivationFixture(t *testing.T) *activationFixture {
	t.Helper()
	orders := newMemOrderRepo()
	subs := newMemSubscriptionRepo()
	users := newMemUserRepo()
	users.add(testUserID, "alice")
	ledger := usecase.NewOrderUseCase(orders, newTestLogger())
	period := func(plan string) time.Duration { return 365 * 24 * time.Hour }
	uc := usecase.NewActivationUseCase(ledger, subs, users, newMockTxManager(), nil, period, newTestLogger())
	return &activationFixture{orders: orders, subs: subs, users: users, ledger: ledger, uc: uc}
}

func (f *activationFixture) seedOrder(t *testing.T, login string) *model.Order {
	t.Helper()
	o, err := f.ledger.Create(context.Background(), login, model.PlanPro, decimal.NewFromInt(20), "AZN", "pro plan", nil)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

func successBody(orderID, txRef string) *adapter.CallbackBody {
	return &adapter.CallbackBody{
		OrderID:     orderID,
		Status:      adapter.CallbackStatusSuccess,
		Transaction: txRef,
		Amount:      decimal.NewFromInt(20),
	}
}

func TestActivationUC_Success(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a subscription and marks the order paid", func(t *testing.T) {
		f := newActivationFixture(t)
		o := f.seedOrder(t, "alice")

		if err := f.uc.HandleCallback(ctx, successBody(o.OrderID, "TX-1"), []byte(`{"status":"success"}`)); err != nil {
			t.Fatalf("HandleCallback() error = %v", err)
		}

		got, _ := f.orders.FindByOrderID(ctx, repository.NoTX, o.OrderID)
		if got.Status != model.OrderStatusPaid {
			t.Errorf("order status = %q, want paid", got.Status)
		}
		sub, err := f.subs.FindActiveByUser(ctx, repository.NoTX, testUserID, nil)
		if err != nil {
			t.Fatalf("no active subscription after activation: %v", err)
		}
		if sub.PaymentOrderID != o.ID {
			t.Errorf("subscription funded by order %d, want %d", sub.PaymentOrderID, o.ID)
		}
		if until := time.Until(sub.ExpirationDate); until < 364*24*time.Hour {
			t.Errorf("expiration only %v away, want about a year", until)
		}
	})

	t.Run("second paid order extends the existing subscription", func(t *testing.T) {
		f := newActivationFixture(t)
		first := f.seedOrder(t, "alice")
		if err := f.uc.HandleCallback(ctx, successBody(first.OrderID, "TX-1"), nil); err != nil {
			t.Fatalf("first callback: %v", err)
		}
		before, _ := f.subs.FindActiveByUser(ctx, repository.NoTX, testUserID, nil)

		second := f.seedOrder(t, "alice")
		if err := f.uc.HandleCallback(ctx, successBody(second.OrderID, "TX-2"), nil); err != nil {
			t.Fatalf("second callback: %v", err)
		}

		subs, _ := f.subs.ListByUser(ctx, repository.NoTX, testUserID)
		if len(subs) != 1 {
			t.Fatalf("got %d subscription rows, want 1", len(subs))
		}
		after := subs[0]
		if !after.ExpirationDate.After(before.ExpirationDate) {
			t.Errorf("expiration %v not extended past %v", after.ExpirationDate, before.ExpirationDate)
		}
		if after.PaymentOrderID != second.ID {
			t.Errorf("funding order = %d, want the latest %d", after.PaymentOrderID, second.ID)
		}
	})

	t.Run("replayed callback is acknowledged without a second extension", func(t *testing.T) {
		f := newActivationFixture(t)
		o := f.seedOrder(t, "alice")
		if err := f.uc.HandleCallback(ctx, successBody(o.OrderID, "TX-1"), nil); err != nil {
			t.Fatalf("first callback: %v", err)
		}
		before, _ := f.subs.FindActiveByUser(ctx, repository.NoTX, testUserID, nil)

		if err := f.uc.HandleCallback(ctx, successBody(o.OrderID, "TX-1"), nil); err != nil {
			t.Fatalf("replay returned error = %v, want nil", err)
		}
		after, _ := f.subs.FindActiveByUser(ctx, repository.NoTX, testUserID, nil)
		if !after.ExpirationDate.Equal(before.ExpirationDate) {
			t.Errorf("replay moved expiration from %v to %v", before.ExpirationDate, after.ExpirationDate)
		}
	})

	t.Run("paid order with a different ref conflicts", func(t *testing.T) {
		f := newActivationFixture(t)
		o := f.seedOrder(t, "alice")
		if err := f.uc.HandleCallback(ctx, successBody(o.OrderID, "TX-1"), nil); err != nil {
			t.Fatalf("first callback: %v", err)
		}
		if err := f.uc.HandleCallback(ctx, successBody(o.OrderID, "TX-OTHER"), nil); !errors.Is(err, domain.ErrConflictingTransaction) {
			t.Fatalf("error = %v, want ErrConflictingTransaction", err)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newActivationFixture(t)
		if err := f.uc.HandleCallback(ctx, successBody("SUB-NOPE", "TX-1"), nil); !errors.Is(err, domain.ErrUnknownOrder) {
			t.Fatalf("error = %v, want ErrUnknownOrder", err)
		}
	})

	t.Run("missing order id", func(t *testing.T) {
		f := newActivationFixture(t)
		if err := f.uc.HandleCallback(ctx, &adapter.CallbackBody{Status: adapter.CallbackStatusSuccess}, nil); !errors.Is(err, domain.ErrInvalidEnvelope) {
			t.Fatalf("error = %v, want ErrInvalidEnvelope", err)
		}
	})

	t.Run("order for a deleted user fails the order", func(t *testing.T) {
		f := newActivationFixture(t)
		o := f.seedOrder(t, "ghost") // no such user in the store
		if err := f.uc.HandleCallback(ctx, successBody(o.OrderID, "TX-1"), nil); !errors.Is(err, domain.ErrOrphanOrder) {
			t.Fatalf("error = %v, want ErrOrphanOrder", err)
		}
		got, _ := f.orders.FindByOrderID(ctx, repository.NoTX, o.OrderID)
		if got.Status != model.OrderStatusFailed {
			t.Errorf("orphan order status = %q, want failed", got.Status)
		}
	})
}

func TestActivationUC_NonSuccess(t *testing.T) {
	ctx := context.Background()

	t.Run("failure callback fails the order and grants nothing", func(t *testing.T) {
		f := newActivationFixture(t)
		o := f.seedOrder(t, "alice")
		body := &adapter.CallbackBody{OrderID: o.OrderID, Status: adapter.CallbackStatusFailed, Message: "declined"}
		if err := f.uc.HandleCallback(ctx, body, []byte(`{"status":"failed"}`)); err != nil {
			t.Fatalf("HandleCallback() error = %v", err)
		}
		got, _ := f.orders.FindByOrderID(ctx, repository.NoTX, o.OrderID)
		if got.Status != model.OrderStatusFailed {
			t.Errorf("order status = %q, want failed", got.Status)
		}
		if _, err := f.subs.FindActiveByUser(ctx, repository.NoTX, testUserID, nil); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("failure callback created a subscription")
		}
	})

	t.Run("cancel callback cancels a pending order", func(t *testing.T) {
		f := newActivationFixture(t)
		o := f.seedOrder(t, "alice")
		body := &adapter.CallbackBody{OrderID: o.OrderID, Status: adapter.CallbackStatusCancelled}
		if err := f.uc.HandleCallback(ctx, body, nil); err != nil {
			t.Fatalf("HandleCallback() error = %v", err)
		}
		got, _ := f.orders.FindByOrderID(ctx, repository.NoTX, o.OrderID)
		if got.Status != model.OrderStatusCancelled {
			t.Errorf("order status = %q, want cancelled", got.Status)
		}
	})

	t.Run("reversal marks the order reversed but keeps the subscription", func(t *testing.T) {
		f := newActivationFixture(t)
		o := f.seedOrder(t, "alice")
		if err := f.uc.HandleCallback(ctx, successBody(o.OrderID, "TX-1"), nil); err != nil {
			t.Fatalf("activate: %v", err)
		}
		body := &adapter.CallbackBody{OrderID: o.OrderID, Status: adapter.CallbackStatusReversed, Transaction: "TX-1"}
		if err := f.uc.HandleCallback(ctx, body, nil); err != nil {
			t.Fatalf("reversal callback: %v", err)
		}
		got, _ := f.orders.FindByOrderID(ctx, repository.NoTX, o.OrderID)
		if got.Status != model.OrderStatusReversed {
			t.Errorf("order status = %q, want reversed", got.Status)
		}
		if _, err := f.subs.FindActiveByUser(ctx, repository.NoTX, testUserID, nil); err != nil {
			t.Errorf("reversal revoked the subscription: %v", err)
		}
	})

	t.Run("unknown callback status", func(t *testing.T) {
		f := newActivationFixture(t)
		o := f.seedOrder(t, "alice")
		body := &adapter.CallbackBody{OrderID: o.OrderID, Status: "mystery"}
		if err := f.uc.HandleCallback(ctx, body, nil); !errors.Is(err, domain.ErrInvalidEnvelope) {
			t.Fatalf("error = %v, want ErrInvalidEnvelope", err)
		}
	})
}

// Concurrent duplicate callbacks must settle the order exactly once and extend
// the subscription exactly once; the loser resolves to the replay path.
func TestActivationUC_ConcurrentCallbacks(t *testing.T) {
	ctx := context.Background()
	f := newActivationFixture(t)
	o := f.seedOrder(t, "alice")

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.uc.HandleCallback(ctx, successBody(o.OrderID, "TX-1"), nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d: HandleCallback() error = %v, want nil", i, err)
		}
	}

	got, _ := f.orders.FindByOrderID(ctx, repository.NoTX, o.OrderID)
	if got.Status != model.OrderStatusPaid {
		t.Fatalf("order status = %q, want paid", got.Status)
	}
	subs, _ := f.subs.ListByUser(ctx, repository.NoTX, testUserID)
	if len(subs) != 1 {
		t.Fatalf("got %d subscription rows, want 1", len(subs))
	}
	want := time.Now().Add(365 * 24 * time.Hour)
	if diff := subs[0].ExpirationDate.Sub(want); diff > time.Minute || diff < -time.Minute {
		t.Errorf("expiration %v drifted from a single one-year grant", subs[0].ExpirationDate)
	}
}
