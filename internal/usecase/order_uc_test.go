//go:build !integration

package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/model"
	"course-ledger/internal/domain/ports/adapter"
)

func TestOrderUseCase_CreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("prices the order from the catalog", func(t *testing.T) {
		f := newFixture()
		o, err := f.orders.CreateOrder(ctx, "user-1", "course-go")
		if err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
		if o.Amount != 50000 || o.Currency != "KRW" {
			t.Errorf("amount = %d %s, want 50000 KRW", o.Amount, o.Currency)
		}
		if o.Status != model.OrderStatusCreated {
			t.Errorf("status = %s", o.Status)
		}
		if !o.ExpiresAt.Equal(f.now.Add(30 * time.Minute)) {
			t.Errorf("expiresAt = %v", o.ExpiresAt)
		}
		if !strings.HasPrefix(o.GatewayOrderID, "ord_") {
			t.Errorf("gateway order id = %q", o.GatewayOrderID)
		}
		stored := f.order(o.ID)
		if stored == nil || stored.GatewayOrderID != o.GatewayOrderID {
			t.Fatal("order not persisted")
		}
	})

	t.Run("each attempt gets its own gateway order id", func(t *testing.T) {
		f := newFixture()
		a, _ := f.orders.CreateOrder(ctx, "user-1", "course-go")
		b, err := f.orders.CreateOrder(ctx, "user-1", "course-go")
		if err != nil {
			t.Fatalf("second CreateOrder: %v", err)
		}
		if a.ID == b.ID || a.GatewayOrderID == b.GatewayOrderID {
			t.Error("orders share identifiers")
		}
	})

	t.Run("rejects courses that cannot be bought", func(t *testing.T) {
		f := newFixture()
		cases := []struct {
			course string
			want   error
		}{
			{"course-missing", domain.ErrNotFound},
			{"course-draft", domain.ErrNotFound},
			{"course-free", domain.ErrInvalidRequest},
		}
		for _, tc := range cases {
			if _, err := f.orders.CreateOrder(ctx, "user-1", tc.course); !errors.Is(err, tc.want) {
				t.Errorf("%s: err = %v, want %v", tc.course, err, tc.want)
			}
		}
		if _, err := f.orders.CreateOrder(ctx, "", "course-go"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("empty user err = %v", err)
		}
	})

	t.Run("refuses courses the user already owns", func(t *testing.T) {
		f := newFixture()
		o, _ := f.orders.CreateOrder(ctx, "user-1", "course-go")
		f.gateway.confirm("pk-1", o, 50000, adapter.GatewayStatusDone)
		if _, err := f.payments.VerifyPayment(ctx, "user-1", o.ID, "pk-1"); err != nil {
			t.Fatalf("VerifyPayment: %v", err)
		}
		if _, err := f.orders.CreateOrder(ctx, "user-1", "course-go"); !errors.Is(err, domain.ErrAlreadyOwned) {
			t.Errorf("purchased err = %v, want ErrAlreadyOwned", err)
		}

		_ = memEnrollments{f.store}.Save(ctx, nil, &model.Enrollment{
			ID: "enr-1", UserID: "user-1", CourseID: "course-ml", Status: model.EnrollmentStatusActive, EnrolledAt: f.now,
		})
		if _, err := f.orders.CreateOrder(ctx, "user-1", "course-ml"); !errors.Is(err, domain.ErrAlreadyOwned) {
			t.Errorf("enrolled err = %v, want ErrAlreadyOwned", err)
		}
	})

	t.Run("a refunded course can be bought again", func(t *testing.T) {
		f := newFixture()
		o, _ := f.orders.CreateOrder(ctx, "user-1", "course-go")
		f.gateway.confirm("pk-1", o, 50000, adapter.GatewayStatusDone)
		res, err := f.payments.VerifyPayment(ctx, "user-1", o.ID, "pk-1")
		if err != nil {
			t.Fatalf("VerifyPayment: %v", err)
		}
		if _, err := f.refunds.MarkRefunded(ctx, res.Purchase.ID, f.now, RefundSourceAdmin); err != nil {
			t.Fatalf("MarkRefunded: %v", err)
		}
		if _, err := f.orders.CreateOrder(ctx, "user-1", "course-go"); err != nil {
			t.Errorf("CreateOrder after refund: %v", err)
		}
	})
}

func TestOrderUseCase_GetOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o, _ := f.orders.CreateOrder(ctx, "user-1", "course-go")

	got, err := f.orders.GetOrder(ctx, "user-1", o.ID)
	if err != nil || got.ID != o.ID {
		t.Fatalf("GetOrder = %+v, %v", got, err)
	}
	if _, err := f.orders.GetOrder(ctx, "user-2", o.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign err = %v, want ErrNotFound", err)
	}

	f.now = f.now.Add(time.Hour)
	got, err = f.orders.GetOrder(ctx, "user-1", o.ID)
	if err != nil {
		t.Fatalf("GetOrder after ttl: %v", err)
	}
	if got.Status != model.OrderStatusExpired {
		t.Errorf("status after ttl = %s, want EXPIRED", got.Status)
	}
}

func TestOrderUseCase_ExpireStaleOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	created, _ := f.orders.CreateOrder(ctx, "user-1", "course-go")
	pending, _ := f.orders.CreateOrder(ctx, "user-2", "course-go")
	if _, err := (memOrders{f.store}).MarkPendingVerification(ctx, nil, pending.ID, "pk-2"); err != nil {
		t.Fatal(err)
	}
	fresh, _ := f.orders.CreateOrder(ctx, "user-3", "course-go")
	_ = fresh

	// CREATED and PENDING_VERIFICATION share the same deadline.
	later := f.now.Add(31 * time.Minute)
	f.store.mu.Lock()
	f.store.orders[fresh.ID].ExpiresAt = later.Add(time.Hour)
	f.store.mu.Unlock()

	if n, _ := f.orders.ExpireStaleOrders(ctx, f.now.Add(29*time.Minute)); n != 0 {
		t.Fatalf("expired %d orders before their ttl", n)
	}

	n, err := f.orders.ExpireStaleOrders(ctx, later)
	if err != nil || n != 2 {
		t.Fatalf("ExpireStaleOrders = %d, %v; want 2", n, err)
	}
	if f.order(created.ID).Status != model.OrderStatusExpired {
		t.Error("created order not expired")
	}
	if f.order(pending.ID).Status != model.OrderStatusExpired {
		t.Error("pending order survived its ttl")
	}
	if f.order(fresh.ID).Status != model.OrderStatusCreated {
		t.Error("fresh order expired")
	}

	if n, _ := f.orders.ExpireStaleOrders(ctx, later); n != 0 {
		t.Errorf("second run expired %d orders", n)
	}

	n, err = f.orders.ExpireStaleOrders(ctx, later.Add(2*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("ExpireStaleOrders later = %d, %v; want 1", n, err)
	}

	evs := f.events.ofType(adapter.EventOrdersExpired)
	if len(evs) != 2 || evs[0].Count != 2 || evs[1].Count != 1 {
		t.Errorf("unexpected orders.expired events %+v", evs)
	}
}
