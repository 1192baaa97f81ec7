//go:build !integration

package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"course-ledger/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// --- Order Model Tests ---

func TestNewOrder(t *testing.T) {
	t.Run("should create a CREATED order", func(t *testing.T) {
		o, err := NewOrder("user-1", "course-1", 50000, "krw", 30*time.Minute, t0)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if o.ID == "" || o.Status != OrderStatusCreated {
			t.Errorf("unexpected order %+v", o)
		}
		if o.Currency != "KRW" {
			t.Errorf("expected currency KRW, got %s", o.Currency)
		}
		if !o.ExpiresAt.Equal(t0.Add(30 * time.Minute)) {
			t.Errorf("unexpected expiresAt %v", o.ExpiresAt)
		}
		if !strings.HasPrefix(o.GatewayOrderID, "ord_") || len(o.GatewayOrderID) > 64 {
			t.Errorf("unexpected gateway order id %q", o.GatewayOrderID)
		}
	})

	t.Run("should reject invalid input", func(t *testing.T) {
		cases := []struct {
			name     string
			user     string
			course   string
			amount   int64
			currency string
			ttl      time.Duration
		}{
			{"empty user", "", "c", 1, "KRW", time.Minute},
			{"empty course", "u", "", 1, "KRW", time.Minute},
			{"zero amount", "u", "c", 0, "KRW", time.Minute},
			{"negative amount", "u", "c", -5, "KRW", time.Minute},
			{"no currency", "u", "c", 1, "", time.Minute},
			{"no ttl", "u", "c", 1, "KRW", 0},
		}
		for _, tc := range cases {
			if _, err := NewOrder(tc.user, tc.course, tc.amount, tc.currency, tc.ttl, t0); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("%s: expected ErrInvalidArgument, got %v", tc.name, err)
			}
		}
	})
}

func TestOrderStateMachine(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusCreated:             {OrderStatusPendingVerification, OrderStatusConfirmed, OrderStatusFailed, OrderStatusExpired},
		OrderStatusPendingVerification: {OrderStatusConfirmed, OrderStatusFailed, OrderStatusExpired},
	}
	all := []OrderStatus{OrderStatusCreated, OrderStatusPendingVerification, OrderStatusConfirmed, OrderStatusFailed, OrderStatusExpired}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
	if OrderStatus("PAID").Valid() {
		t.Error("unknown status reported valid")
	}
}

func TestOrderExpiry(t *testing.T) {
	o, _ := NewOrder("u", "c", 100, "KRW", time.Minute, t0)
	if o.IsExpiredAt(t0.Add(time.Minute)) {
		t.Error("order expired exactly at expiresAt")
	}
	if !o.IsExpiredAt(t0.Add(time.Minute + time.Second)) {
		t.Error("order not expired after ttl")
	}
	o.Status = OrderStatusConfirmed
	if o.IsExpiredAt(t0.Add(time.Hour)) {
		t.Error("confirmed order reported expired")
	}
	if !o.IsTerminal() {
		t.Error("confirmed order not terminal")
	}
}

// --- Purchase Model Tests ---

func TestNewPurchase(t *testing.T) {
	o, _ := NewOrder("user-1", "course-1", 50000, "KRW", time.Minute, t0)

	p, err := NewPurchase(o, "gtx-1", 50000, t0)
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if p.OrderID != o.ID || p.UserID != "user-1" || p.CourseID != "course-1" || !p.IsCompleted() {
		t.Errorf("unexpected purchase %+v", p)
	}
	if p.RefundedAt != nil {
		t.Error("new purchase carries refundedAt")
	}

	if _, err := NewPurchase(o, "gtx-1", 1000, t0); !errors.Is(err, domain.ErrAmountMismatch) {
		t.Errorf("expected ErrAmountMismatch, got %v", err)
	}
	if _, err := NewPurchase(o, "", 50000, t0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCoursePurchasable(t *testing.T) {
	if (&Course{ID: "c", Price: 0, Published: true}).IsPurchasable() {
		t.Error("free course purchasable")
	}
	if (&Course{ID: "c", Price: 100, Published: false}).IsPurchasable() {
		t.Error("unpublished course purchasable")
	}
	if !(&Course{ID: "c", Price: 100, Published: true}).IsPurchasable() {
		t.Error("published paid course not purchasable")
	}
}

// --- Entitlement Tests ---

func TestMergeEntitlements(t *testing.T) {
	enrollments := []*Enrollment{
		{ID: "e1", UserID: "u", CourseID: "a", Status: EnrollmentStatusActive, EnrolledAt: t0.Add(-3 * time.Hour), ProgressPercentage: 20},
		{ID: "e2", UserID: "u", CourseID: "a", Status: EnrollmentStatusActive, EnrolledAt: t0.Add(-5 * time.Hour), ProgressPercentage: 70},
		{ID: "e3", UserID: "u", CourseID: "b", Status: EnrollmentStatusActive, EnrolledAt: t0.Add(-1 * time.Hour), ProgressPercentage: 5},
		{ID: "e4", UserID: "u", CourseID: "c", Status: EnrollmentStatusCancelled, EnrolledAt: t0},
		{ID: "e5", UserID: "other", CourseID: "d", Status: EnrollmentStatusActive, EnrolledAt: t0},
	}
	refundedAt := t0
	purchases := []*Purchase{
		{ID: "p1", UserID: "u", CourseID: "b", Amount: 900, Status: PurchaseStatusCompleted, CreatedAt: t0.Add(-2 * time.Hour)},
		{ID: "p2", UserID: "u", CourseID: "e", Amount: 500, Status: PurchaseStatusRefunded, CreatedAt: t0, RefundedAt: &refundedAt},
	}

	got := MergeEntitlements("u", enrollments, purchases)
	if len(got) != 2 {
		t.Fatalf("expected 2 entitlements, got %+v", got)
	}

	// b: purchase wins over a later enrollment and keeps its progress.
	if got[0].CourseID != "b" || got[0].Source != EntitlementSourcePurchase || got[0].PurchaseID != "p1" ||
		got[0].AmountPaid != 900 || got[0].ProgressPercentage != 5 {
		t.Errorf("unexpected entitlement for b: %+v", got[0])
	}
	// a: earliest enrollment grant, highest progress.
	if got[1].CourseID != "a" || !got[1].GrantedAt.Equal(t0.Add(-5*time.Hour)) || got[1].ProgressPercentage != 70 {
		t.Errorf("unexpected entitlement for a: %+v", got[1])
	}

	if out := MergeEntitlements("nobody", enrollments, purchases); len(out) != 0 {
		t.Errorf("expected no entitlements, got %+v", out)
	}
}

// --- Revenue Tests ---

func TestComputeRevenueSnapshot(t *testing.T) {
	w := RevenueWindow{From: t0, To: t0.Add(24 * time.Hour)}
	refundedAt := t0.Add(3 * time.Hour)
	purchases := []*Purchase{
		{ID: "1", CourseID: "go", Amount: 50000, Status: PurchaseStatusCompleted, CreatedAt: t0},
		{ID: "2", CourseID: "go", Amount: 50000, Status: PurchaseStatusRefunded, CreatedAt: t0.Add(time.Hour), RefundedAt: &refundedAt},
		{ID: "3", CourseID: "ml", Amount: 30000, Status: PurchaseStatusCompleted, CreatedAt: t0.Add(2 * time.Hour)},
		{ID: "4", CourseID: "lost", Amount: 10000, Status: PurchaseStatusCompleted, CreatedAt: t0.Add(3 * time.Hour)},
		{ID: "5", CourseID: "go", Amount: 50000, Status: PurchaseStatusCompleted, CreatedAt: t0.Add(24 * time.Hour)},
	}
	categories := map[string]string{"go": "backend", "ml": "data"}

	snap := ComputeRevenueSnapshot(w, "KRW", purchases, categories)

	if snap.TotalRevenue != 90000 || snap.TransactionCount != 3 || snap.RefundCount != 1 {
		t.Errorf("unexpected totals %d/%d/%d", snap.TotalRevenue, snap.TransactionCount, snap.RefundCount)
	}
	if snap.AverageOrderValue.String() != "30000" {
		t.Errorf("unexpected average %s", snap.AverageOrderValue)
	}
	if snap.RefundRate.String() != "0.25" {
		t.Errorf("unexpected refund rate %s", snap.RefundRate)
	}

	wantCategories := []RevenueBreakdown{
		{Key: "backend", Revenue: 50000, TransactionCount: 1, RefundCount: 1},
		{Key: "data", Revenue: 30000, TransactionCount: 1},
		{Key: UncategorizedKey, Revenue: 10000, TransactionCount: 1},
	}
	if len(snap.ByCategory) != len(wantCategories) {
		t.Fatalf("unexpected categories %+v", snap.ByCategory)
	}
	for i, want := range wantCategories {
		if snap.ByCategory[i] != want {
			t.Errorf("category %d: got %+v, want %+v", i, snap.ByCategory[i], want)
		}
	}

	empty := ComputeRevenueSnapshot(w, "KRW", nil, nil)
	if !empty.AverageOrderValue.IsZero() || !empty.RefundRate.IsZero() || empty.ByCourse == nil {
		t.Errorf("unexpected empty snapshot %+v", empty)
	}
}

func TestRevenueWindow(t *testing.T) {
	if err := (RevenueWindow{From: t0, To: t0}).Validate(); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("empty window accepted: %v", err)
	}
	w, err := WindowForPeriod("week", t0)
	if err != nil {
		t.Fatalf("WindowForPeriod: %v", err)
	}
	if !w.To.Equal(t0) || !w.From.Equal(t0.AddDate(0, 0, -7)) {
		t.Errorf("unexpected window %+v", w)
	}
	if _, err := WindowForPeriod("fortnight", t0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("unknown period accepted: %v", err)
	}
}
