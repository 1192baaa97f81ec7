//go:build !integration

package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/model"
	"course-ledger/internal/domain/ports/adapter"
	"course-ledger/internal/domain/ports/repository"
)

// -----------------------------
// In-memory ledger store
// -----------------------------

// memStore backs every repository port. Transactions are serialized and keep
// an undo log, so a failed WithTx leaves no trace, like Postgres would.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	orders      map[string]*model.Order
	purchases   map[string]*model.Purchase
	enrollments map[string]*model.Enrollment
	courses     map[string]*model.Course

	snapshotTxs int
	now         func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		orders:      map[string]*model.Order{},
		purchases:   map[string]*model.Purchase{},
		enrollments: map[string]*model.Enrollment{},
		courses:     map[string]*model.Course{},
		now:         time.Now,
	}
}

type memTx struct {
	undo []func()
}

func (s *memStore) onUndo(tx repository.Tx, f func()) {
	if t, ok := tx.(*memTx); ok {
		t.undo = append(t.undo, f)
	}
}

var _ repository.TransactionManager = (*memStore)(nil)

func (s *memStore) WithTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if opts.IsoLevel == pgx.RepeatableRead {
		s.mu.Lock()
		s.snapshotTxs++
		s.mu.Unlock()
	}
	tx := &memTx{}
	if err := fn(ctx, tx); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func cloneOrder(o *model.Order) *model.Order { cp := *o; return &cp }
func clonePurchase(p *model.Purchase) *model.Purchase {
	cp := *p
	return &cp
}

// --- orders ---

type memOrders struct{ s *memStore }

var _ repository.OrderRepository = memOrders{}

func (r memOrders) Save(_ context.Context, tx repository.Tx, o *model.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ex := range r.s.orders {
		if ex.GatewayOrderID == o.GatewayOrderID && ex.ID != o.ID {
			return domain.ErrAlreadyExists
		}
	}
	if _, ok := r.s.orders[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.s.orders[o.ID] = cloneOrder(o)
	r.s.onUndo(tx, func() { delete(r.s.orders, o.ID) })
	return nil
}

func (r memOrders) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r memOrders) FindByGatewayOrderID(_ context.Context, _ repository.Tx, gatewayOrderID string) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.GatewayOrderID == gatewayOrderID {
			return cloneOrder(o), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memOrders) update(tx repository.Tx, id string, mutate func(o *model.Order) bool) bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return false
	}
	prev := cloneOrder(o)
	if !mutate(o) {
		return false
	}
	o.UpdatedAt = r.s.now().UTC()
	r.s.onUndo(tx, func() { r.s.orders[id] = prev })
	return true
}

func (r memOrders) MarkPendingVerification(_ context.Context, tx repository.Tx, id, paymentKey string) (bool, error) {
	return r.update(tx, id, func(o *model.Order) bool {
		if !o.IsPending() {
			return false
		}
		o.Status = model.OrderStatusPendingVerification
		o.GatewayPaymentKey = &paymentKey
		return true
	}), nil
}

func (r memOrders) UpdateStatusIfPending(_ context.Context, tx repository.Tx, id string, status model.OrderStatus, reason *string) (bool, error) {
	if !model.OrderStatusPendingVerification.CanTransition(status) {
		return false, domain.ErrInvalidArgument
	}
	return r.update(tx, id, func(o *model.Order) bool {
		if !o.IsPending() {
			return false
		}
		o.Status = status
		if reason != nil {
			o.FailureReason = reason
		}
		return true
	}), nil
}

func (r memOrders) ExpireStale(_ context.Context, tx repository.Tx, now time.Time) (int, error) {
	r.s.mu.Lock()
	ids := []string{}
	for id, o := range r.s.orders {
		if o.IsPending() && o.ExpiresAt.Before(now) {
			ids = append(ids, id)
		}
	}
	r.s.mu.Unlock()
	for _, id := range ids {
		r.update(tx, id, func(o *model.Order) bool {
			o.Status = model.OrderStatusExpired
			return true
		})
	}
	return len(ids), nil
}

func (r memOrders) ListOrphans(_ context.Context, _ repository.Tx, updatedBefore, expiresAfter time.Time, limit int) ([]*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Order
	for _, o := range r.s.orders {
		if o.Status == model.OrderStatusPendingVerification && o.UpdatedAt.Before(updatedBefore) && o.ExpiresAt.After(expiresAfter) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- purchases ---

type memPurchases struct{ s *memStore }

var _ repository.PurchaseRepository = memPurchases{}

func (r memPurchases) Insert(_ context.Context, tx repository.Tx, p *model.Purchase) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ex := range r.s.purchases {
		if ex.OrderID == p.OrderID || ex.GatewayTransactionID == p.GatewayTransactionID {
			return domain.ErrDuplicateReconciliation
		}
	}
	r.s.purchases[p.ID] = clonePurchase(p)
	r.s.onUndo(tx, func() { delete(r.s.purchases, p.ID) })
	return nil
}

func (r memPurchases) find(match func(p *model.Purchase) bool) (*model.Purchase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.purchases {
		if match(p) {
			return clonePurchase(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memPurchases) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Purchase, error) {
	return r.find(func(p *model.Purchase) bool { return p.ID == id })
}

func (r memPurchases) FindByOrderID(_ context.Context, _ repository.Tx, orderID string) (*model.Purchase, error) {
	return r.find(func(p *model.Purchase) bool { return p.OrderID == orderID })
}

func (r memPurchases) FindByGatewayTransactionID(_ context.Context, _ repository.Tx, txID string) (*model.Purchase, error) {
	return r.find(func(p *model.Purchase) bool { return p.GatewayTransactionID == txID })
}

func (r memPurchases) list(match func(p *model.Purchase) bool) []*model.Purchase {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Purchase
	for _, p := range r.s.purchases {
		if match(p) {
			out = append(out, clonePurchase(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r memPurchases) ListCompletedByUser(_ context.Context, _ repository.Tx, userID string) ([]*model.Purchase, error) {
	return r.list(func(p *model.Purchase) bool { return p.UserID == userID && p.IsCompleted() }), nil
}

func (r memPurchases) ListCreatedBetween(_ context.Context, _ repository.Tx, from, to time.Time) ([]*model.Purchase, error) {
	return r.list(func(p *model.Purchase) bool { return !p.CreatedAt.Before(from) && p.CreatedAt.Before(to) }), nil
}

func (r memPurchases) MarkRefunded(_ context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.purchases[id]
	if !ok || !p.IsCompleted() {
		return false, nil
	}
	prev := clonePurchase(p)
	p.Status = model.PurchaseStatusRefunded
	p.RefundedAt = &at
	r.s.onUndo(tx, func() { r.s.purchases[id] = prev })
	return true, nil
}

// --- enrollments & catalog ---

type memEnrollments struct{ s *memStore }

var _ repository.EnrollmentRepository = memEnrollments{}

func (r memEnrollments) Save(_ context.Context, _ repository.Tx, e *model.Enrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *e
	r.s.enrollments[e.ID] = &cp
	return nil
}

func (r memEnrollments) ListActiveByUser(_ context.Context, _ repository.Tx, userID string) ([]*model.Enrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Enrollment
	for _, e := range r.s.enrollments {
		if e.UserID == userID && e.IsActive() {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memCourses struct{ s *memStore }

var _ repository.CourseRepository = memCourses{}

func (r memCourses) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.courses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memCourses) Categories(_ context.Context, _ repository.Tx, ids []string) (map[string]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[string]string{}
	for _, id := range ids {
		if c, ok := r.s.courses[id]; ok {
			out[id] = c.Category
		}
	}
	return out, nil
}

func (r memCourses) Save(_ context.Context, _ repository.Tx, c *model.Course) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *c
	r.s.courses[c.ID] = &cp
	return nil
}

// -----------------------------
// Gateway & events
// -----------------------------

type mockGateway struct {
	mu      sync.Mutex
	byKey   map[string]adapter.GatewayTransaction
	byOrder map[string]adapter.GatewayTransaction
	err     error
	delay   time.Duration
	verifyN int
	findN   int
}

var _ adapter.PaymentGateway = (*mockGateway)(nil)

func newMockGateway() *mockGateway {
	return &mockGateway{byKey: map[string]adapter.GatewayTransaction{}, byOrder: map[string]adapter.GatewayTransaction{}}
}

func (g *mockGateway) Name() string { return "mock" }

// confirm registers a completed payment for the order.
func (g *mockGateway) confirm(paymentKey string, o *model.Order, amount int64, status adapter.GatewayStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	tx := adapter.GatewayTransaction{
		PaymentKey:     paymentKey,
		GatewayOrderID: o.GatewayOrderID,
		TransactionID:  "gtx-" + paymentKey,
		Amount:         amount,
		Currency:       o.Currency,
		Status:         status,
		ApprovedAt:     time.Now(),
	}
	g.byKey[paymentKey] = tx
	g.byOrder[o.GatewayOrderID] = tx
}

func (g *mockGateway) set(tx adapter.GatewayTransaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byKey[tx.PaymentKey] = tx
	g.byOrder[tx.GatewayOrderID] = tx
}

func (g *mockGateway) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *mockGateway) calls() (verify, find int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyN, g.findN
}

func (g *mockGateway) VerifyTransaction(_ context.Context, paymentKey string) (*adapter.GatewayTransaction, error) {
	g.mu.Lock()
	g.verifyN++
	delay, err := g.delay, g.err
	tx, ok := g.byKey[paymentKey]
	g.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &tx, nil
}

func (g *mockGateway) FindByOrderID(_ context.Context, gatewayOrderID string) (*adapter.GatewayTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.findN++
	if g.err != nil {
		return nil, g.err
	}
	tx, ok := g.byOrder[gatewayOrderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &tx, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []adapter.LedgerEvent
}

var _ adapter.EventPublisher = (*recordingPublisher)(nil)

func (p *recordingPublisher) Publish(_ context.Context, e adapter.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) ofType(t adapter.LedgerEventType) []adapter.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []adapter.LedgerEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// -----------------------------
// Fixture
// -----------------------------

type fixture struct {
	store    *memStore
	gateway  *mockGateway
	events   *recordingPublisher
	now      time.Time
	orders   *orderUC
	payments *paymentUC
	recon    *reconcileUC
	refunds  *refundUC
	ents     *entitlementUC
	revenue  *revenueUC
}

func newFixture() *fixture {
	s := newMemStore()
	f := &fixture{
		store:   s,
		gateway: newMockGateway(),
		events:  &recordingPublisher{},
		now:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	s.now = clock

	f.orders = NewOrderUseCase(memOrders{s}, memPurchases{s}, memEnrollments{s}, memCourses{s}, f.events,
		OrderSettings{Currency: "KRW", TTL: 30 * time.Minute}, nil)
	f.orders.now = clock
	f.recon = NewReconcileUseCase(s, memOrders{s}, memPurchases{s}, f.events, nil)
	f.recon.now = clock
	f.payments = NewPaymentUseCase(memOrders{s}, memPurchases{s}, f.recon, f.gateway, f.events,
		PaymentSettings{OrphanGrace: 2 * time.Minute, OrphanBatch: 50}, nil)
	f.payments.now = clock
	f.refunds = NewRefundUseCase(s, memPurchases{s}, f.gateway, f.events, nil)
	f.refunds.now = clock
	f.ents = NewEntitlementUseCase(s, memEnrollments{s}, memPurchases{s})
	f.revenue = NewRevenueUseCase(s, memPurchases{s}, memCourses{s}, "KRW", nil)
	f.revenue.now = clock

	_ = memCourses{s}.Save(context.Background(), nil, &model.Course{ID: "course-go", Title: "Go in Production", Category: "backend", Price: 50000, Published: true})
	_ = memCourses{s}.Save(context.Background(), nil, &model.Course{ID: "course-ml", Title: "ML Basics", Category: "data", Price: 30000, Published: true})
	_ = memCourses{s}.Save(context.Background(), nil, &model.Course{ID: "course-free", Title: "Intro", Category: "backend", Price: 0, Published: true})
	_ = memCourses{s}.Save(context.Background(), nil, &model.Course{ID: "course-draft", Title: "Draft", Category: "backend", Price: 9000, Published: false})
	return f
}

func (f *fixture) purchaseCount() int {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return len(f.store.purchases)
}

func (f *fixture) order(id string) *model.Order {
	o, _ := memOrders{f.store}.FindByID(context.Background(), nil, id)
	return o
}
