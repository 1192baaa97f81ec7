package payment

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*FakeGateway)(nil)

// FakeGateway is an in-memory gateway for local runs and tests. Unknown
// payment keys of the form "<gatewayOrderId>:<amount>" are accepted as DONE
// when AutoApprove is set, so a dev client can fake the SDK step.
type FakeGateway struct {
	mu          sync.Mutex
	byKey       map[string]*adapter.GatewayTransaction
	calls       int
	failNext    int
	AutoApprove bool
	Currency    string
}

func NewFakeGateway(currency string) *FakeGateway {
	return &FakeGateway{
		byKey:    make(map[string]*adapter.GatewayTransaction),
		Currency: strings.ToUpper(currency),
	}
}

func (g *FakeGateway) Name() string { return "fake" }

// Put registers what the gateway will report for tx.PaymentKey.
func (g *FakeGateway) Put(tx adapter.GatewayTransaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if tx.TransactionID == "" {
		tx.TransactionID = tx.PaymentKey
	}
	g.byKey[tx.PaymentKey] = &tx
}

// FailNext makes the next n lookups return ErrGatewayUnavailable.
func (g *FakeGateway) FailNext(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = n
}

// Calls reports how many lookups were made.
func (g *FakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *FakeGateway) VerifyTransaction(ctx context.Context, paymentKey string) (*adapter.GatewayTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx); err != nil {
		return nil, err
	}
	if tx, ok := g.byKey[paymentKey]; ok {
		cp := *tx
		return &cp, nil
	}
	if g.AutoApprove {
		if tx, ok := g.autoApprove(paymentKey); ok {
			g.byKey[paymentKey] = tx
			cp := *tx
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (g *FakeGateway) FindByOrderID(ctx context.Context, gatewayOrderID string) (*adapter.GatewayTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx); err != nil {
		return nil, err
	}
	for _, tx := range g.byKey {
		if tx.GatewayOrderID == gatewayOrderID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (g *FakeGateway) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.calls++
	if g.failNext > 0 {
		g.failNext--
		return domain.ErrGatewayUnavailable
	}
	return nil
}

func (g *FakeGateway) autoApprove(paymentKey string) (*adapter.GatewayTransaction, bool) {
	orderID, amountStr, ok := strings.Cut(paymentKey, ":")
	if !ok || orderID == "" {
		return nil, false
	}
	amount, err := strconv.ParseInt(amountStr, 10, 64)
	if err != nil || amount <= 0 {
		return nil, false
	}
	return &adapter.GatewayTransaction{
		PaymentKey:     paymentKey,
		GatewayOrderID: orderID,
		TransactionID:  "fake-" + orderID,
		Amount:         amount,
		Currency:       g.Currency,
		Status:         adapter.GatewayStatusDone,
		ApprovedAt:     time.Now(),
	}, true
}
