package adapter

import (
	"context"
	"time"
)

type LedgerEventType string

const (
	EventPurchaseCompleted LedgerEventType = "purchase.completed"
	EventPurchaseRefunded  LedgerEventType = "purchase.refunded"
	EventOrderFailed       LedgerEventType = "order.failed"
	EventOrdersExpired     LedgerEventType = "orders.expired"
)

// LedgerEvent is emitted after a ledger change commits. Delivery is best effort;
// consumers must treat the ledger as the source of truth.
type LedgerEvent struct {
	Type       LedgerEventType `json:"type"`
	OrderID    string          `json:"orderId,omitempty"`
	PurchaseID string          `json:"purchaseId,omitempty"`
	UserID     string          `json:"userId,omitempty"`
	CourseID   string          `json:"courseId,omitempty"`
	Amount     int64           `json:"amount,omitempty"`
	Currency   string          `json:"currency,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Count      int             `json:"count,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

type EventPublisher interface {
	Publish(ctx context.Context, e LedgerEvent) error
	Close() error
}

// RefundNotice is an externally-decided refund delivered by the refund processor.
type RefundNotice struct {
	PurchaseID           string    `json:"purchaseId,omitempty"`
	GatewayTransactionID string    `json:"gatewayTransactionId,omitempty"`
	RefundedAt           time.Time `json:"refundedAt"`
}
