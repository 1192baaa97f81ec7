package model

import (
	"time"

	"course-ledger/internal/domain"

	"github.com/google/uuid"
)

type PurchaseStatus string

const (
	PurchaseStatusCompleted PurchaseStatus = "COMPLETED"
	PurchaseStatusRefunded  PurchaseStatus = "REFUNDED"
)

// Purchase is a ledger entry. Exactly one exists per OrderID and per
// GatewayTransactionID; rows are never deleted, only moved to REFUNDED.
type Purchase struct {
	ID                   string
	OrderID              string
	GatewayTransactionID string
	UserID               string
	CourseID             string
	Amount               int64
	Currency             string
	Status               PurchaseStatus
	CreatedAt            time.Time
	RefundedAt           *time.Time
}

// NewPurchase builds the COMPLETED ledger entry for a confirmed order.
func NewPurchase(o *Order, gatewayTransactionID string, amount int64, now time.Time) (*Purchase, error) {
	if o == nil || o.ID == "" || gatewayTransactionID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if amount != o.Amount {
		return nil, domain.ErrAmountMismatch
	}
	return &Purchase{
		ID:                   uuid.NewString(),
		OrderID:              o.ID,
		GatewayTransactionID: gatewayTransactionID,
		UserID:               o.UserID,
		CourseID:             o.CourseID,
		Amount:               o.Amount,
		Currency:             o.Currency,
		Status:               PurchaseStatusCompleted,
		CreatedAt:            now,
	}, nil
}

func (p *Purchase) IsCompleted() bool { return p != nil && p.Status == PurchaseStatusCompleted }
func (p *Purchase) IsRefunded() bool  { return p != nil && p.Status == PurchaseStatusRefunded }
