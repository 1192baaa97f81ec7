package model

import (
	"strings"
	"time"

	"course-ledger/internal/domain"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

type OrderStatus string

const (
	OrderStatusCreated             OrderStatus = "CREATED"              // intent persisted, handed to gateway SDK
	OrderStatusPendingVerification OrderStatus = "PENDING_VERIFICATION" // gateway confirmed, purchase not yet committed
	OrderStatusConfirmed           OrderStatus = "CONFIRMED"            // purchase committed
	OrderStatusFailed              OrderStatus = "FAILED"               // verification failed (tampering, aborted payment)
	OrderStatusExpired             OrderStatus = "EXPIRED"              // abandoned past expires_at
)

// Order is a payment intent. Amount is copied from the catalog price at creation
// and never overwritten by gateway-reported values.
type Order struct {
	ID                string
	UserID            string
	CourseID          string
	Amount            int64 // minor currency unit
	Currency          string
	Status            OrderStatus
	GatewayOrderID    string // unique; given to the gateway SDK
	GatewayPaymentKey *string
	FailureReason     *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExpiresAt         time.Time
}

// NewOrder validates and constructs a CREATED order expiring after ttl.
func NewOrder(userID, courseID string, amount int64, currency string, ttl time.Duration, now time.Time) (*Order, error) {
	if userID == "" || courseID == "" || amount <= 0 || currency == "" || ttl <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Order{
		ID:             uuid.NewString(),
		UserID:         userID,
		CourseID:       courseID,
		Amount:         amount,
		Currency:       strings.ToUpper(currency),
		Status:         OrderStatusCreated,
		GatewayOrderID: NewGatewayOrderID(now),
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}, nil
}

// NewGatewayOrderID returns a time-sortable id accepted by gateways (alphanumeric, 6-64 chars).
func NewGatewayOrderID(now time.Time) string {
	return "ord_" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

// IsPending reports whether the order can still be verified or reconciled.
func (o *Order) IsPending() bool {
	return o.Status == OrderStatusCreated || o.Status == OrderStatusPendingVerification
}

func (o *Order) IsTerminal() bool { return !o.IsPending() }

// IsExpiredAt reports whether the order passed its TTL without being confirmed.
func (o *Order) IsExpiredAt(now time.Time) bool {
	if o.Status == OrderStatusExpired {
		return true
	}
	return o.IsPending() && now.After(o.ExpiresAt)
}

// CanTransition enforces the order state machine.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	switch s {
	case OrderStatusCreated:
		return to == OrderStatusPendingVerification || to == OrderStatusConfirmed ||
			to == OrderStatusFailed || to == OrderStatusExpired
	case OrderStatusPendingVerification:
		return to == OrderStatusConfirmed || to == OrderStatusFailed || to == OrderStatusExpired
	default:
		return false
	}
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusPendingVerification, OrderStatusConfirmed,
		OrderStatusFailed, OrderStatusExpired:
		return true
	}
	return false
}
