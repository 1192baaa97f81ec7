package apiv1

import (
	"time"

	"course-ledger/internal/domain/model"
	"course-ledger/internal/usecase"
)

type Order struct {
	ID             string    `json:"id"`
	CourseID       string    `json:"courseId"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	GatewayOrderID string    `json:"gatewayOrderId"`
	FailureReason  string    `json:"failureReason,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

func toOrder(o *model.Order) Order {
	out := Order{
		ID:             o.ID,
		CourseID:       o.CourseID,
		Amount:         o.Amount,
		Currency:       o.Currency,
		Status:         string(o.Status),
		GatewayOrderID: o.GatewayOrderID,
		CreatedAt:      o.CreatedAt,
		ExpiresAt:      o.ExpiresAt,
	}
	if o.FailureReason != nil {
		out.FailureReason = *o.FailureReason
	}
	return out
}

type Purchase struct {
	ID                   string     `json:"id"`
	OrderID              string     `json:"orderId"`
	GatewayTransactionID string     `json:"gatewayTransactionId"`
	UserID               string     `json:"userId"`
	CourseID             string     `json:"courseId"`
	Amount               int64      `json:"amount"`
	Currency             string     `json:"currency"`
	Status               string     `json:"status"`
	CreatedAt            time.Time  `json:"createdAt"`
	RefundedAt           *time.Time `json:"refundedAt,omitempty"`
}

func ToPurchase(p *model.Purchase) *Purchase {
	if p == nil {
		return nil
	}
	return &Purchase{
		ID:                   p.ID,
		OrderID:              p.OrderID,
		GatewayTransactionID: p.GatewayTransactionID,
		UserID:               p.UserID,
		CourseID:             p.CourseID,
		Amount:               p.Amount,
		Currency:             p.Currency,
		Status:               string(p.Status),
		CreatedAt:            p.CreatedAt,
		RefundedAt:           p.RefundedAt,
	}
}

type Verification struct {
	Order            Order     `json:"order"`
	Purchase         *Purchase `json:"purchase"`
	AlreadyProcessed bool      `json:"alreadyProcessed"`
}

func ToVerification(res *usecase.VerificationResult) Verification {
	return Verification{
		Order:            toOrder(res.Order),
		Purchase:         ToPurchase(res.Purchase),
		AlreadyProcessed: res.AlreadyProcessed,
	}
}

type createOrderRequest struct {
	CourseID string `json:"courseId"`
}

type verifyRequest struct {
	OrderID    string `json:"orderId"`
	PaymentKey string `json:"paymentKey"`
}

type refundRequest struct {
	RefundedAt *time.Time `json:"refundedAt"`
}
