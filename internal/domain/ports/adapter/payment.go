package adapter

import (
	"context"
	"time"
)

// GatewayStatus is the gateway-side state of a transaction.
type GatewayStatus string

const (
	GatewayStatusReady             GatewayStatus = "READY"
	GatewayStatusInProgress        GatewayStatus = "IN_PROGRESS"
	GatewayStatusWaitingForDeposit GatewayStatus = "WAITING_FOR_DEPOSIT"
	GatewayStatusDone              GatewayStatus = "DONE"
	GatewayStatusCanceled          GatewayStatus = "CANCELED"
	GatewayStatusPartialCanceled   GatewayStatus = "PARTIAL_CANCELED"
	GatewayStatusAborted           GatewayStatus = "ABORTED"
	GatewayStatusExpired           GatewayStatus = "EXPIRED"
)

func (s GatewayStatus) IsDone() bool { return s == GatewayStatusDone }

// IsFailed reports statuses from which the payment can never complete.
func (s GatewayStatus) IsFailed() bool {
	return s == GatewayStatusAborted || s == GatewayStatusExpired
}

// IsCanceled reports statuses produced by a refund of a completed payment.
func (s GatewayStatus) IsCanceled() bool {
	return s == GatewayStatusCanceled || s == GatewayStatusPartialCanceled
}

// GatewayTransaction is what the gateway claims about a payment.
type GatewayTransaction struct {
	PaymentKey     string
	GatewayOrderID string
	TransactionID  string
	Amount         int64 // minor units
	Currency       string
	Status         GatewayStatus
	ApprovedAt     time.Time
}

// PaymentGateway is the hex port for the external payment provider.
// Implementations return domain.ErrGatewayUnavailable for transient failures
// (after their own retries) and domain.ErrGatewayRejected / domain.ErrNotFound
// for permanent ones.
type PaymentGateway interface {
	Name() string

	// VerifyTransaction looks up a transaction by the payment key the client received.
	VerifyTransaction(ctx context.Context, paymentKey string) (*GatewayTransaction, error)
	// FindByOrderID looks up the transaction for one of our gateway order ids.
	FindByOrderID(ctx context.Context, gatewayOrderID string) (*GatewayTransaction, error)
}
