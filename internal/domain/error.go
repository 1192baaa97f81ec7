package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")

	// Storage
	ErrInvalidExecContext = errors.New("invalid exec context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Order manager
	ErrInvalidRequest = errors.New("course is not purchasable")
	ErrAlreadyOwned   = errors.New("user already owns this course")

	// Verification
	ErrOrderExpired        = errors.New("order has expired")
	ErrOrderNotPending     = errors.New("order is no longer pending")
	ErrAmountMismatch      = errors.New("gateway amount does not match order")
	ErrOrderMismatch       = errors.New("gateway transaction does not belong to order")
	ErrPaymentNotCompleted = errors.New("payment not completed at gateway")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrGatewayRejected     = errors.New("payment gateway rejected the request")

	// Reconciliation. Never surfaced to callers: a race loss resolves to the existing purchase.
	ErrDuplicateReconciliation = errors.New("purchase already recorded")

	// Refunds
	ErrNotRefundable = errors.New("purchase is not refundable")
)
