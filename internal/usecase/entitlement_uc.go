package usecase

import (
	"context"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/model"
	"course-ledger/internal/domain/ports/repository"
)

// Compile-time check
var _ EntitlementUseCase = (*entitlementUC)(nil)

type EntitlementUseCase interface {
	// ResolveEntitlements lists what the user can access, newest grant first.
	ResolveEntitlements(ctx context.Context, userID string) ([]model.Entitlement, error)
	// HasAccess returns the entitlement for one course or domain.ErrNotFound.
	HasAccess(ctx context.Context, userID, courseID string) (*model.Entitlement, error)
}

type entitlementUC struct {
	tm          repository.TransactionManager
	enrollments repository.EnrollmentRepository
	purchases   repository.PurchaseRepository
}

func NewEntitlementUseCase(tm repository.TransactionManager, enrollments repository.EnrollmentRepository, purchases repository.PurchaseRepository) *entitlementUC {
	return &entitlementUC{tm: tm, enrollments: enrollments, purchases: purchases}
}

func (u *entitlementUC) ResolveEntitlements(ctx context.Context, userID string) ([]model.Entitlement, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	var (
		enrollments []*model.Enrollment
		purchases   []*model.Purchase
	)
	// Both reads share one snapshot so a concurrent write is seen by both or neither.
	err := u.tm.WithTx(ctx, repository.SnapshotTxOptions, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if enrollments, err = u.enrollments.ListActiveByUser(ctx, tx, userID); err != nil {
			return err
		}
		purchases, err = u.purchases.ListCompletedByUser(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return model.MergeEntitlements(userID, enrollments, purchases), nil
}

func (u *entitlementUC) HasAccess(ctx context.Context, userID, courseID string) (*model.Entitlement, error) {
	if courseID == "" {
		return nil, domain.ErrInvalidArgument
	}
	ents, err := u.ResolveEntitlements(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range ents {
		if ents[i].CourseID == courseID {
			return &ents[i], nil
		}
	}
	return nil, domain.ErrNotFound
}
