package model

import (
	"sort"
	"time"
)

type EntitlementSource string

const (
	EntitlementSourceEnrollment EntitlementSource = "ENROLLMENT"
	EntitlementSourcePurchase   EntitlementSource = "PURCHASE"
)

// Entitlement is computed from the ledger and never persisted.
type Entitlement struct {
	UserID             string            `json:"userId"`
	CourseID           string            `json:"courseId"`
	Source             EntitlementSource `json:"source"`
	GrantedAt          time.Time         `json:"grantedAt"`
	AmountPaid         int64             `json:"amountPaid"`
	PurchaseID         string            `json:"purchaseId,omitempty"`
	ProgressPercentage int               `json:"progressPercentage"`
}

// MergeEntitlements folds ACTIVE enrollments and COMPLETED purchases into at most
// one entitlement per course. A purchase always wins over an enrollment; within a
// source the earliest grant is kept. Inactive rows are ignored.
func MergeEntitlements(userID string, enrollments []*Enrollment, purchases []*Purchase) []Entitlement {
	byCourse := make(map[string]*Entitlement, len(enrollments)+len(purchases))
	progress := make(map[string]int, len(enrollments))

	for _, e := range enrollments {
		if !e.IsActive() || e.UserID != userID {
			continue
		}
		if p, ok := progress[e.CourseID]; !ok || e.ProgressPercentage > p {
			progress[e.CourseID] = e.ProgressPercentage
		}
		cur, ok := byCourse[e.CourseID]
		if ok && !e.EnrolledAt.Before(cur.GrantedAt) {
			continue
		}
		byCourse[e.CourseID] = &Entitlement{
			UserID:    userID,
			CourseID:  e.CourseID,
			Source:    EntitlementSourceEnrollment,
			GrantedAt: e.EnrolledAt,
		}
	}

	for _, p := range purchases {
		if !p.IsCompleted() || p.UserID != userID {
			continue
		}
		cur, ok := byCourse[p.CourseID]
		if ok && cur.Source == EntitlementSourcePurchase && !p.CreatedAt.Before(cur.GrantedAt) {
			continue
		}
		byCourse[p.CourseID] = &Entitlement{
			UserID:     userID,
			CourseID:   p.CourseID,
			Source:     EntitlementSourcePurchase,
			GrantedAt:  p.CreatedAt,
			AmountPaid: p.Amount,
			PurchaseID: p.ID,
		}
	}

	out := make([]Entitlement, 0, len(byCourse))
	for courseID, ent := range byCourse {
		ent.ProgressPercentage = progress[courseID]
		out = append(out, *ent)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GrantedAt.Equal(out[j].GrantedAt) {
			return out[i].GrantedAt.After(out[j].GrantedAt)
		}
		return out[i].CourseID < out[j].CourseID
	})
	return out
}
