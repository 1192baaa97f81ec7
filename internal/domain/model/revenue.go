package model

import (
	"sort"
	"time"

	"course-ledger/internal/domain"

	"github.com/shopspring/decimal"
)

const UncategorizedKey = "uncategorized"

// RevenueWindow is the half-open interval [From, To).
type RevenueWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (w RevenueWindow) Validate() error {
	if w.From.IsZero() || w.To.IsZero() || !w.From.Before(w.To) {
		return domain.ErrInvalidArgument
	}
	return nil
}

func (w RevenueWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// WindowForPeriod resolves day|week|month|year to the window ending at now.
func WindowForPeriod(period string, now time.Time) (RevenueWindow, error) {
	now = now.UTC()
	var from time.Time
	switch period {
	case "day":
		from = now.AddDate(0, 0, -1)
	case "week":
		from = now.AddDate(0, 0, -7)
	case "month":
		from = now.AddDate(0, -1, 0)
	case "year":
		from = now.AddDate(-1, 0, 0)
	default:
		return RevenueWindow{}, domain.ErrInvalidArgument
	}
	return RevenueWindow{From: from, To: now}, nil
}

type RevenueBreakdown struct {
	Key              string `json:"key"`
	Revenue          int64  `json:"revenue"`
	TransactionCount int    `json:"transactionCount"`
	RefundCount      int    `json:"refundCount"`
}

// RevenueSnapshot is recomputed from purchase rows on every call.
type RevenueSnapshot struct {
	Window            RevenueWindow      `json:"window"`
	Currency          string             `json:"currency"`
	TotalRevenue      int64              `json:"totalRevenue"`
	TransactionCount  int                `json:"transactionCount"`
	RefundCount       int                `json:"refundCount"`
	AverageOrderValue decimal.Decimal    `json:"averageOrderValue"`
	RefundRate        decimal.Decimal    `json:"refundRate"`
	ByCategory        []RevenueBreakdown `json:"byCategory"`
	ByCourse          []RevenueBreakdown `json:"byCourse"`
}

// ComputeRevenueSnapshot aggregates the purchases created inside w. Revenue and
// transaction counts use COMPLETED rows only; refundRate is refunded / all rows.
// categories maps course id to catalog category; missing ids are grouped as uncategorized.
func ComputeRevenueSnapshot(w RevenueWindow, currency string, purchases []*Purchase, categories map[string]string) RevenueSnapshot {
	snap := RevenueSnapshot{
		Window:            RevenueWindow{From: w.From.UTC(), To: w.To.UTC()},
		Currency:          currency,
		AverageOrderValue: decimal.Zero,
		RefundRate:        decimal.Zero,
		ByCategory:        []RevenueBreakdown{},
		ByCourse:          []RevenueBreakdown{},
	}

	byCategory := map[string]*RevenueBreakdown{}
	byCourse := map[string]*RevenueBreakdown{}
	bucket := func(m map[string]*RevenueBreakdown, key string) *RevenueBreakdown {
		b, ok := m[key]
		if !ok {
			b = &RevenueBreakdown{Key: key}
			m[key] = b
		}
		return b
	}

	all := 0
	for _, p := range purchases {
		if p == nil || !w.Contains(p.CreatedAt) {
			continue
		}
		all++
		category := categories[p.CourseID]
		if category == "" {
			category = UncategorizedKey
		}
		cat := bucket(byCategory, category)
		course := bucket(byCourse, p.CourseID)

		switch p.Status {
		case PurchaseStatusCompleted:
			snap.TotalRevenue += p.Amount
			snap.TransactionCount++
			cat.Revenue += p.Amount
			cat.TransactionCount++
			course.Revenue += p.Amount
			course.TransactionCount++
		case PurchaseStatusRefunded:
			snap.RefundCount++
			cat.RefundCount++
			course.RefundCount++
		}
	}

	if snap.TransactionCount > 0 {
		snap.AverageOrderValue = decimal.NewFromInt(snap.TotalRevenue).
			DivRound(decimal.NewFromInt(int64(snap.TransactionCount)), 2)
	}
	if all > 0 {
		snap.RefundRate = decimal.NewFromInt(int64(snap.RefundCount)).
			DivRound(decimal.NewFromInt(int64(all)), 4)
	}
	snap.ByCategory = sortedBreakdowns(byCategory)
	snap.ByCourse = sortedBreakdowns(byCourse)
	return snap
}

func sortedBreakdowns(m map[string]*RevenueBreakdown) []RevenueBreakdown {
	out := make([]RevenueBreakdown, 0, len(m))
	for _, b := range m {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
