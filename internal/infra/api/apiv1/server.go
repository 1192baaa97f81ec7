package apiv1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/model"
	"course-ledger/internal/infra/logging"
	"course-ledger/internal/usecase"
)

// Server holds the use cases behind /api/v1.
type Server struct {
	orders       usecase.OrderUseCase
	payments     usecase.PaymentUseCase
	refunds      usecase.RefundUseCase
	entitlements usecase.EntitlementUseCase
	revenue      usecase.RevenueUseCase
	log          *zerolog.Logger
}

func NewServer(
	orders usecase.OrderUseCase,
	payments usecase.PaymentUseCase,
	refunds usecase.RefundUseCase,
	entitlements usecase.EntitlementUseCase,
	revenue usecase.RevenueUseCase,
	logger *zerolog.Logger,
) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		orders:       orders,
		payments:     payments,
		refunds:      refunds,
		entitlements: entitlements,
		revenue:      revenue,
		log:          logger,
	}
}

// Guards are applied per route group; nil means no guard.
type Guards struct {
	Admin     func(http.Handler) http.Handler
	RateLimit func(http.Handler) http.Handler
}

func passthrough(h http.Handler) http.Handler { return h }

// RegisterAPIV1 mounts the JSON routes on r. Callers are expected to have
// authenticated the user already.
func RegisterAPIV1(r chi.Router, s *Server, g Guards) {
	if g.Admin == nil {
		g.Admin = passthrough
	}
	if g.RateLimit == nil {
		g.RateLimit = passthrough
	}

	r.With(g.RateLimit).Post("/orders", s.createOrder)
	r.Get("/orders/{id}", s.getOrder)
	r.With(g.RateLimit).Post("/payments/verify", s.verifyPayment)

	r.Get("/me/entitlements", s.listEntitlements)
	r.Get("/me/entitlements/{courseId}", s.getEntitlement)

	r.Route("/admin", func(r chi.Router) {
		r.Use(g.Admin)
		r.Get("/revenue", s.getRevenue)
		r.Post("/purchases/{id}/refund", s.refundPurchase)
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	o, err := s.orders.CreateOrder(r.Context(), logging.UserID(r.Context()), req.CourseID)
	if err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toOrder(o))
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.orders.GetOrder(r.Context(), logging.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, toOrder(o))
}

func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(w, r, &req); err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	if req.OrderID == "" || req.PaymentKey == "" {
		WriteError(w, r, s.log, fmt.Errorf("%w: orderId and paymentKey are required", domain.ErrInvalidArgument))
		return
	}
	res, err := s.payments.VerifyPayment(r.Context(), logging.UserID(r.Context()), req.OrderID, req.PaymentKey)
	if err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, ToVerification(res))
}

func (s *Server) listEntitlements(w http.ResponseWriter, r *http.Request) {
	ents, err := s.entitlements.ResolveEntitlements(r.Context(), logging.UserID(r.Context()))
	if err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, struct {
		Items []model.Entitlement `json:"items"`
	}{Items: ents})
}

func (s *Server) getEntitlement(w http.ResponseWriter, r *http.Request) {
	ent, err := s.entitlements.HasAccess(r.Context(), logging.UserID(r.Context()), chi.URLParam(r, "courseId"))
	if err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, ent)
}

// getRevenue accepts either from/to (RFC 3339) or period=day|week|month|year.
func (s *Server) getRevenue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		snap *model.RevenueSnapshot
		err  error
	)
	switch {
	case q.Get("from") != "" || q.Get("to") != "":
		var win model.RevenueWindow
		if win.From, err = time.Parse(time.RFC3339, q.Get("from")); err != nil {
			WriteError(w, r, s.log, fmt.Errorf("%w: from: %v", domain.ErrInvalidArgument, err))
			return
		}
		if win.To, err = time.Parse(time.RFC3339, q.Get("to")); err != nil {
			WriteError(w, r, s.log, fmt.Errorf("%w: to: %v", domain.ErrInvalidArgument, err))
			return
		}
		snap, err = s.revenue.Aggregate(r.Context(), win)
	case q.Get("period") != "":
		snap, err = s.revenue.AggregatePeriod(r.Context(), q.Get("period"))
	default:
		err = fmt.Errorf("%w: from/to or period is required", domain.ErrInvalidArgument)
	}
	if err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) refundPurchase(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			WriteError(w, r, s.log, err)
			return
		}
	}
	var at time.Time
	if req.RefundedAt != nil {
		at = *req.RefundedAt
	}
	p, err := s.refunds.MarkRefunded(r.Context(), chi.URLParam(r, "id"), at, usecase.RefundSourceAdmin)
	if err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, ToPurchase(p))
}
