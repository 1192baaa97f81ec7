package api

import (
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"course-ledger/internal/domain"
	"course-ledger/internal/infra/adapters/payment"
	"course-ledger/internal/infra/api/apiv1"
	"course-ledger/internal/infra/logging"
	"course-ledger/internal/usecase"
)

const paymentStatusChanged = "PAYMENT_STATUS_CHANGED"

type webhookAck struct {
	Result  string `json:"result"` // processed|ignored
	OrderID string `json:"orderId,omitempty"`
}

// webhookHandler accepts signed gateway notifications. The body is only a hint:
// both paths re-query the gateway before touching the ledger. Business
// rejections are acknowledged so the gateway stops retrying; outages are not.
type webhookHandler struct {
	secret   string
	payments usecase.PaymentUseCase
	refunds  usecase.RefundUseCase
	log      *zerolog.Logger
}

func (h *webhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		apiv1.WriteError(w, r, h.log, domain.ErrInvalidArgument)
		return
	}
	log := logging.With(r.Context(), h.log)

	if !payment.VerifySignature(h.secret, body, r.Header.Get(payment.SignatureHeader)) {
		log.Warn().Str("remote_addr", r.RemoteAddr).Msg("webhook signature rejected")
		apiv1.WriteError(w, r, h.log, domain.ErrUnauthorized)
		return
	}
	ev, err := payment.ParseWebhook(body)
	if err != nil {
		apiv1.WriteError(w, r, h.log, err)
		return
	}
	if ev.EventType != paymentStatusChanged {
		apiv1.WriteJSON(w, http.StatusOK, webhookAck{Result: "ignored"})
		return
	}

	gtx := ev.Transaction
	ctx := r.Context()
	if gtx.Status.IsCanceled() {
		_, err = h.refunds.RefundFromGateway(ctx, gtx.PaymentKey)
	} else {
		_, err = h.payments.VerifyGatewayOrder(ctx, "", gtx.GatewayOrderID, gtx.PaymentKey)
	}

	switch {
	case err == nil:
		apiv1.WriteJSON(w, http.StatusOK, webhookAck{Result: "processed", OrderID: gtx.GatewayOrderID})
	default:
		code, kind := apiv1.StatusFor(err)
		if code >= http.StatusInternalServerError {
			apiv1.WriteError(w, r, h.log, err)
			return
		}
		log.Info().
			Str("gateway_order_id", gtx.GatewayOrderID).
			Str("gateway_status", string(gtx.Status)).
			Str("reason", kind).
			Msg("webhook acknowledged without ledger change")
		apiv1.WriteJSON(w, http.StatusOK, webhookAck{Result: "ignored", OrderID: gtx.GatewayOrderID})
	}
}
