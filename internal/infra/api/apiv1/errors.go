package apiv1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"course-ledger/internal/domain"
	"course-ledger/internal/infra/logging"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	TraceID string `json:"traceId,omitempty"`
}

// StatusFor maps domain sentinels to an HTTP status and a stable error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "not_purchasable"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrAlreadyOwned):
		return http.StatusConflict, "already_owned"
	case errors.Is(err, domain.ErrOrderExpired):
		return http.StatusGone, "order_expired"
	case errors.Is(err, domain.ErrOrderNotPending):
		return http.StatusConflict, "order_not_pending"
	case errors.Is(err, domain.ErrNotRefundable):
		return http.StatusConflict, "not_refundable"
	case errors.Is(err, domain.ErrAmountMismatch):
		return http.StatusUnprocessableEntity, "amount_mismatch"
	case errors.Is(err, domain.ErrOrderMismatch):
		return http.StatusUnprocessableEntity, "order_mismatch"
	case errors.Is(err, domain.ErrPaymentNotCompleted):
		return http.StatusPaymentRequired, "payment_not_completed"
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, "gateway_unavailable"
	case errors.Is(err, domain.ErrGatewayRejected):
		return http.StatusBadRequest, "gateway_rejected"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// WriteError renders err as JSON. Internal errors are logged and their text withheld.
func WriteError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	code, kind := StatusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		l := logging.With(r.Context(), logger)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		if code == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	WriteJSON(w, code, errorBody{Error: kind, Message: msg, TraceID: logging.TraceID(r.Context())})
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
