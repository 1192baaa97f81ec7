package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/ports/adapter"
)

// SignatureHeader carries hex(HMAC-SHA256(secret, body)).
const SignatureHeader = "X-Gateway-Signature"

// Sign returns the signature the gateway is expected to send for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time. An empty secret never verifies.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// WebhookEvent is a PAYMENT_STATUS_CHANGED notification.
type WebhookEvent struct {
	EventType   string                      `json:"eventType"`
	Transaction *adapter.GatewayTransaction `json:"-"`
}

// ParseWebhook decodes a signed webhook body. Only the payment object is
// trusted, and only as a hint: callers re-query the gateway before acting.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var raw struct {
		EventType string      `json:"eventType"`
		Data      tossPayment `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	tx, err := raw.Data.toTransaction()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return &WebhookEvent{EventType: raw.EventType, Transaction: tx}, nil
}
