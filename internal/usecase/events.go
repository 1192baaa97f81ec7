package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-ledger/internal/domain/ports/adapter"
)

// publishTimeout caps how long a committed request waits on the broker.
var publishTimeout = 2 * time.Second

// publish emits a ledger event after commit. Failures are logged and dropped;
// the ledger tables stay authoritative. The send is detached from the caller's
// cancellation so a client hanging up does not lose the event.
func publish(ctx context.Context, pub adapter.EventPublisher, logger *zerolog.Logger, e adapter.LedgerEvent) {
	if pub == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := pub.Publish(ctx, e); err != nil {
		logger.Warn().Err(err).Str("event", string(e.Type)).Msg("ledger event not published")
	}
}

func nopLogger(l *zerolog.Logger) *zerolog.Logger {
	if l != nil {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}
