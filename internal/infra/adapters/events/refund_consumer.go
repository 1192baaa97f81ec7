package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"course-ledger/internal/domain"
	"course-ledger/internal/domain/ports/adapter"
)

// RefundHandler applies a refund decided by the external refund processor.
type RefundHandler interface {
	ApplyRefundNotice(ctx context.Context, n adapter.RefundNotice) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RefundConsumer drives RefundHandler from the refunds topic. A message is
// retried until handled, then its offset is committed. MarkRefunded is
// idempotent so redelivery is safe.
type RefundConsumer struct {
	reader  messageReader
	handler RefundHandler
	logger  *zerolog.Logger
	backoff time.Duration
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
		MaxWait:  time.Second,
	})
}

func NewRefundConsumer(r messageReader, h RefundHandler, logger *zerolog.Logger) *RefundConsumer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RefundConsumer{reader: r, handler: h, logger: logger, backoff: time.Second}
}

// Run blocks until ctx is cancelled.
func (c *RefundConsumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("refund consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("close refund reader")
		}
		c.logger.Info().Msg("refund consumer stopped")
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("fetch refund message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		for {
			err := c.handle(ctx, msg)
			if err == nil {
				break
			}
			c.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("refund notice failed, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error().Err(err).Msg("commit refund offset")
		}
	}
}

func (c *RefundConsumer) handle(parent context.Context, msg kafka.Message) error {
	headers := headerCarrier(msg.Headers)
	ctx := otel.GetTextMapPropagator().Extract(parent, &headers)

	var n adapter.RefundNotice
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		c.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("malformed refund notice skipped")
		return nil
	}
	err := c.handler.ApplyRefundNotice(ctx, n)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrNotRefundable):
		c.logger.Warn().Err(err).Str("purchase_id", n.PurchaseID).Msg("refund notice rejected")
		return nil
	default:
		return err
	}
}
