package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"course-ledger/internal/domain/ports/adapter"
	"course-ledger/internal/infra/metrics"
)

var _ adapter.EventPublisher = (*KafkaPublisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes ledger events keyed by user id so one user's events
// stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	logger *zerolog.Logger
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewKafkaPublisher(w messageWriter, logger *zerolog.Logger) *KafkaPublisher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e adapter.LedgerEvent) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(e)
	if err != nil {
		metrics.IncLedgerEvent(string(e.Type), "error")
		return err
	}

	var headers headerCarrier
	otel.GetTextMapPropagator().Inject(ctx, &headers)
	headers.Set("event-type", string(e.Type))

	msg := kafka.Message{Key: []byte(e.UserID), Value: body, Headers: headers}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.IncLedgerEvent(string(e.Type), "error")
		p.logger.Error().Err(err).Str("event", string(e.Type)).Msg("publish ledger event failed")
		return err
	}
	metrics.IncLedgerEvent(string(e.Type), "ok")
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
