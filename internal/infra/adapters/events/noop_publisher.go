package events

import (
	"context"
	"sync"

	"course-ledger/internal/domain/ports/adapter"
	"course-ledger/internal/infra/metrics"
)

var _ adapter.EventPublisher = (*NoopPublisher)(nil)

// NoopPublisher is used when no brokers are configured. It keeps the last
// events in memory so tests can assert on them.
type NoopPublisher struct {
	mu     sync.Mutex
	events []adapter.LedgerEvent
}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (p *NoopPublisher) Publish(_ context.Context, e adapter.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) >= 1000 {
		p.events = p.events[1:]
	}
	p.events = append(p.events, e)
	metrics.IncLedgerEvent(string(e.Type), "dropped")
	return nil
}

func (p *NoopPublisher) Events() []adapter.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]adapter.LedgerEvent(nil), p.events...)
}

func (p *NoopPublisher) Close() error { return nil }
