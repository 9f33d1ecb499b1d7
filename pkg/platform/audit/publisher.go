package audit

import (
	"context"
	"log/slog"
	"time"

	id "shopgate/pkg/domain"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}

// Publisher fans audit events out to a store, either synchronously or
// through a buffered channel. Emit never blocks domain logic in async mode;
// a full buffer drops the event with a log line rather than stalling a
// sign-in on audit I/O.
type Publisher struct {
	store  Store
	logger *slog.Logger
	events chan Event
	done   chan struct{}
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to buffered async mode.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.events = make(chan Event, size)
	}
}

// WithLogger sets the logger used for drop/failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a publisher over the given store. Without options it
// appends synchronously.
func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.events != nil {
		go p.drain()
	}
	return p
}

// Emit records an event. Timestamps default to now; categories derive from
// the action name.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}

	if p.events == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case p.events <- event:
	default:
		p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
	}
	return nil
}

// List returns all events recorded for a user.
func (p *Publisher) List(ctx context.Context, userID id.UserID) ([]Event, error) {
	return p.store.ListByUser(ctx, userID)
}

// Close flushes the async buffer and stops the drain goroutine.
func (p *Publisher) Close() {
	if p.events == nil {
		return
	}
	close(p.events)
	<-p.done
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.events {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("audit append failed", "error", err, "action", event.Action)
		}
	}
}
