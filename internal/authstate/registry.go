package authstate

import (
	"context"
	"log/slog"
	"sync"

	"shopgate/internal/identity/models"
)

// EventSource hands out the ordered auth-change stream for a scope.
type EventSource interface {
	Subscribe(scope string) (<-chan models.AuthEvent, func())
}

// Registry lazily creates one holder per scope and runs its event loop.
// Each scope gets an independent holder, so two browser sessions for the
// same user verify admin status independently.
type Registry struct {
	factory func(scope string) *Holder
	events  EventSource
	logger  *slog.Logger

	mu      sync.Mutex
	holders map[string]*holderEntry
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

type holderEntry struct {
	holder      *Holder
	unsubscribe func()
}

func NewRegistry(factory func(scope string) *Holder, events EventSource, logger *slog.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		factory: factory,
		events:  events,
		logger:  logger,
		holders: make(map[string]*holderEntry),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Get returns the holder for a scope, creating and initializing it on first
// use. The holder subscribes to the scope's event stream before Init so no
// auth change can slip between the snapshot load and the stream start.
func (r *Registry) Get(ctx context.Context, scope string) *Holder {
	r.mu.Lock()
	if entry, ok := r.holders[scope]; ok {
		r.mu.Unlock()
		return entry.holder
	}
	if r.closed {
		r.mu.Unlock()
		h := r.factory(scope)
		h.Init(ctx)
		return h
	}

	h := r.factory(scope)
	events, unsubscribe := r.events.Subscribe(scope)
	r.holders[scope] = &holderEntry{holder: h, unsubscribe: unsubscribe}
	r.wg.Add(1)
	r.mu.Unlock()

	h.Init(ctx)
	go func() {
		defer r.wg.Done()
		h.Run(r.baseCtx, events)
	}()

	r.logger.DebugContext(ctx, "authorization holder created", "scope", scope)
	return h
}

// Drop removes a scope's holder, ending its event loop. Used when a scope
// cookie is retired.
func (r *Registry) Drop(scope string) {
	r.mu.Lock()
	entry, ok := r.holders[scope]
	if ok {
		delete(r.holders, scope)
	}
	r.mu.Unlock()
	if ok {
		entry.unsubscribe()
	}
}

// Close stops all holder event loops and waits for them to finish.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	entries := make([]*holderEntry, 0, len(r.holders))
	for scope, entry := range r.holders {
		entries = append(entries, entry)
		delete(r.holders, scope)
	}
	r.mu.Unlock()

	for _, entry := range entries {
		entry.unsubscribe()
	}
	r.cancel()
	r.wg.Wait()
}
