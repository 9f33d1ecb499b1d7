// Package events delivers ordered auth-change notifications to per-scope
// subscribers, standing in for a hosted provider's realtime channel.
package events

import (
	"log/slog"
	"sync"

	"shopgate/internal/identity/models"
)

// subscriber buffers are sized so a briefly busy consumer never stalls the
// publisher; a consumer that falls further behind than this is cancelled
// rather than reordered.
const subscriberBuffer = 32

// Broadcaster fans auth events out to subscribers, preserving per-scope
// delivery order and stamping each event with a per-scope sequence number.
type Broadcaster struct {
	mu     sync.Mutex
	seqs   map[string]uint64
	subs   map[string]map[int]chan models.AuthEvent
	nextID int
	logger *slog.Logger
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		seqs:   make(map[string]uint64),
		subs:   make(map[string]map[int]chan models.AuthEvent),
		logger: logger,
	}
}

// Subscribe registers for a scope's event stream. The returned cancel
// function unregisters and closes the channel.
func (b *Broadcaster) Subscribe(scope string) (<-chan models.AuthEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.AuthEvent, subscriberBuffer)
	if b.subs[scope] == nil {
		b.subs[scope] = make(map[int]chan models.AuthEvent)
	}
	subID := b.nextID
	b.nextID++
	b.subs[scope][subID] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[scope][subID]; ok {
			delete(b.subs[scope], subID)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish stamps the event with the scope's next sequence number and
// delivers it to every subscriber in registration order. Delivery happens
// under the lock so two concurrent publishes cannot interleave out of order.
// A subscriber whose buffer is full is dropped: skipping one event for a
// live consumer would violate ordering, so the whole stream is cut instead.
func (b *Broadcaster) Publish(event models.AuthEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seqs[event.Scope]++
	event.Seq = b.seqs[event.Scope]

	for subID, ch := range b.subs[event.Scope] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("auth event subscriber too slow, dropping subscription",
				"scope", event.Scope,
				"seq", event.Seq,
			)
			delete(b.subs[event.Scope], subID)
			close(ch)
		}
	}
}

// LastSeq returns the latest sequence number published for a scope.
func (b *Broadcaster) LastSeq(scope string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seqs[scope]
}
