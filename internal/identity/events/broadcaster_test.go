package events

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopgate/internal/identity/models"
	id "shopgate/pkg/domain"
)

func newBroadcaster() *Broadcaster {
	return NewBroadcaster(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func collect(t *testing.T, ch <-chan models.AuthEvent, n int) []models.AuthEvent {
	t.Helper()
	out := make([]models.AuthEvent, 0, n)
	for len(out) < n {
		select {
		case event := <-ch:
			out = append(out, event)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d events", len(out), n)
		}
	}
	return out
}

func TestPublishStampsPerScopeSequence(t *testing.T) {
	b := newBroadcaster()
	ch, cancel := b.Subscribe("scope-a")
	defer cancel()

	userID := id.NewUserID()
	b.Publish(models.AuthEvent{Type: models.EventSignedIn, Scope: "scope-a", UserID: userID})
	b.Publish(models.AuthEvent{Type: models.EventTokenRefreshed, Scope: "scope-a", UserID: userID})
	b.Publish(models.AuthEvent{Type: models.EventSignedOut, Scope: "scope-a", UserID: userID})

	got := collect(t, ch, 3)
	for i, event := range got {
		assert.Equal(t, uint64(i+1), event.Seq)
	}
	assert.Equal(t, models.EventSignedIn, got[0].Type)
	assert.Equal(t, models.EventSignedOut, got[2].Type)
	assert.Equal(t, uint64(3), b.LastSeq("scope-a"))
}

func TestScopesSequenceIndependently(t *testing.T) {
	b := newBroadcaster()
	chA, cancelA := b.Subscribe("scope-a")
	defer cancelA()
	chB, cancelB := b.Subscribe("scope-b")
	defer cancelB()

	b.Publish(models.AuthEvent{Type: models.EventSignedIn, Scope: "scope-a"})
	b.Publish(models.AuthEvent{Type: models.EventSignedIn, Scope: "scope-b"})

	gotA := collect(t, chA, 1)
	gotB := collect(t, chB, 1)
	assert.Equal(t, uint64(1), gotA[0].Seq)
	assert.Equal(t, uint64(1), gotB[0].Seq)

	// No cross-scope leakage.
	select {
	case event := <-chA:
		t.Fatalf("scope-a received foreign event %v", event)
	default:
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := newBroadcaster()
	ch, cancel := b.Subscribe("scope-a")
	cancel()

	b.Publish(models.AuthEvent{Type: models.EventSignedIn, Scope: "scope-a"})

	_, open := <-ch
	require.False(t, open)

	// Cancelling twice is safe.
	cancel()
}

func TestSlowSubscriberIsCutNotReordered(t *testing.T) {
	b := newBroadcaster()
	ch, cancel := b.Subscribe("scope-a")
	defer cancel()

	// Never drain: overflow the buffer and one more.
	for i := 0; i < subscriberBuffer+1; i++ {
		b.Publish(models.AuthEvent{Type: models.EventTokenRefreshed, Scope: "scope-a"})
	}

	// The buffered prefix arrives in order, then the channel closes. No gap
	// ever appears mid-stream.
	for i := 0; i < subscriberBuffer; i++ {
		event, open := <-ch
		require.True(t, open)
		require.Equal(t, uint64(i+1), event.Seq)
	}
	_, open := <-ch
	assert.False(t, open)

	// The sequence still advanced; a future subscriber sees the truth.
	assert.Equal(t, uint64(subscriberBuffer+1), b.LastSeq("scope-a"))
}
