package authz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopgate/internal/platform/metrics"
	id "shopgate/pkg/domain"
	dErrors "shopgate/pkg/domain-errors"
)

// stubAdminStore answers IsAdmin after an optional delay, honoring the
// check context's deadline the way a real driver would.
type stubAdminStore struct {
	calls   atomic.Int32
	delay   time.Duration
	err     error
	isAdmin bool
}

func (s *stubAdminStore) IsAdmin(ctx context.Context, _ id.UserID) (bool, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.isAdmin, s.err
}

func (s *stubAdminStore) Grant(context.Context, id.UserID) error  { return nil }
func (s *stubAdminStore) Revoke(context.Context, id.UserID) error { return nil }

func newVerifier(t *testing.T, store *stubAdminStore, timeout time.Duration) *Verifier {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewVerifier(store, timeout, metrics.NewWith(prometheus.NewRegistry()), logger)
}

func TestVerifyAnswers(t *testing.T) {
	store := &stubAdminStore{isAdmin: true}
	v := newVerifier(t, store, time.Second)

	isAdmin, err := v.Verify(context.Background(), id.NewUserID())
	require.NoError(t, err)
	assert.True(t, isAdmin)

	store2 := &stubAdminStore{isAdmin: false}
	v2 := newVerifier(t, store2, time.Second)

	isAdmin, err = v2.Verify(context.Background(), id.NewUserID())
	require.NoError(t, err)
	assert.False(t, isAdmin)
}

func TestVerifyTimeoutMapsToCodeTimeout(t *testing.T) {
	store := &stubAdminStore{isAdmin: true, delay: time.Second}
	v := newVerifier(t, store, 50*time.Millisecond)

	isAdmin, err := v.Verify(context.Background(), id.NewUserID())
	require.Error(t, err)
	assert.False(t, isAdmin)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVerifyStoreErrorMapsToCodeUnavailable(t *testing.T) {
	store := &stubAdminStore{err: errors.New("connection refused")}
	v := newVerifier(t, store, time.Second)

	isAdmin, err := v.Verify(context.Background(), id.NewUserID())
	require.Error(t, err)
	assert.False(t, isAdmin)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.False(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestVerifyCallerCancellation(t *testing.T) {
	store := &stubAdminStore{isAdmin: true, delay: time.Second}
	v := newVerifier(t, store, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Verify(ctx, id.NewUserID())
	require.Error(t, err)
	// Caller cancellation is not a store timeout.
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

// Concurrent checks for one user collapse into a single store query and all
// callers get the same answer.
func TestVerifyCollapsesConcurrentChecks(t *testing.T) {
	store := &stubAdminStore{isAdmin: true, delay: 300 * time.Millisecond}
	v := newVerifier(t, store, 5*time.Second)
	userID := id.NewUserID()

	const callers = 5
	var wg sync.WaitGroup
	answers := make([]bool, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			answers[i], errs[i] = v.Verify(context.Background(), userID)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), store.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.True(t, answers[i])
	}
}

// Distinct users never share a flight.
func TestVerifyDistinctUsersQuerySeparately(t *testing.T) {
	store := &stubAdminStore{isAdmin: true, delay: 100 * time.Millisecond}
	v := newVerifier(t, store, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Verify(context.Background(), id.NewUserID())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), store.calls.Load())
}
