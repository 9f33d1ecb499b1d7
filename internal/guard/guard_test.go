package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopgate/internal/authstate"
	flagstore "shopgate/internal/authz/store/flag"
	"shopgate/internal/identity/events"
	"shopgate/internal/identity/models"
	"shopgate/internal/platform/metrics"
	id "shopgate/pkg/domain"
	"shopgate/pkg/requestcontext"
)

func TestDecide(t *testing.T) {
	session := &models.Session{ID: id.NewSessionID(), UserID: id.NewUserID()}

	cases := []struct {
		name  string
		snap  authstate.Snapshot
		level Level
		want  Outcome
	}{
		{"uninitialized never redirects", authstate.Snapshot{State: authstate.StateUninitialized}, LevelAdmin, OutcomeLoading},
		{"loading never redirects", authstate.Snapshot{State: authstate.StateLoading}, LevelAdmin, OutcomeLoading},
		{"anonymous redirects", authstate.Snapshot{State: authstate.StateAnonymous}, LevelAuthenticated, OutcomeRedirect},
		{"anonymous redirects on admin route", authstate.Snapshot{State: authstate.StateAnonymous}, LevelAdmin, OutcomeRedirect},
		{"user renders authenticated route", authstate.Snapshot{State: authstate.StateUser, Session: session}, LevelAuthenticated, OutcomeRender},
		{"unknown role renders authenticated route", authstate.Snapshot{State: authstate.StateUnknownRole, Session: session}, LevelAuthenticated, OutcomeRender},
		{"user denied on admin route", authstate.Snapshot{State: authstate.StateUser, Session: session, AdminConfirmed: true}, LevelAdmin, OutcomeDenied},
		{"unknown role denied on admin route", authstate.Snapshot{State: authstate.StateUnknownRole, Session: session}, LevelAdmin, OutcomeDenied},
		{"confirmed admin renders", authstate.Snapshot{State: authstate.StateAdmin, Session: session, IsAdmin: true, AdminConfirmed: true}, LevelAdmin, OutcomeRender},
		{"optimistic admin renders", authstate.Snapshot{State: authstate.StateAdmin, Session: session, IsAdmin: true}, LevelAdmin, OutcomeRender},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(tc.snap, tc.level))
		})
	}
}

type sourceFunc func(ctx context.Context, scope string) (*models.Session, error)

func (f sourceFunc) CurrentSession(ctx context.Context, scope string) (*models.Session, error) {
	return f(ctx, scope)
}

type verifierFunc func(ctx context.Context, userID id.UserID) (bool, error)

func (f verifierFunc) Verify(ctx context.Context, userID id.UserID) (bool, error) {
	return f(ctx, userID)
}

type recordFunc func(ctx context.Context, userID id.UserID) (bool, error)

func (f recordFunc) IsAdmin(ctx context.Context, userID id.UserID) (bool, error) {
	return f(ctx, userID)
}

// buildGuard wires a real registry over the given boundary stubs.
func buildGuard(t *testing.T, session *models.Session, verifier verifierFunc, flags *flagstore.InMemoryFlagStore, record recordFunc) *Guard {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())

	source := sourceFunc(func(context.Context, string) (*models.Session, error) {
		return session, nil
	})
	factory := func(scope string) *authstate.Holder {
		return authstate.NewHolder(scope, source, verifier, flags, m, logger)
	}
	registry := authstate.NewRegistry(factory, events.NewBroadcaster(logger), logger)
	t.Cleanup(registry.Close)

	return New(registry, "/signin", record, nil, m, logger)
}

// newGuard wires a guard whose verifier and authoritative record agree.
func newGuard(t *testing.T, session *models.Session, isAdmin bool) *Guard {
	t.Helper()
	answer := func(context.Context, id.UserID) (bool, error) {
		return isAdmin, nil
	}
	return buildGuard(t, session, answer, flagstore.New(), answer)
}

func serve(t *testing.T, g *Guard, wrap func(http.Handler) http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	handler := wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(requestcontext.WithScopeID(req.Context(), "scope-guard"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAnonymousRedirectPreservesPath(t *testing.T) {
	g := newGuard(t, nil, false)

	rec := serve(t, g, g.RequireAdmin, "/admin/overview?tab=orders")

	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/signin", loc.Path)
	assert.Equal(t, "/admin/overview?tab=orders", loc.Query().Get("redirect_to"))
}

func TestNonAdminGetsForbiddenNotRedirect(t *testing.T) {
	userID := id.NewUserID()
	session := &models.Session{
		ID:               id.NewSessionID(),
		UserID:           userID,
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}
	g := newGuard(t, session, false)

	// Let the holder settle into the confirmed non-admin state first.
	require.Eventually(t, func() bool {
		holder := g.registry.Get(context.Background(), "scope-guard")
		snap := holder.Snapshot()
		return snap.State == authstate.StateUser
	}, 2*time.Second, 10*time.Millisecond)

	rec := serve(t, g, g.RequireAdmin, "/admin/overview")

	// 403, not a redirect: redirecting a signed-in non-admin to sign-in
	// would loop.
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	assert.Contains(t, rec.Body.String(), "recheck")
}

func TestAdminPassesThrough(t *testing.T) {
	session := &models.Session{
		ID:               id.NewSessionID(),
		UserID:           id.NewUserID(),
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}
	g := newGuard(t, session, true)

	require.Eventually(t, func() bool {
		snap := g.registry.Get(context.Background(), "scope-guard").Snapshot()
		return snap.State == authstate.StateAdmin && snap.AdminConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	rec := serve(t, g, g.RequireAdmin, "/admin/overview")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// An actor whose only claim is a persisted "true" — verification failing,
// authoritative record saying not-admin — may see admin pages render but
// must never reach a mutation.
func TestOptimisticAdminCannotMutate(t *testing.T) {
	userID := id.NewUserID()
	session := &models.Session{
		ID:               id.NewSessionID(),
		UserID:           userID,
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}
	flags := flagstore.New()
	flags.SetRaw("scope-guard", userID, "true")
	verifier := verifierFunc(func(context.Context, id.UserID) (bool, error) {
		return false, errors.New("admin check unavailable")
	})
	record := recordFunc(func(context.Context, id.UserID) (bool, error) {
		return false, nil
	})
	g := buildGuard(t, session, verifier, flags, record)

	require.Eventually(t, func() bool {
		snap := g.registry.Get(context.Background(), "scope-guard").Snapshot()
		return snap.State == authstate.StateAdmin && !snap.AdminConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	// The optimistic snapshot still renders the read surface.
	rec := serve(t, g, g.RequireAdmin, "/admin/overview")
	require.Equal(t, http.StatusOK, rec.Code)

	// The mutation path consults the record and refuses.
	rec = serve(t, g, g.RequireAdminRecord, "/admin/grant")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"retryable":false`)
}

// Revocation reaches mutations immediately, even while a long-lived holder
// still remembers a confirmed admin.
func TestRevokedAdminDeniedOnMutation(t *testing.T) {
	session := &models.Session{
		ID:               id.NewSessionID(),
		UserID:           id.NewUserID(),
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}
	verifier := verifierFunc(func(context.Context, id.UserID) (bool, error) {
		return true, nil
	})
	record := recordFunc(func(context.Context, id.UserID) (bool, error) {
		return false, nil
	})
	g := buildGuard(t, session, verifier, flagstore.New(), record)

	require.Eventually(t, func() bool {
		snap := g.registry.Get(context.Background(), "scope-guard").Snapshot()
		return snap.State == authstate.StateAdmin && snap.AdminConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	rec := serve(t, g, g.RequireAdminRecord, "/admin/revoke")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestConfirmedAdminMutates(t *testing.T) {
	session := &models.Session{
		ID:               id.NewSessionID(),
		UserID:           id.NewUserID(),
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}
	g := newGuard(t, session, true)

	require.Eventually(t, func() bool {
		snap := g.registry.Get(context.Background(), "scope-guard").Snapshot()
		return snap.State == authstate.StateAdmin && snap.AdminConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	rec := serve(t, g, g.RequireAdminRecord, "/admin/grant")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRecordUnavailableFailsClosed(t *testing.T) {
	session := &models.Session{
		ID:               id.NewSessionID(),
		UserID:           id.NewUserID(),
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}
	verifier := verifierFunc(func(context.Context, id.UserID) (bool, error) {
		return true, nil
	})
	record := recordFunc(func(context.Context, id.UserID) (bool, error) {
		return false, errors.New("connection refused")
	})
	g := buildGuard(t, session, verifier, flagstore.New(), record)

	require.Eventually(t, func() bool {
		snap := g.registry.Get(context.Background(), "scope-guard").Snapshot()
		return snap.State == authstate.StateAdmin
	}, 2*time.Second, 10*time.Millisecond)

	rec := serve(t, g, g.RequireAdminRecord, "/store/settings")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestIndependentScopesVerifySeparately(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	session := &models.Session{
		ID:               id.NewSessionID(),
		UserID:           id.NewUserID(),
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}

	checks := make(chan string, 4)
	factory := func(scope string) *authstate.Holder {
		source := sourceFunc(func(context.Context, string) (*models.Session, error) {
			return session, nil
		})
		verifier := verifierFunc(func(_ context.Context, _ id.UserID) (bool, error) {
			checks <- scope
			return true, nil
		})
		return authstate.NewHolder(scope, source, verifier, flagstore.New(), m, logger)
	}
	registry := authstate.NewRegistry(factory, events.NewBroadcaster(logger), logger)
	t.Cleanup(registry.Close)

	registry.Get(context.Background(), "scope-a")
	registry.Get(context.Background(), "scope-b")

	// Same user in two browser sessions: each scope runs its own
	// verification.
	seen := map[string]bool{}
	for range 2 {
		select {
		case scope := <-checks:
			seen[scope] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for per-scope verification")
		}
	}
	assert.True(t, seen["scope-a"])
	assert.True(t, seen["scope-b"])
}
