// Package authstate implements the per-scope authorization state holder:
// the single source of truth for "who is signed in on this browser session"
// and "may they use privileged routes".
//
// The holder is a small state machine fed by the identity provider's ordered
// auth-change stream. Admin status is cached in two layers — the holder's
// own memory and a persisted flag store — with an asymmetric trust rule: a
// persisted "true" optimistically unblocks the UI while the authoritative
// check runs in the background, a persisted "false" is never trusted, and a
// failed re-check never downgrades a user who was already admin.
//
// Every in-flight verification is tagged with the user it was issued for
// and the holder generation at issue time; a result whose tag no longer
// matches is discarded, so a slow check can never overwrite the effects of
// a newer sign-in or sign-out.
package authstate

import (
	"context"
	"log/slog"
	"sync"

	"shopgate/internal/authz"
	"shopgate/internal/identity/models"
	"shopgate/internal/platform/metrics"
	id "shopgate/pkg/domain"
	dErrors "shopgate/pkg/domain-errors"
)

// State enumerates the holder's visible states.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateAnonymous     State = "anonymous"
	// StateUnknownRole: signed in, admin status not yet determined (or the
	// last verification failed with nothing trusted to fall back on).
	// Guards fail closed in this state but report it as retryable.
	StateUnknownRole State = "authenticated_unknown_role"
	StateUser        State = "authenticated_user"
	StateAdmin       State = "authenticated_admin"
)

// Snapshot is an atomic, immutable view of the holder.
type Snapshot struct {
	State   State
	Session *models.Session
	IsAdmin bool
	// AdminConfirmed distinguishes authoritative status from optimistic
	// cached status. IsAdmin=true with AdminConfirmed=false means the
	// persisted flag unblocked the UI and a re-check is pending or failed.
	AdminConfirmed bool
	Generation     uint64
}

// UserID returns the signed-in user, or the nil ID when anonymous.
func (s Snapshot) UserID() id.UserID {
	if s.Session == nil {
		return id.UserID{}
	}
	return s.Session.UserID
}

// SessionSource yields the current session for a scope. CurrentSession
// returning (nil, nil) means anonymous; CodeExpiredCredentials means the
// refresh credentials died and local artifacts were purged.
type SessionSource interface {
	CurrentSession(ctx context.Context, scope string) (*models.Session, error)
}

// Verifier answers the authoritative admin question with a bounded deadline.
type Verifier interface {
	Verify(ctx context.Context, userID id.UserID) (bool, error)
}

// Purger clears a per-scope client-side cache. Purgers run as a side effect
// of leaving the authenticated state.
type Purger interface {
	PurgeScope(ctx context.Context, scope string) error
}

const subscriberBuffer = 8

// Holder holds authorization state for one scope.
type Holder struct {
	scope    string
	source   SessionSource
	verifier Verifier
	flags    authz.FlagStore
	purgers  []Purger
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu             sync.Mutex
	state          State
	session        *models.Session
	isAdmin        bool
	adminConfirmed bool
	generation     uint64
	verifyCancel   context.CancelFunc
	initialized    bool
	lastSeq        uint64
	subs           map[int]chan Snapshot
	nextSub        int
}

// NewHolder creates a holder in the uninitialized state. Call Init once,
// then feed it the scope's event stream via Run.
func NewHolder(
	scope string,
	source SessionSource,
	verifier Verifier,
	flags authz.FlagStore,
	m *metrics.Metrics,
	logger *slog.Logger,
	purgers ...Purger,
) *Holder {
	return &Holder{
		scope:    scope,
		source:   source,
		verifier: verifier,
		flags:    flags,
		purgers:  purgers,
		metrics:  m,
		logger:   logger,
		state:    StateUninitialized,
		subs:     make(map[int]chan Snapshot),
	}
}

// Snapshot returns an atomic copy of the current state.
func (h *Holder) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

func (h *Holder) snapshotLocked() Snapshot {
	return Snapshot{
		State:          h.state,
		Session:        h.session.Clone(),
		IsAdmin:        h.isAdmin,
		AdminConfirmed: h.adminConfirmed,
		Generation:     h.generation,
	}
}

// Subscribe registers for state snapshots. When a slow consumer's buffer
// fills, the oldest pending snapshot is dropped so the newest state always
// arrives.
func (h *Holder) Subscribe() (<-chan Snapshot, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Snapshot, subscriberBuffer)
	subID := h.nextSub
	h.nextSub++
	h.subs[subID] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[subID]; ok {
			delete(h.subs, subID)
			close(sub)
		}
	}
	return ch, cancel
}

func (h *Holder) notifyLocked() {
	snap := h.snapshotLocked()
	for _, ch := range h.subs {
		for {
			select {
			case ch <- snap:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Init requests the current session from the provider exactly once and
// settles into the first real state. A credential-refresh failure is a
// recoverable condition: local artifacts are purged and the holder lands in
// Anonymous without surfacing the provider error as fatal.
func (h *Holder) Init(ctx context.Context) {
	h.mu.Lock()
	if h.initialized {
		h.mu.Unlock()
		return
	}
	h.initialized = true
	h.state = StateLoading
	h.notifyLocked()
	h.mu.Unlock()

	session, err := h.source.CurrentSession(ctx, h.scope)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeExpiredCredentials) {
			h.logger.InfoContext(ctx, "session credentials expired, starting anonymous",
				"scope", h.scope)
			if perr := h.flags.PurgeScope(ctx, h.scope); perr != nil {
				h.logger.ErrorContext(ctx, "failed to purge admin flags", "error", perr, "scope", h.scope)
			}
		} else {
			h.logger.ErrorContext(ctx, "failed to load current session",
				"error", err, "scope", h.scope)
		}
		h.toAnonymous(ctx, false)
		return
	}
	if session == nil {
		h.toAnonymous(ctx, false)
		return
	}

	h.adopt(ctx, session)
}

// Run consumes the scope's auth-change stream until the context ends or the
// stream closes. Events are processed strictly in delivery order; stale or
// duplicate sequence numbers are skipped.
func (h *Holder) Run(ctx context.Context, events <-chan models.AuthEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			h.handle(ctx, event)
		}
	}
}

func (h *Holder) handle(ctx context.Context, event models.AuthEvent) {
	h.mu.Lock()
	if event.Seq != 0 && event.Seq <= h.lastSeq {
		h.mu.Unlock()
		return
	}
	h.lastSeq = event.Seq
	h.mu.Unlock()

	switch event.Type {
	case models.EventSignedIn:
		h.adopt(ctx, event.Session)
	case models.EventTokenRefreshed:
		h.refresh(ctx, event.Session)
	case models.EventSignedOut:
		h.toAnonymous(ctx, true)
	default:
		h.logger.WarnContext(ctx, "unknown auth event type", "type", string(event.Type))
	}
}

// adopt installs a session and kicks off admin determination: optimistic
// unblock from the persisted flag when it is exactly true, authoritative
// verification in the background always.
func (h *Holder) adopt(ctx context.Context, session *models.Session) {
	if session == nil {
		h.toAnonymous(ctx, false)
		return
	}

	h.mu.Lock()
	prevUser := id.UserID{}
	if h.session != nil {
		prevUser = h.session.UserID
	}
	h.generation++
	gen := h.generation
	h.cancelVerifyLocked()
	h.session = session.Clone()
	h.isAdmin = false
	h.adminConfirmed = false
	h.state = StateUnknownRole
	h.notifyLocked()
	h.mu.Unlock()

	// A different user on the same scope must never inherit the previous
	// user's persisted flag.
	if !prevUser.IsNil() && prevUser != session.UserID {
		if err := h.flags.Delete(ctx, h.scope, prevUser); err != nil {
			h.logger.ErrorContext(ctx, "failed to delete previous user's admin flag",
				"error", err, "scope", h.scope)
		}
	}

	flag, err := h.flags.Get(ctx, h.scope, session.UserID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read persisted admin flag",
			"error", err, "scope", h.scope)
		flag = authz.FlagUnknown
	}

	if flag == authz.FlagTrue {
		h.metrics.FlagCacheHits.Inc()
		h.mu.Lock()
		if h.generation == gen {
			h.isAdmin = true
			h.adminConfirmed = false
			h.state = StateAdmin
			h.notifyLocked()
		}
		h.mu.Unlock()
	} else {
		// Unknown and false both re-verify: a stale false must never mask
		// a real admin.
		h.metrics.FlagCacheMisses.Inc()
	}

	h.startVerification(session.UserID, gen)
}

// refresh atomically replaces the session snapshot after a token rotation.
// Admin state is untouched: the user did not change.
func (h *Holder) refresh(ctx context.Context, session *models.Session) {
	if session == nil {
		return
	}

	h.mu.Lock()
	if h.session == nil || h.session.UserID != session.UserID {
		// Refresh for a user this holder no longer tracks; treat it as a
		// fresh sign-in so state converges instead of diverging.
		h.mu.Unlock()
		h.adopt(ctx, session)
		return
	}
	h.session = session.Clone()
	h.notifyLocked()
	h.mu.Unlock()
}

// toAnonymous performs the atomic sign-out transition: clear session, clear
// the in-memory admin cache, clear the persisted flag for the departing
// user, notify consumers, then purge the other per-scope caches.
func (h *Holder) toAnonymous(ctx context.Context, signedOut bool) {
	h.mu.Lock()
	prevUser := id.UserID{}
	if h.session != nil {
		prevUser = h.session.UserID
	}
	h.generation++
	h.cancelVerifyLocked()
	h.session = nil
	h.isAdmin = false
	h.adminConfirmed = false
	h.state = StateAnonymous
	h.notifyLocked()
	h.mu.Unlock()

	if !prevUser.IsNil() {
		if err := h.flags.Delete(ctx, h.scope, prevUser); err != nil {
			h.logger.ErrorContext(ctx, "failed to delete admin flag on sign-out",
				"error", err, "scope", h.scope)
		}
	}
	if signedOut {
		for _, purger := range h.purgers {
			if err := purger.PurgeScope(ctx, h.scope); err != nil {
				h.logger.ErrorContext(ctx, "failed to purge scope cache",
					"error", err, "scope", h.scope)
			}
		}
	}
}

// startVerification launches the background authoritative check, tagged
// with the user and generation it was issued for.
func (h *Holder) startVerification(userID id.UserID, gen uint64) {
	vctx, cancel := context.WithCancel(context.Background())

	h.mu.Lock()
	if h.generation != gen {
		h.mu.Unlock()
		cancel()
		return
	}
	h.verifyCancel = cancel
	h.mu.Unlock()

	go func() {
		defer cancel()
		isAdmin, err := h.verifier.Verify(vctx, userID)
		h.completeVerification(vctx, userID, gen, isAdmin, err)
	}()
}

// completeVerification applies an authoritative result, unless the holder
// has moved on since the check was issued.
func (h *Holder) completeVerification(ctx context.Context, userID id.UserID, gen uint64, isAdmin bool, verr error) {
	h.mu.Lock()
	if h.generation != gen || h.session == nil || h.session.UserID != userID {
		h.mu.Unlock()
		return
	}

	if verr != nil {
		// Trust persisted true, never silently downgrade: an optimistic
		// admin stays admin with the confirmed bit off so a later forced
		// re-check can settle it. Without trusted cache the role stays
		// unknown and guards fail closed.
		h.adminConfirmed = false
		if !h.isAdmin {
			h.state = StateUnknownRole
		}
		h.notifyLocked()
		h.mu.Unlock()
		h.logger.WarnContext(ctx, "admin verification failed, keeping prior state",
			"error", verr, "scope", h.scope, "user_id", userID.String())
		return
	}

	h.isAdmin = isAdmin
	h.adminConfirmed = true
	if isAdmin {
		h.state = StateAdmin
	} else {
		h.state = StateUser
	}
	// Persist under the lock so a concurrent sign-out purge can never be
	// undone by a result it raced with: either this write lands before the
	// purge's generation bump, or the generation check above discards it.
	if err := h.flags.Set(ctx, h.scope, userID, isAdmin); err != nil {
		h.logger.ErrorContext(ctx, "failed to persist admin flag",
			"error", err, "scope", h.scope)
	}
	h.notifyLocked()
	h.mu.Unlock()
}

// ForceRecheck bypasses every cache layer and re-queries the authoritative
// record synchronously. The cache trust policy still applies to failures: a
// confirmed or optimistic admin is not downgraded by a failed re-check.
func (h *Holder) ForceRecheck(ctx context.Context) (Snapshot, error) {
	h.mu.Lock()
	if h.session == nil {
		snap := h.snapshotLocked()
		h.mu.Unlock()
		return snap, dErrors.New(dErrors.CodeUnauthorized, "no active session")
	}
	userID := h.session.UserID
	gen := h.generation
	h.mu.Unlock()

	isAdmin, err := h.verifier.Verify(ctx, userID)
	h.completeVerification(ctx, userID, gen, isAdmin, err)

	if err != nil {
		return h.Snapshot(), err
	}
	return h.Snapshot(), nil
}

func (h *Holder) cancelVerifyLocked() {
	if h.verifyCancel != nil {
		h.verifyCancel()
		h.verifyCancel = nil
	}
}
