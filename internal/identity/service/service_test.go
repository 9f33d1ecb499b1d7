package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"shopgate/internal/identity/events"
	"shopgate/internal/identity/models"
	"shopgate/internal/identity/store/resettoken"
	sessionstore "shopgate/internal/identity/store/session"
	userstore "shopgate/internal/identity/store/user"
	"shopgate/internal/platform/metrics"
	id "shopgate/pkg/domain"
	dErrors "shopgate/pkg/domain-errors"
	audit "shopgate/pkg/platform/audit"
	"shopgate/pkg/requestcontext"
)

const (
	testEmail    = "shopper@example.com"
	testPassword = "correct horse battery"
	testScope    = "scope-svc"
)

// stubIssuer produces predictable tokens so tests can tell rotations apart.
type stubIssuer struct {
	mu     sync.Mutex
	issued int
}

func (i *stubIssuer) Issue(_ id.UserID, sessionID id.SessionID, _, _ time.Time) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.issued++
	return fmt.Sprintf("access-%d-%s", i.issued, sessionID.String()), nil
}

// recordingAuditor collects emitted events for assertions.
type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAuditor) Emit(_ context.Context, event audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.Action
	}
	return out
}

// capturingResetStore exposes the last saved token, which the service only
// ever hands to the mail channel.
type capturingResetStore struct {
	*resettoken.InMemoryStore
	mu        sync.Mutex
	lastToken string
}

func (s *capturingResetStore) Save(ctx context.Context, token *models.ResetToken) error {
	s.mu.Lock()
	s.lastToken = token.Token
	s.mu.Unlock()
	return s.InMemoryStore.Save(ctx, token)
}

type ServiceSuite struct {
	suite.Suite

	users    *userstore.InMemoryStore
	sessions *sessionstore.InMemorySessionStore
	resets   *capturingResetStore
	issuer   *stubIssuer
	auditor  *recordingAuditor
	svc      *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.users = userstore.New()
	s.sessions = sessionstore.New()
	s.resets = &capturingResetStore{InMemoryStore: resettoken.New()}
	s.issuer = &stubIssuer{}
	s.auditor = &recordingAuditor{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = New(
		s.users,
		s.sessions,
		s.resets,
		s.issuer,
		events.NewBroadcaster(logger),
		s.auditor,
		metrics.NewWith(prometheus.NewRegistry()),
		logger,
		Config{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
			ResetTokenTTL:   time.Hour,
		},
	)
}

func (s *ServiceSuite) signUp() *models.User {
	user, err := s.svc.SignUp(context.Background(), testEmail, testPassword, "Shopper")
	s.Require().NoError(err)
	return user
}

func (s *ServiceSuite) TestSignUpAndSignIn() {
	user := s.signUp()
	s.False(user.ID.IsNil())
	s.NotEqual(testPassword, user.PasswordHash)

	session, err := s.svc.SignIn(context.Background(), testScope, testEmail, testPassword)
	s.Require().NoError(err)
	s.Equal(user.ID, session.UserID)
	s.Equal(testScope, session.Scope)
	s.NotEmpty(session.AccessToken)
	s.NotEmpty(session.RefreshToken)
}

func (s *ServiceSuite) TestSignUpValidation() {
	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"bad email", "not-an-email", testPassword},
		{"empty email", "", testPassword},
		{"short password", testEmail, "short"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.svc.SignUp(context.Background(), tc.email, tc.password, "Shopper")
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func (s *ServiceSuite) TestSignUpDuplicateEmail() {
	s.signUp()
	_, err := s.svc.SignUp(context.Background(), testEmail, testPassword, "Other")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestSignInFailuresAreIndistinguishable() {
	s.signUp()

	_, unknownErr := s.svc.SignIn(context.Background(), testScope, "nobody@example.com", testPassword)
	s.Require().Error(unknownErr)
	s.True(dErrors.HasCode(unknownErr, dErrors.CodeUnauthorized))

	_, badPassErr := s.svc.SignIn(context.Background(), testScope, testEmail, "wrong password")
	s.Require().Error(badPassErr)
	s.True(dErrors.HasCode(badPassErr, dErrors.CodeUnauthorized))

	// Same surface message either way: no account probing via error text.
	s.Equal(dErrors.UserMessage(dErrors.CodeOf(unknownErr)), dErrors.UserMessage(dErrors.CodeOf(badPassErr)))
}

func (s *ServiceSuite) TestSignInRequiresScope() {
	s.signUp()
	_, err := s.svc.SignIn(context.Background(), "", testEmail, testPassword)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestSignInPublishesOrderedEvent() {
	user := s.signUp()
	ch, cancel := s.svc.Subscribe(testScope)
	defer cancel()

	_, err := s.svc.SignIn(context.Background(), testScope, testEmail, testPassword)
	s.Require().NoError(err)

	select {
	case event := <-ch:
		s.Equal(models.EventSignedIn, event.Type)
		s.Equal(user.ID, event.UserID)
		s.Equal(uint64(1), event.Seq)
		s.Require().NotNil(event.Session)
	case <-time.After(2 * time.Second):
		s.FailNow("no auth event delivered")
	}
}

func (s *ServiceSuite) TestSignOutIsIdempotent() {
	s.signUp()
	_, err := s.svc.SignIn(context.Background(), testScope, testEmail, testPassword)
	s.Require().NoError(err)

	s.Require().NoError(s.svc.SignOut(context.Background(), testScope))
	s.Require().NoError(s.svc.SignOut(context.Background(), testScope))

	session, err := s.svc.CurrentSession(context.Background(), testScope)
	s.Require().NoError(err)
	s.Nil(session)
}

func (s *ServiceSuite) TestCurrentSessionAnonymousScope() {
	session, err := s.svc.CurrentSession(context.Background(), "scope-never-seen")
	s.Require().NoError(err)
	s.Nil(session)
}

func (s *ServiceSuite) TestCurrentSessionFreshTokenUntouched() {
	s.signUp()
	issued, err := s.svc.SignIn(context.Background(), testScope, testEmail, testPassword)
	s.Require().NoError(err)

	current, err := s.svc.CurrentSession(context.Background(), testScope)
	s.Require().NoError(err)
	s.Equal(issued.AccessToken, current.AccessToken)
	s.Equal(issued.RefreshToken, current.RefreshToken)
}

func (s *ServiceSuite) TestCurrentSessionRotatesExpiredAccess() {
	user := s.signUp()
	issued, err := s.svc.SignIn(context.Background(), testScope, testEmail, testPassword)
	s.Require().NoError(err)

	ch, cancel := s.svc.Subscribe(testScope)
	defer cancel()

	later := requestcontext.WithTime(context.Background(), issued.AccessExpiresAt.Add(time.Minute))
	rotated, err := s.svc.CurrentSession(later, testScope)
	s.Require().NoError(err)
	s.Equal(issued.ID, rotated.ID)
	s.Equal(user.ID, rotated.UserID)
	s.NotEqual(issued.AccessToken, rotated.AccessToken)
	s.NotEqual(issued.RefreshToken, rotated.RefreshToken)
	s.True(rotated.AccessExpiresAt.After(issued.AccessExpiresAt))

	select {
	case event := <-ch:
		s.Equal(models.EventTokenRefreshed, event.Type)
	case <-time.After(2 * time.Second):
		s.FailNow("no refresh event delivered")
	}
}

func (s *ServiceSuite) TestCurrentSessionExpiredRefreshPurges() {
	s.signUp()
	issued, err := s.svc.SignIn(context.Background(), testScope, testEmail, testPassword)
	s.Require().NoError(err)

	later := requestcontext.WithTime(context.Background(), issued.RefreshExpiresAt.Add(time.Minute))
	_, err = s.svc.CurrentSession(later, testScope)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeExpiredCredentials))

	// The dead session is gone: a retry lands cleanly in anonymous.
	session, err := s.svc.CurrentSession(context.Background(), testScope)
	s.Require().NoError(err)
	s.Nil(session)
}

func (s *ServiceSuite) TestUpdatePassword() {
	user := s.signUp()

	err := s.svc.UpdatePassword(context.Background(), user.ID, "wrong password", "a new password")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	s.Require().NoError(s.svc.UpdatePassword(context.Background(), user.ID, testPassword, "a new password"))

	_, err = s.svc.SignIn(context.Background(), testScope, testEmail, testPassword)
	s.Require().Error(err)
	_, err = s.svc.SignIn(context.Background(), testScope, testEmail, "a new password")
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestUpdatePasswordRequiresUser() {
	err := s.svc.UpdatePassword(context.Background(), id.UserID{}, testPassword, "a new password")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestPasswordResetRoundTrip() {
	s.signUp()
	s.Require().NoError(s.svc.RequestPasswordReset(context.Background(), testEmail, "/account"))
	s.Require().NotEmpty(s.resets.lastToken)

	s.Require().NoError(s.svc.ResetPassword(context.Background(), s.resets.lastToken, "a new password"))

	_, err := s.svc.SignIn(context.Background(), testScope, testEmail, "a new password")
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestResetTokenIsOneShot() {
	s.signUp()
	s.Require().NoError(s.svc.RequestPasswordReset(context.Background(), testEmail, "/account"))
	token := s.resets.lastToken

	s.Require().NoError(s.svc.ResetPassword(context.Background(), token, "a new password"))

	err := s.svc.ResetPassword(context.Background(), token, "yet another password")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestResetTokenExpires() {
	s.signUp()
	longAgo := requestcontext.WithTime(context.Background(), time.Now().Add(-48*time.Hour))
	s.Require().NoError(s.svc.RequestPasswordReset(longAgo, testEmail, "/account"))

	err := s.svc.ResetPassword(context.Background(), s.resets.lastToken, "a new password")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeExpiredCredentials))
}

func (s *ServiceSuite) TestResetUnknownEmailSucceedsSilently() {
	s.Require().NoError(s.svc.RequestPasswordReset(context.Background(), "nobody@example.com", "/account"))
	s.Empty(s.resets.lastToken)
}

func (s *ServiceSuite) TestAuditTrail() {
	s.signUp()
	_, err := s.svc.SignIn(context.Background(), testScope, testEmail, testPassword)
	s.Require().NoError(err)
	s.Require().NoError(s.svc.SignOut(context.Background(), testScope))

	s.Equal([]string{
		string(audit.EventUserCreated),
		string(audit.EventSignedIn),
		string(audit.EventSignedOut),
	}, s.auditor.actions())
}
