//go:build integration

package admin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	adminstore "shopgate/internal/authz/store/admin"
	id "shopgate/pkg/domain"
	"shopgate/pkg/testutil/containers"
)

type PostgresAdminStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *adminstore.PostgresStore
}

func TestPostgresAdminStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAdminStoreSuite))
}

func (s *PostgresAdminStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = adminstore.NewPostgres(s.pg.Pool)
}

func (s *PostgresAdminStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(context.Background()))
}

func (s *PostgresAdminStoreSuite) TestGrantRevokeLifecycle() {
	ctx := context.Background()
	userID := id.NewUserID()

	isAdmin, err := s.store.IsAdmin(ctx, userID)
	s.Require().NoError(err)
	s.False(isAdmin)

	s.Require().NoError(s.store.Grant(ctx, userID))
	isAdmin, err = s.store.IsAdmin(ctx, userID)
	s.Require().NoError(err)
	s.True(isAdmin)

	// Granting twice is a no-op, not an error.
	s.Require().NoError(s.store.Grant(ctx, userID))

	s.Require().NoError(s.store.Revoke(ctx, userID))
	isAdmin, err = s.store.IsAdmin(ctx, userID)
	s.Require().NoError(err)
	s.False(isAdmin)

	// Revoking a non-admin is also a no-op.
	s.Require().NoError(s.store.Revoke(ctx, userID))
}
