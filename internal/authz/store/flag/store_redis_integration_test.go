//go:build integration

package flag_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"shopgate/internal/authz"
	flagstore "shopgate/internal/authz/store/flag"
	id "shopgate/pkg/domain"
	"shopgate/pkg/testutil/containers"
)

type RedisFlagStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *flagstore.RedisFlagStore
}

func TestRedisFlagStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisFlagStoreSuite))
}

func (s *RedisFlagStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = flagstore.NewRedis(s.redis.Client, time.Hour)
}

func (s *RedisFlagStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisFlagStoreSuite) TestMissingKeyIsUnknown() {
	flag, err := s.store.Get(context.Background(), "scope-1", id.NewUserID())
	s.Require().NoError(err)
	s.Equal(authz.FlagUnknown, flag)
}

func (s *RedisFlagStoreSuite) TestSetGetRoundTrip() {
	ctx := context.Background()
	userID := id.NewUserID()

	s.Require().NoError(s.store.Set(ctx, "scope-1", userID, true))
	flag, err := s.store.Get(ctx, "scope-1", userID)
	s.Require().NoError(err)
	s.Equal(authz.FlagTrue, flag)

	s.Require().NoError(s.store.Set(ctx, "scope-1", userID, false))
	flag, err = s.store.Get(ctx, "scope-1", userID)
	s.Require().NoError(err)
	s.Equal(authz.FlagFalse, flag)
}

func (s *RedisFlagStoreSuite) TestCorruptedValueIsUnknown() {
	ctx := context.Background()
	userID := id.NewUserID()

	// Write around the store, simulating corruption or an old format.
	key := "admin_status:scope-1:" + userID.String()
	s.Require().NoError(s.redis.Client.Set(ctx, key, "TRUE", 0).Err())

	flag, err := s.store.Get(ctx, "scope-1", userID)
	s.Require().NoError(err)
	s.Equal(authz.FlagUnknown, flag)
}

func (s *RedisFlagStoreSuite) TestPurgeScopeLeavesOtherScopes() {
	ctx := context.Background()
	userID := id.NewUserID()

	s.Require().NoError(s.store.Set(ctx, "scope-1", userID, true))
	s.Require().NoError(s.store.Set(ctx, "scope-2", userID, true))

	s.Require().NoError(s.store.PurgeScope(ctx, "scope-1"))

	flag, err := s.store.Get(ctx, "scope-1", userID)
	s.Require().NoError(err)
	s.Equal(authz.FlagUnknown, flag)

	flag, err = s.store.Get(ctx, "scope-2", userID)
	s.Require().NoError(err)
	s.Equal(authz.FlagTrue, flag)
}

func (s *RedisFlagStoreSuite) TestKeysCarryTTL() {
	ctx := context.Background()
	userID := id.NewUserID()
	s.Require().NoError(s.store.Set(ctx, "scope-1", userID, true))

	ttl, err := s.redis.Client.TTL(ctx, "admin_status:scope-1:"+userID.String()).Result()
	s.Require().NoError(err)
	s.Positive(ttl)
}
