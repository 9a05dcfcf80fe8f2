//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"accolade/internal/achievement/models"
	"accolade/internal/achievement/ports"
	"accolade/internal/achievement/store/postgres"
	id "accolade/pkg/domain"
	"accolade/pkg/platform/sentinel"
	"accolade/pkg/testutil/containers"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.PostgresStore
	stores   ports.Stores
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = postgres.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))
	s.stores = s.store.Stores()
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"achievement_claims", "achievement_tokens", "achievements", "achievement_roles")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestMigrateIsIdempotent() {
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) TestRolesRoundTrip() {
	ctx := context.Background()
	_, err := s.stores.Roles.Get(ctx)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	now := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.stores.Roles.Save(ctx, &models.Roles{Admin: alice, PermissionGiver: bob, UpdatedAt: now}))
	s.Require().NoError(s.stores.Roles.Save(ctx, &models.Roles{Admin: bob, PermissionGiver: bob, UpdatedAt: now}))

	roles, err := s.stores.Roles.Get(ctx)
	s.Require().NoError(err)
	s.Equal(bob, roles.Admin)
	s.Equal(bob, roles.PermissionGiver)
}

func (s *PostgresStoreSuite) TestRegistryAndLedgers() {
	ctx := context.Background()
	for i, label := range []string{"1", "2", "3"} {
		a, err := s.stores.Achievements.Append(ctx, label, time.Now())
		s.Require().NoError(err)
		s.Equal(id.AchievementID(i), a.ID)
	}
	_, err := s.stores.Achievements.FindByID(ctx, 3)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	first, err := s.stores.Tokens.Mint(ctx, alice, 2, time.Now())
	s.Require().NoError(err)
	s.Equal(id.TokenID(1), first.ID)
	second, err := s.stores.Tokens.Mint(ctx, alice, 0, time.Now())
	s.Require().NoError(err)
	s.Equal(id.TokenID(2), second.ID)

	found, err := s.stores.Tokens.FindByID(ctx, 1)
	s.Require().NoError(err)
	s.Equal(alice, found.Owner)
	s.Equal(id.AchievementID(2), found.AchievementID)

	owned, err := s.stores.Tokens.ListByOwner(ctx, alice)
	s.Require().NoError(err)
	s.Len(owned, 2)

	claim := &models.Claim{Recipient: alice, AchievementID: 2, TokenID: 1, ClaimedAt: time.Now()}
	s.Require().NoError(s.stores.Claims.MarkClaimed(ctx, claim))
	s.ErrorIs(s.stores.Claims.MarkClaimed(ctx, claim), sentinel.ErrAlreadyUsed)

	claimed, err := s.stores.Claims.IsClaimed(ctx, alice, 2)
	s.Require().NoError(err)
	s.True(claimed)
}

func (s *PostgresStoreSuite) TestRollback() {
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.store.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		if _, err := stores.Achievements.Append(ctx, "ghost", time.Now()); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	all, err := s.stores.Achievements.List(ctx)
	s.Require().NoError(err)
	s.Empty(all)
}

// TestConcurrentClaims verifies that the mutation lock admits exactly one
// winner when many transactions race on the same pair.
func (s *PostgresStoreSuite) TestConcurrentClaims() {
	ctx := context.Background()
	_, err := s.stores.Achievements.Append(ctx, "race", time.Now())
	s.Require().NoError(err)

	const goroutines = 20
	var wg sync.WaitGroup
	var wins atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
				claimed, err := stores.Claims.IsClaimed(ctx, bob, 0)
				if err != nil {
					return err
				}
				if claimed {
					return sentinel.ErrAlreadyUsed
				}
				token, err := stores.Tokens.Mint(ctx, bob, 0, time.Now())
				if err != nil {
					return err
				}
				return stores.Claims.MarkClaimed(ctx, &models.Claim{Recipient: bob, AchievementID: 0, TokenID: token.ID, ClaimedAt: time.Now()})
			})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	owned, err := s.stores.Tokens.ListByOwner(ctx, bob)
	s.Require().NoError(err)
	s.Len(owned, 1)
}
