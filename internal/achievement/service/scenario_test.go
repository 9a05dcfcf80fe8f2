package service_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"accolade/internal/achievement/models"
	"accolade/internal/achievement/service"
	"accolade/internal/achievement/store/memory"
	"accolade/internal/signature"
	"accolade/internal/signature/signaturetest"
	id "accolade/pkg/domain"
	dErrors "accolade/pkg/domain-errors"
	"accolade/pkg/platform/audit"
	"accolade/pkg/platform/audit/publisher"
	auditmemory "accolade/pkg/platform/audit/store/memory"
)

// ScenarioSuite runs the protocol end to end: real secp256k1 attestations,
// the in-memory backend and a synchronous audit publisher.
type ScenarioSuite struct {
	suite.Suite
	ctx        context.Context
	admin      signaturetest.Account
	giver      signaturetest.Account
	recipient1 signaturetest.Account
	recipient2 signaturetest.Account
	auditStore *auditmemory.InMemoryStore
	service    *service.Service
}

func TestScenarioSuite(t *testing.T) {
	suite.Run(t, new(ScenarioSuite))
}

func (s *ScenarioSuite) SetupTest() {
	s.ctx = context.Background()
	s.admin = signaturetest.NewAccount(s.T())
	s.giver = signaturetest.NewAccount(s.T())
	s.recipient1 = signaturetest.NewAccount(s.T())
	s.recipient2 = signaturetest.NewAccount(s.T())
	s.auditStore = auditmemory.NewInMemoryStore()

	backend := memory.NewInMemory()
	svc, err := service.New(backend.Stores(), backend, signature.NewECDSAVerifier(),
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
	)
	s.Require().NoError(err)
	s.service = svc

	s.Require().NoError(s.service.Initialize(s.ctx, s.admin.Address, s.giver.Address,
		[]string{"1", "2", "3", "4", "5"}))
}

func (s *ScenarioSuite) attest(signer signaturetest.Account, label string, recipient common.Address, achievementID id.AchievementID) *models.UnlockRequest {
	digest, sig := signer.Attest(s.T(), label, recipient)
	return &models.UnlockRequest{AchievementID: achievementID, Digest: digest, V: sig.V, R: sig.R, S: sig.S}
}

// TestConcreteScenario follows the reference walkthrough: seed five labels,
// add a sixth, unlock it for one recipient and resolve the token.
func (s *ScenarioSuite) TestConcreteScenario() {
	added, err := s.service.AddAchievement(s.ctx, s.admin.Address, "6")
	s.Require().NoError(err)
	s.Equal(id.AchievementID(5), added.ID)

	req := s.attest(s.giver, "6", s.recipient2.Address, 5)
	token, err := s.service.Unlock(s.ctx, s.recipient2.Address, req)
	s.Require().NoError(err)
	s.Equal(id.TokenID(1), token.ID)
	s.Equal(s.recipient2.Address, token.Owner)

	resolved, err := s.service.GetAchievementLabel(s.ctx, token.ID)
	s.Require().NoError(err)
	s.Equal("6", resolved.Label)

	claimed, err := s.service.IsClaimed(s.ctx, s.recipient2.Address, 5)
	s.Require().NoError(err)
	s.True(claimed)

	owned, err := s.service.TokensByOwner(s.ctx, s.recipient2.Address)
	s.Require().NoError(err)
	s.Len(owned, 1)
}

func (s *ScenarioSuite) TestUnlockOncePerPair() {
	req := s.attest(s.giver, "1", s.recipient1.Address, 0)
	_, err := s.service.Unlock(s.ctx, s.recipient1.Address, req)
	s.Require().NoError(err)

	_, err = s.service.Unlock(s.ctx, s.recipient1.Address, req)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyClaimed))

	s.Run("other recipients are independent", func() {
		req := s.attest(s.giver, "1", s.recipient2.Address, 0)
		_, err := s.service.Unlock(s.ctx, s.recipient2.Address, req)
		s.NoError(err)
	})
}

func (s *ScenarioSuite) TestRejections() {
	s.Run("signature from someone other than the permission-giver", func() {
		req := s.attest(s.recipient1, "1", s.recipient1.Address, 0)
		_, err := s.service.Unlock(s.ctx, s.recipient1.Address, req)
		s.True(dErrors.HasCode(err, dErrors.CodeSignatureMismatch))
		s.Equal(dErrors.ReasonWrongMessage, err.Error())
	})

	s.Run("attestation presented by a different caller", func() {
		req := s.attest(s.giver, "1", s.recipient1.Address, 0)
		_, err := s.service.Unlock(s.ctx, s.recipient2.Address, req)
		s.True(dErrors.HasCode(err, dErrors.CodeSignatureMismatch))
	})

	s.Run("attestation for another achievement", func() {
		req := s.attest(s.giver, "2", s.recipient1.Address, 0)
		_, err := s.service.Unlock(s.ctx, s.recipient1.Address, req)
		s.True(dErrors.HasCode(err, dErrors.CodeSignatureMismatch))
	})

	s.Run("unknown achievement", func() {
		req := s.attest(s.giver, "9", s.recipient1.Address, 42)
		_, err := s.service.Unlock(s.ctx, s.recipient1.Address, req)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownAchievement))
	})

	s.Run("malformed signature", func() {
		req := s.attest(s.giver, "1", s.recipient1.Address, 0)
		req.V = 29
		_, err := s.service.Unlock(s.ctx, s.recipient1.Address, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))
	})

	s.Run("rejections mint nothing", func() {
		owned, err := s.service.TokensByOwner(s.ctx, s.recipient1.Address)
		s.Require().NoError(err)
		s.Empty(owned)
		_, err = s.service.GetToken(s.ctx, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownToken))
	})
}

func (s *ScenarioSuite) TestNonAdminCannotMutate() {
	err := s.service.ChangeAdmin(s.ctx, s.recipient1.Address, s.recipient1.Address)
	s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))

	err = s.service.ChangePermissionGiver(s.ctx, s.recipient1.Address, s.recipient1.Address)
	s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))

	_, err = s.service.AddAchievement(s.ctx, s.recipient1.Address, "6")
	s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))

	roles, err := s.service.Roles(s.ctx)
	s.Require().NoError(err)
	s.Equal(s.admin.Address, roles.Admin)
	s.Equal(s.giver.Address, roles.PermissionGiver)

	all, err := s.service.ListAchievements(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 5)
}

func (s *ScenarioSuite) TestAdminTransfer() {
	s.Require().NoError(s.service.ChangeAdmin(s.ctx, s.admin.Address, s.recipient1.Address))

	_, err := s.service.AddAchievement(s.ctx, s.admin.Address, "6")
	s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))

	added, err := s.service.AddAchievement(s.ctx, s.recipient1.Address, "6")
	s.Require().NoError(err)
	s.Equal(id.AchievementID(5), added.ID)
}

// TestPermissionGiverRotation checks that rotation flips which attestations
// verify and leaves existing claims alone.
func (s *ScenarioSuite) TestPermissionGiverRotation() {
	oldReq := s.attest(s.giver, "1", s.recipient1.Address, 0)
	_, err := s.service.Unlock(s.ctx, s.recipient1.Address, oldReq)
	s.Require().NoError(err)

	newGiver := signaturetest.NewAccount(s.T())
	s.Require().NoError(s.service.ChangePermissionGiver(s.ctx, s.admin.Address, newGiver.Address))

	stale := s.attest(s.giver, "2", s.recipient1.Address, 1)
	_, err = s.service.Unlock(s.ctx, s.recipient1.Address, stale)
	s.True(dErrors.HasCode(err, dErrors.CodeSignatureMismatch))

	fresh := s.attest(newGiver, "2", s.recipient1.Address, 1)
	_, err = s.service.Unlock(s.ctx, s.recipient1.Address, fresh)
	s.Require().NoError(err)

	claimed, err := s.service.IsClaimed(s.ctx, s.recipient1.Address, 0)
	s.Require().NoError(err)
	s.True(claimed)
}

func (s *ScenarioSuite) TestInitializeIsIdempotent() {
	other := signaturetest.NewAccount(s.T())
	s.Require().NoError(s.service.Initialize(s.ctx, other.Address, other.Address, []string{"x"}))

	roles, err := s.service.Roles(s.ctx)
	s.Require().NoError(err)
	s.Equal(s.admin.Address, roles.Admin)

	all, err := s.service.ListAchievements(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 5)
}

func (s *ScenarioSuite) TestConcurrentUnlocksOfSamePair() {
	req := s.attest(s.giver, "3", s.recipient1.Address, 2)

	const goroutines = 25
	var wg sync.WaitGroup
	var wins, claimed atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Unlock(s.ctx, s.recipient1.Address, req)
			switch {
			case err == nil:
				wins.Add(1)
			case dErrors.HasCode(err, dErrors.CodeAlreadyClaimed):
				claimed.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), claimed.Load())
}

func (s *ScenarioSuite) TestAuditTrail() {
	req := s.attest(s.giver, "1", s.recipient1.Address, 0)
	_, err := s.service.Unlock(s.ctx, s.recipient1.Address, req)
	s.Require().NoError(err)
	_, err = s.service.Unlock(s.ctx, s.recipient1.Address, req)
	s.Require().Error(err)

	events, err := s.auditStore.ListByActor(s.ctx, s.recipient1.Address.Hex())
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventAchievementUnlocked), events[0].Action)
	s.Equal(audit.CategoryCompliance, events[0].Category)
	s.Equal(string(audit.EventUnlockRejected), events[1].Action)
	s.Equal(string(dErrors.CodeAlreadyClaimed), events[1].Reason)
}

func (s *ScenarioSuite) TestAuditTrailForRoleChanges() {
	newAdmin := signaturetest.NewAccount(s.T())
	s.Require().NoError(s.service.ChangeAdmin(s.ctx, s.admin.Address, newAdmin.Address))
	s.Require().NoError(s.service.ChangePermissionGiver(s.ctx, newAdmin.Address, s.recipient2.Address))

	recent, err := s.auditStore.ListRecent(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal(string(audit.EventAdminChanged), recent[0].Action)
	s.Equal(newAdmin.Address.Hex(), recent[0].Subject)
	s.Equal(string(audit.EventPermissionGiverChanged), recent[1].Action)
	s.Equal(audit.CategorySecurity, recent[1].Category)
}
