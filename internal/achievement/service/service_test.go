package service

//go:generate mockgen -source=../ports/ports.go -destination=../ports/mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"accolade/internal/achievement/metrics"
	"accolade/internal/achievement/models"
	"accolade/internal/achievement/ports"
	"accolade/internal/achievement/ports/mocks"
	"accolade/internal/signature"
	dErrors "accolade/pkg/domain-errors"
	"accolade/pkg/platform/audit"
	"accolade/pkg/platform/sentinel"
)

// =============================================================================
// Achievement Service Test Suite
// =============================================================================
// Unit tests cover constructor invariants, error translation from stores and
// side effects (audit, metrics). End-to-end protocol behavior with real
// signatures lives in scenario_test.go.

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000AD111")
	giver    = common.HexToAddress("0x0000000000000000000000000000000000061BE5")
	stranger = common.HexToAddress("0x000000000000000000000000000000000000BAD0")
)

type stubVerifier struct{ err error }

func (v stubVerifier) Verify(string, common.Address, common.Hash, signature.Signature, common.Address) error {
	return v.err
}

type ServiceSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	roles        *mocks.MockRoleStore
	achievements *mocks.MockAchievementRegistry
	claims       *mocks.MockClaimLedger
	tokens       *mocks.MockTokenLedger
	tx           *mocks.MockStoreTx
	auditor      *mocks.MockAuditPublisher
	metrics      *metrics.Metrics
	verifier     *stubVerifier
	service      *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.roles = mocks.NewMockRoleStore(s.ctrl)
	s.achievements = mocks.NewMockAchievementRegistry(s.ctrl)
	s.claims = mocks.NewMockClaimLedger(s.ctrl)
	s.tokens = mocks.NewMockTokenLedger(s.ctrl)
	s.tx = mocks.NewMockStoreTx(s.ctrl)
	s.auditor = mocks.NewMockAuditPublisher(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.verifier = &stubVerifier{}

	s.tx.EXPECT().RunInTx(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context, ports.Stores) error) error {
			return fn(ctx, s.stores())
		}).AnyTimes()

	svc, err := New(s.stores(), s.tx, s.verifier,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.auditor),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) stores() ports.Stores {
	return ports.Stores{Roles: s.roles, Achievements: s.achievements, Claims: s.claims, Tokens: s.tokens}
}

func (s *ServiceSuite) expectRoles() {
	s.roles.EXPECT().Get(gomock.Any()).Return(&models.Roles{Admin: admin, PermissionGiver: giver}, nil)
}

func (s *ServiceSuite) TestNew() {
	s.Run("missing collaborators return errors", func() {
		stores := s.stores()
		stores.Claims = nil
		_, err := New(stores, s.tx, s.verifier)
		s.ErrorContains(err, "claim ledger is required")

		_, err = New(s.stores(), nil, s.verifier)
		s.ErrorContains(err, "store transaction runner is required")

		_, err = New(s.stores(), s.tx, nil)
		s.ErrorContains(err, "signature verifier is required")
	})

	s.Run("options are applied", func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc, err := New(s.stores(), s.tx, s.verifier, WithLogger(logger), WithAuditPublisher(s.auditor))
		s.Require().NoError(err)
		s.Equal(logger, svc.logger)
		s.Equal(s.auditor, svc.auditPublisher)
	})
}

// TestAdminOperationsRejectNonAdmin checks every admin-gated operation
// fails with ERR:NA and leaves state untouched.
func (s *ServiceSuite) TestAdminOperationsRejectNonAdmin() {
	ctx := context.Background()

	s.Run("change admin", func() {
		s.expectRoles()
		err := s.service.ChangeAdmin(ctx, stranger, stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
		s.Equal(dErrors.ReasonNotAuthorized, err.Error())
	})

	s.Run("change permission-giver", func() {
		s.expectRoles()
		err := s.service.ChangePermissionGiver(ctx, stranger, stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
	})

	s.Run("add achievement", func() {
		s.expectRoles()
		_, err := s.service.AddAchievement(ctx, stranger, "7")
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
	})

	s.Run("even the permission-giver is not admin", func() {
		s.expectRoles()
		_, err := s.service.AddAchievement(ctx, giver, "7")
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
	})

	s.Equal(2.0, testutil.ToFloat64(s.metrics.NotAuthorizedCalls.WithLabelValues("add_achievement")))
}

func (s *ServiceSuite) TestChangeRoles() {
	ctx := context.Background()

	s.Run("admin transfers the admin role", func() {
		s.expectRoles()
		s.roles.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, r *models.Roles) error {
			s.Equal(stranger, r.Admin)
			s.Equal(giver, r.PermissionGiver)
			return nil
		})
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
			s.Equal(string(audit.EventAdminChanged), e.Action)
			s.Equal(admin.Hex(), e.ActorID)
			s.Equal(stranger.Hex(), e.Subject)
			return nil
		})
		s.Require().NoError(s.service.ChangeAdmin(ctx, admin, stranger))
	})

	s.Run("zero address is rejected", func() {
		s.expectRoles()
		err := s.service.ChangePermissionGiver(ctx, admin, common.Address{})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("store failure is internal", func() {
		s.expectRoles()
		s.roles.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
		err := s.service.ChangePermissionGiver(ctx, admin, stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("uninitialized roles are internal", func() {
		s.roles.EXPECT().Get(gomock.Any()).Return(nil, sentinel.ErrNotFound)
		err := s.service.ChangeAdmin(ctx, admin, stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestAddAchievement() {
	ctx := context.Background()

	s.Run("returns the appended entry", func() {
		s.expectRoles()
		s.achievements.EXPECT().Append(gomock.Any(), "6", gomock.Any()).
			Return(&models.Achievement{ID: 5, Label: "6"}, nil)
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		added, err := s.service.AddAchievement(ctx, admin, "6")
		s.Require().NoError(err)
		s.EqualValues(5, added.ID)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.AchievementsAdded))
	})

	s.Run("empty label is a validation error", func() {
		s.expectRoles()
		_, err := s.service.AddAchievement(ctx, admin, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("audit failure does not fail the call", func() {
		s.expectRoles()
		s.achievements.EXPECT().Append(gomock.Any(), "7", gomock.Any()).
			Return(&models.Achievement{ID: 6, Label: "7"}, nil)
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("audit buffer full"))

		_, err := s.service.AddAchievement(ctx, admin, "7")
		s.NoError(err)
	})
}

func (s *ServiceSuite) TestUnlockErrorTranslation() {
	ctx := context.Background()
	req := &models.UnlockRequest{AchievementID: 0}

	s.Run("unknown achievement", func() {
		s.achievements.EXPECT().FindByID(gomock.Any(), req.AchievementID).Return(nil, sentinel.ErrNotFound)
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
			s.Equal(string(audit.EventUnlockRejected), e.Action)
			s.Equal(string(dErrors.CodeUnknownAchievement), e.Reason)
			return nil
		})
		_, err := s.service.Unlock(ctx, stranger, req)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownAchievement))
	})

	s.Run("verifier error is returned as is", func() {
		s.verifier.err = signature.ErrSignatureMismatch
		defer func() { s.verifier.err = nil }()
		s.achievements.EXPECT().FindByID(gomock.Any(), req.AchievementID).Return(&models.Achievement{Label: "1"}, nil)
		s.expectRoles()
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		_, err := s.service.Unlock(ctx, stranger, req)
		s.ErrorIs(err, signature.ErrSignatureMismatch)
	})

	s.Run("already claimed", func() {
		s.achievements.EXPECT().FindByID(gomock.Any(), req.AchievementID).Return(&models.Achievement{Label: "1"}, nil)
		s.expectRoles()
		s.claims.EXPECT().IsClaimed(gomock.Any(), stranger, req.AchievementID).Return(true, nil)
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		_, err := s.service.Unlock(ctx, stranger, req)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyClaimed))
	})

	s.Run("ledger race surfaces as already claimed", func() {
		s.achievements.EXPECT().FindByID(gomock.Any(), req.AchievementID).Return(&models.Achievement{Label: "1"}, nil)
		s.expectRoles()
		s.claims.EXPECT().IsClaimed(gomock.Any(), stranger, req.AchievementID).Return(false, nil)
		s.tokens.EXPECT().Mint(gomock.Any(), stranger, req.AchievementID, gomock.Any()).Return(&models.Token{ID: 1}, nil)
		s.claims.EXPECT().MarkClaimed(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyUsed)
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		_, err := s.service.Unlock(ctx, stranger, req)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyClaimed))
	})

	s.Run("nil request", func() {
		_, err := s.service.Unlock(ctx, stranger, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Unlocks.WithLabelValues(metrics.OutcomeUnknownAchievement)))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.Unlocks.WithLabelValues(metrics.OutcomeAlreadyClaimed)))
}

func (s *ServiceSuite) TestUnlockMintsAndRecordsClaim() {
	ctx := context.Background()
	req := &models.UnlockRequest{AchievementID: 2}

	s.achievements.EXPECT().FindByID(gomock.Any(), req.AchievementID).Return(&models.Achievement{ID: 2, Label: "3"}, nil)
	s.expectRoles()
	s.claims.EXPECT().IsClaimed(gomock.Any(), stranger, req.AchievementID).Return(false, nil)
	s.tokens.EXPECT().Mint(gomock.Any(), stranger, req.AchievementID, gomock.Any()).
		Return(&models.Token{ID: 1, Owner: stranger, AchievementID: 2, MintedAt: time.Now()}, nil)
	s.claims.EXPECT().MarkClaimed(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c *models.Claim) error {
		s.Equal(stranger, c.Recipient)
		s.EqualValues(2, c.AchievementID)
		s.EqualValues(1, c.TokenID)
		return nil
	})
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(string(audit.EventAchievementUnlocked), e.Action)
		s.Equal("1", e.TokenID)
		return nil
	})

	token, err := s.service.Unlock(ctx, stranger, req)
	s.Require().NoError(err)
	s.EqualValues(1, token.ID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Unlocks.WithLabelValues(metrics.OutcomeUnlocked)))
}

func (s *ServiceSuite) TestReads() {
	ctx := context.Background()

	s.Run("unknown token", func() {
		s.tokens.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.GetAchievementLabel(ctx, 9)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownToken))
	})

	s.Run("token resolves to label", func() {
		s.tokens.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(&models.Token{ID: 1, AchievementID: 5}, nil)
		s.achievements.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(&models.Achievement{ID: 5, Label: "6"}, nil)
		got, err := s.service.GetAchievementLabel(ctx, 1)
		s.Require().NoError(err)
		s.Equal("6", got.Label)
	})

	s.Run("store failure on list is internal", func() {
		s.achievements.EXPECT().List(gomock.Any()).Return(nil, errors.New("connection reset"))
		_, err := s.service.ListAchievements(ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
