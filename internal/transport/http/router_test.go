package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	achievementhandler "accolade/internal/achievement/handler"
	achievementmetrics "accolade/internal/achievement/metrics"
	achievementmodels "accolade/internal/achievement/models"
	achievementservice "accolade/internal/achievement/service"
	"accolade/internal/achievement/store/memory"
	authhandler "accolade/internal/auth/handler"
	authmodels "accolade/internal/auth/models"
	authservice "accolade/internal/auth/service"
	"accolade/internal/auth/store/challenge"
	jwttoken "accolade/internal/jwt_token"
	"accolade/internal/platform/metrics"
	"accolade/internal/signature"
	"accolade/internal/signature/signaturetest"
	"accolade/pkg/testutil"
)

// RouterSuite drives the assembled router end to end: wallet sign-in, then
// authenticated unlock, then public reads.
type RouterSuite struct {
	suite.Suite
	router    http.Handler
	admin     signaturetest.Account
	giver     signaturetest.Account
	recipient signaturetest.Account
	redisDown bool
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.admin = signaturetest.NewAccount(s.T())
	s.giver = signaturetest.NewAccount(s.T())
	s.recipient = signaturetest.NewAccount(s.T())
	s.redisDown = false

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	jwt := jwttoken.NewJWTService("router-test-key", "accolade", "accolade-api")

	backend := memory.NewInMemory()
	achievements, err := achievementservice.New(backend.Stores(), backend, signature.NewECDSAVerifier(),
		achievementservice.WithLogger(logger),
		achievementservice.WithMetrics(achievementmetrics.New(reg)),
	)
	s.Require().NoError(err)
	s.Require().NoError(achievements.Initialize(context.Background(), s.admin.Address, s.giver.Address,
		[]string{"1", "2", "3", "4", "5"}))

	auth, err := authservice.New(challenge.NewInMemory(), jwt,
		authservice.Config{ChallengeTTL: time.Minute, TokenTTL: time.Hour},
		authservice.WithLogger(logger),
	)
	s.Require().NoError(err)

	s.router = NewRouter(Deps{
		Logger:       logger,
		Metrics:      metrics.New(reg),
		Gatherer:     reg,
		Validator:    jwttoken.NewJWTServiceAdapter(jwt),
		Achievements: achievementhandler.New(achievements, logger),
		Auth:         authhandler.New(auth, logger),
		HealthChecks: map[string]HealthCheck{
			"redis": func(context.Context) error {
				if s.redisDown {
					return errors.New("connection refused")
				}
				return nil
			},
		},
	})
}

func (s *RouterSuite) signIn(account signaturetest.Account) string {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/challenge",
		authmodels.ChallengeRequest{Address: account.Address.Hex()})
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusCreated, rr.Code)
	ch := testutil.UnmarshalResponse[authmodels.ChallengeResponse](s.T(), rr)

	req = testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/token", authmodels.TokenRequest{
		Address:   account.Address.Hex(),
		Nonce:     ch.Nonce,
		Signature: account.SignMessage(s.T(), []byte(ch.Message)).Hex(),
	})
	rr = testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusOK, rr.Code)
	return testutil.UnmarshalResponse[authmodels.TokenResponse](s.T(), rr).AccessToken
}

func (s *RouterSuite) authed(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func (s *RouterSuite) TestAddUnlockAndRead() {
	adminToken := s.signIn(s.admin)
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/achievements",
		achievementmodels.AddAchievementRequest{Label: "6"})
	rr := testutil.DoRequest(s.router, s.authed(req, adminToken))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	added := testutil.UnmarshalResponse[achievementmodels.AchievementResponse](s.T(), rr)
	s.EqualValues(5, added.ID)

	digest, sig := s.giver.Attest(s.T(), "6", s.recipient.Address)
	recipientToken := s.signIn(s.recipient)
	req = testutil.NewJSONRequest(s.T(), http.MethodPost, "/achievements/5/unlock",
		achievementmodels.UnlockAchievementRequest{Digest: digest.Hex(), Signature: sig.Hex()})
	rr = testutil.DoRequest(s.router, s.authed(req, recipientToken))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	minted := testutil.UnmarshalResponse[achievementmodels.TokenResponse](s.T(), rr)
	s.EqualValues(1, minted.TokenID)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/tokens/1/achievement"))
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("6", testutil.UnmarshalResponse[achievementmodels.TokenAchievementResponse](s.T(), rr).Label)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(s.T(), rr)
	body := string(testutil.ReadBody(s.T(), rr))
	s.Contains(body, "accolade_unlocks_total")
	s.Contains(body, "accolade_http_request_duration_seconds")
}

func (s *RouterSuite) TestAuthenticatedRoutesRequireToken() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/achievements",
		achievementmodels.AddAchievementRequest{Label: "6"})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)

	rr = testutil.DoRequest(s.router, s.authed(req, "not-a-jwt"))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *RouterSuite) TestNonAdminIsForbidden() {
	token := s.signIn(s.recipient)
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/achievements",
		achievementmodels.AddAchievementRequest{Label: "6"})
	rr := testutil.DoRequest(s.router, s.authed(req, token))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "not_authorized")
}

func (s *RouterSuite) TestRequestIDIsEchoed() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/achievements")
	req.Header.Set("X-Request-ID", "req-123")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("req-123", rr.Header().Get("X-Request-ID"))
}

func (s *RouterSuite) TestHealth() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(s.T(), rr)

	s.redisDown = true
	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatus(s.T(), rr, http.StatusServiceUnavailable)
}
