// Package service implements wallet sign-in: the caller proves control of
// an address by personal-signing a single-use challenge, and receives a
// short-lived access token whose subject is that address.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"accolade/internal/auth/models"
	"accolade/internal/signature"
	id "accolade/pkg/domain"
	dErrors "accolade/pkg/domain-errors"
	"accolade/pkg/platform/audit"
	"accolade/pkg/platform/sentinel"
	"accolade/pkg/requestcontext"
)

// ChallengeStore persists outstanding challenges.
type ChallengeStore interface {
	Save(ctx context.Context, challenge *models.Challenge) error
	// Consume removes the challenge; sentinel.ErrNotFound or
	// sentinel.ErrExpired when it cannot be redeemed.
	Consume(ctx context.Context, nonce string) (*models.Challenge, error)
}

// TokenIssuer signs access tokens for an address.
type TokenIssuer interface {
	GenerateAccessToken(caller common.Address, expiresIn time.Duration) (string, string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config holds sign-in settings.
type Config struct {
	// Domain is named in the signed message so a signature for one service
	// cannot be replayed against another.
	Domain       string
	ChallengeTTL time.Duration
	TokenTTL     time.Duration
}

type Service struct {
	challenges     ChallengeStore
	tokens         TokenIssuer
	cfg            Config
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func New(challenges ChallengeStore, tokens TokenIssuer, cfg Config, opts ...Option) (*Service, error) {
	if challenges == nil {
		return nil, errors.New("challenge store is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if cfg.ChallengeTTL <= 0 || cfg.TokenTTL <= 0 {
		return nil, errors.New("challenge and token TTLs must be positive")
	}
	if cfg.Domain == "" {
		cfg.Domain = "accolade"
	}
	s := &Service{challenges: challenges, tokens: tokens, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueChallenge creates a nonce for address and returns the message to sign.
func (s *Service) IssueChallenge(ctx context.Context, address common.Address) (*models.Challenge, error) {
	if id.IsZeroAddress(address) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "address cannot be zero")
	}
	now := requestcontext.Now(ctx)
	nonce := uuid.NewString()
	challenge := &models.Challenge{
		Nonce:     nonce,
		Address:   address,
		Message:   models.BuildMessage(s.cfg.Domain, address, nonce, now),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.ChallengeTTL),
	}
	if err := s.challenges.Save(ctx, challenge); err != nil {
		if errors.Is(err, sentinel.ErrUnavailable) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "too many outstanding challenges, retry later")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store challenge")
	}
	return challenge, nil
}

// SignIn redeems a challenge. The nonce is consumed before the signature is
// checked, so every nonce allows exactly one attempt.
func (s *Service) SignIn(ctx context.Context, address common.Address, nonce, rawSignature string) (*models.TokenResult, error) {
	challenge, err := s.challenges.Consume(ctx, nonce)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired) {
			return nil, s.rejectSignIn(ctx, address, "challenge not found or expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load challenge")
	}
	if challenge.Address != address {
		return nil, s.rejectSignIn(ctx, address, "challenge issued to another address")
	}

	sig, err := signature.Parse(rawSignature)
	if err != nil {
		return nil, s.rejectSignIn(ctx, address, "malformed signature")
	}
	signer, err := signature.RecoverPersonal([]byte(challenge.Message), sig)
	if err != nil || signer != address {
		return nil, s.rejectSignIn(ctx, address, "signature does not match address")
	}

	token, jti, err := s.tokens.GenerateAccessToken(address, s.cfg.TokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}
	s.logAudit(ctx, audit.Event{
		Action:   string(audit.EventCallerSignedIn),
		ActorID:  address.Hex(),
		Subject:  address.Hex(),
		Decision: "granted",
	})
	return &models.TokenResult{AccessToken: token, TokenID: jti, ExpiresIn: s.cfg.TokenTTL}, nil
}

func (s *Service) rejectSignIn(ctx context.Context, address common.Address, reason string) error {
	s.logAudit(ctx, audit.Event{
		Action:   string(audit.EventSignInFailed),
		ActorID:  address.Hex(),
		Decision: "denied",
		Reason:   reason,
	})
	return dErrors.New(dErrors.CodeUnauthorized, "sign-in failed")
}

func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	s.logger.InfoContext(ctx, event.Action,
		"event", event.Action,
		"log_type", "audit",
		"actor", event.ActorID,
		"reason", event.Reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish audit event",
			"event", event.Action,
			"error", err,
		)
	}
}
