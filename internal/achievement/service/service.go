// Package service implements the achievement protocol: role-gated registry
// management and attestation-gated unlocks that mint one token per
// (recipient, achievement) pair.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"accolade/internal/achievement/metrics"
	"accolade/internal/achievement/models"
	"accolade/internal/achievement/ports"
	"accolade/internal/signature"
	id "accolade/pkg/domain"
	dErrors "accolade/pkg/domain-errors"
	"accolade/pkg/platform/audit"
	"accolade/pkg/platform/sentinel"
	"accolade/pkg/requestcontext"
)

const tracerName = "accolade/internal/achievement/service"

var errRolesNotInitialized = dErrors.New(dErrors.CodeInternal, "roles not initialized")

// Service orchestrates the role store, registry, claim ledger and token
// ledger. All mutations run through a single StoreTx boundary.
type Service struct {
	stores         ports.Stores
	tx             ports.StoreTx
	verifier       signature.Verifier
	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service. stores serves reads against committed state;
// tx serves every mutation.
func New(stores ports.Stores, tx ports.StoreTx, verifier signature.Verifier, opts ...Option) (*Service, error) {
	switch {
	case stores.Roles == nil:
		return nil, errors.New("role store is required")
	case stores.Achievements == nil:
		return nil, errors.New("achievement registry is required")
	case stores.Claims == nil:
		return nil, errors.New("claim ledger is required")
	case stores.Tokens == nil:
		return nil, errors.New("token ledger is required")
	case tx == nil:
		return nil, errors.New("store transaction runner is required")
	case verifier == nil:
		return nil, errors.New("signature verifier is required")
	}
	s := &Service{
		stores:   stores,
		tx:       tx,
		verifier: verifier,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initialize assigns the initial roles and seeds the registry. It runs once:
// if roles already exist the call is a no-op, so restarts against a
// persistent store keep existing state.
func (s *Service) Initialize(ctx context.Context, admin, permissionGiver common.Address, labels []string) error {
	ctx, span := s.tracer.Start(ctx, "achievement.Initialize")
	defer span.End()

	if id.IsZeroAddress(admin) {
		return dErrors.New(dErrors.CodeInvalidInput, "admin address cannot be zero")
	}
	if id.IsZeroAddress(permissionGiver) {
		return dErrors.New(dErrors.CodeInvalidInput, "permission-giver address cannot be zero")
	}
	for _, label := range labels {
		if _, err := models.NewLabel(label); err != nil {
			return dErrors.New(dErrors.CodeValidation, "seed label: "+err.Error())
		}
	}

	initialized := false
	err := s.tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		if _, err := stores.Roles.Get(ctx); err == nil {
			return nil
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load roles")
		}
		now := requestcontext.Now(ctx)
		if err := stores.Roles.Save(ctx, &models.Roles{Admin: admin, PermissionGiver: permissionGiver, UpdatedAt: now}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save roles")
		}
		for _, label := range labels {
			if _, err := stores.Achievements.Append(ctx, label, now); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed achievement")
			}
		}
		initialized = true
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	if !initialized {
		s.logger.InfoContext(ctx, "roles already initialized, skipping seed")
		return nil
	}
	s.logAudit(ctx, audit.Event{
		Action:  string(audit.EventRolesInitialized),
		ActorID: admin.Hex(),
		Subject: permissionGiver.Hex(),
	}, "seeded", len(labels))
	return nil
}

// ChangeAdmin transfers the admin role. Only the current admin may call it.
func (s *Service) ChangeAdmin(ctx context.Context, caller, newAdmin common.Address) error {
	return s.changeRole(ctx, "admin", caller, newAdmin, audit.EventAdminChanged, func(r *models.Roles) {
		r.Admin = newAdmin
	})
}

// ChangePermissionGiver replaces the attestation signer. Existing claims are
// unaffected; only future unlocks verify against the new signer.
func (s *Service) ChangePermissionGiver(ctx context.Context, caller, newGiver common.Address) error {
	return s.changeRole(ctx, "permission_giver", caller, newGiver, audit.EventPermissionGiverChanged, func(r *models.Roles) {
		r.PermissionGiver = newGiver
	})
}

func (s *Service) changeRole(ctx context.Context, role string, caller, next common.Address, event audit.AuditEvent, apply func(*models.Roles)) error {
	ctx, span := s.tracer.Start(ctx, "achievement.ChangeRole", trace.WithAttributes(attribute.String("role", role)))
	defer span.End()

	var previous common.Address
	err := s.tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		roles, err := s.requireAdmin(ctx, stores, caller, "change_"+role)
		if err != nil {
			return err
		}
		if id.IsZeroAddress(next) {
			return dErrors.New(dErrors.CodeInvalidInput, role+" address cannot be zero")
		}
		updated := *roles
		apply(&updated)
		updated.UpdatedAt = requestcontext.Now(ctx)
		if role == "admin" {
			previous = roles.Admin
		} else {
			previous = roles.PermissionGiver
		}
		if err := stores.Roles.Save(ctx, &updated); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save roles")
		}
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	if s.metrics != nil {
		s.metrics.IncrementRoleChange(role)
	}
	s.logAudit(ctx, audit.Event{
		Action:  string(event),
		ActorID: caller.Hex(),
		Subject: next.Hex(),
	}, "previous", previous.Hex())
	return nil
}

// AddAchievement appends label to the registry and returns the new entry.
// The ID equals the registry length before the call.
func (s *Service) AddAchievement(ctx context.Context, caller common.Address, label string) (*models.Achievement, error) {
	ctx, span := s.tracer.Start(ctx, "achievement.AddAchievement")
	defer span.End()

	var added *models.Achievement
	err := s.tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		if _, err := s.requireAdmin(ctx, stores, caller, "add_achievement"); err != nil {
			return err
		}
		valid, err := models.NewLabel(label)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, err.Error())
		}
		added, err = stores.Achievements.Append(ctx, valid, requestcontext.Now(ctx))
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add achievement")
		}
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementAchievementsAdded()
	}
	span.SetAttributes(attribute.Int64("achievement_id", int64(added.ID)))
	s.logAudit(ctx, audit.Event{
		Action:        string(audit.EventAchievementAdded),
		ActorID:       caller.Hex(),
		AchievementID: added.ID.String(),
	})
	return added, nil
}

// Unlock verifies the attestation for (label of req.AchievementID, caller)
// and mints a token to caller. Each pair can be unlocked at most once; the
// whole sequence commits or nothing does.
func (s *Service) Unlock(ctx context.Context, caller common.Address, req *models.UnlockRequest) (*models.Token, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unlock request is required")
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "achievement.Unlock",
		trace.WithAttributes(attribute.Int64("achievement_id", int64(req.AchievementID))))
	defer span.End()

	sig := signature.Signature{V: req.V, R: req.R, S: req.S}
	var minted *models.Token
	err := s.tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		achievement, err := stores.Achievements.FindByID(ctx, req.AchievementID)
		if err != nil {
			return translateAchievementErr(err)
		}
		roles, err := loadRoles(ctx, stores.Roles)
		if err != nil {
			return err
		}
		if err := s.verifier.Verify(achievement.Label, caller, req.Digest, sig, roles.PermissionGiver); err != nil {
			return err
		}
		claimed, err := stores.Claims.IsClaimed(ctx, caller, req.AchievementID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check claim")
		}
		if claimed {
			return dErrors.New(dErrors.CodeAlreadyClaimed, "achievement already claimed")
		}
		now := requestcontext.Now(ctx)
		minted, err = stores.Tokens.Mint(ctx, caller, req.AchievementID, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint token")
		}
		err = stores.Claims.MarkClaimed(ctx, &models.Claim{
			Recipient:     caller,
			AchievementID: req.AchievementID,
			TokenID:       minted.ID,
			ClaimedAt:     now,
		})
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.New(dErrors.CodeAlreadyClaimed, "achievement already claimed")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record claim")
		}
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		s.observeUnlock(unlockOutcome(err), start)
		s.logAudit(ctx, audit.Event{
			Action:        string(audit.EventUnlockRejected),
			ActorID:       caller.Hex(),
			AchievementID: req.AchievementID.String(),
			Decision:      "denied",
			Reason:        string(dErrors.CodeOf(err)),
		})
		return nil, err
	}
	s.observeUnlock(metrics.OutcomeUnlocked, start)
	s.logAudit(ctx, audit.Event{
		Action:        string(audit.EventAchievementUnlocked),
		ActorID:       caller.Hex(),
		Subject:       caller.Hex(),
		AchievementID: req.AchievementID.String(),
		TokenID:       minted.ID.String(),
		Decision:      "granted",
	})
	return minted, nil
}

// requireAdmin loads roles within the transaction and rejects non-admins.
func (s *Service) requireAdmin(ctx context.Context, stores ports.Stores, caller common.Address, operation string) (*models.Roles, error) {
	roles, err := loadRoles(ctx, stores.Roles)
	if err != nil {
		return nil, err
	}
	if !roles.IsAdmin(caller) {
		if s.metrics != nil {
			s.metrics.IncrementNotAuthorized(operation)
		}
		s.logger.WarnContext(ctx, "admin operation rejected",
			"operation", operation,
			"caller", caller.Hex(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.New(dErrors.CodeNotAuthorized, dErrors.ReasonNotAuthorized)
	}
	return roles, nil
}

func loadRoles(ctx context.Context, store ports.RoleStore) (*models.Roles, error) {
	roles, err := store.Get(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, errRolesNotInitialized
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load roles")
	}
	return roles, nil
}

func translateAchievementErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeUnknownAchievement, "unknown achievement")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load achievement")
}

func translateTokenErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeUnknownToken, "unknown token")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load token")
}

func unlockOutcome(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnknownAchievement:
		return metrics.OutcomeUnknownAchievement
	case dErrors.CodeInvalidSignature:
		return metrics.OutcomeInvalidSignature
	case dErrors.CodeSignatureMismatch:
		return metrics.OutcomeSignatureMismatch
	case dErrors.CodeAlreadyClaimed:
		return metrics.OutcomeAlreadyClaimed
	default:
		return metrics.OutcomeError
	}
}

func (s *Service) observeUnlock(outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveUnlock(outcome, start)
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
}

// logAudit writes the event to the structured log and, when configured, the
// audit publisher. Publishing failures are logged and never fail the caller.
func (s *Service) logAudit(ctx context.Context, event audit.Event, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes,
		"event", event.Action,
		"log_type", "audit",
		"actor", event.ActorID,
	)
	if event.AchievementID != "" {
		args = append(args, "achievement_id", event.AchievementID)
	}
	if event.TokenID != "" {
		args = append(args, "token_id", event.TokenID)
	}
	if event.Reason != "" {
		args = append(args, "reason", event.Reason)
	}
	s.logger.InfoContext(ctx, event.Action, args...)
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
