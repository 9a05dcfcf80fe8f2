package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"accolade/internal/auth/models"
	id "accolade/pkg/domain"
	"accolade/pkg/platform/httputil"
	"accolade/pkg/requestcontext"
)

// Service defines the sign-in operations exposed over HTTP.
type Service interface {
	IssueChallenge(ctx context.Context, address common.Address) (*models.Challenge, error)
	SignIn(ctx context.Context, address common.Address, nonce, signature string) (*models.TokenResult, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/challenge", h.HandleChallenge)
	r.Post("/auth/token", h.HandleToken)
}

// HandleChallenge handles POST /auth/challenge.
func (h *Handler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.ChallengeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	address, err := id.ParseAddress(req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	challenge, err := h.service.IssueChallenge(ctx, address)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue challenge",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, &models.ChallengeResponse{
		Nonce:     challenge.Nonce,
		Message:   challenge.Message,
		ExpiresAt: challenge.ExpiresAt,
	})
}

// HandleToken handles POST /auth/token.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.TokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	address, err := id.ParseAddress(req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.SignIn(ctx, address, req.Nonce, req.Signature)
	if err != nil {
		h.logger.WarnContext(ctx, "sign-in failed",
			"request_id", requestID,
			"address", address.Hex(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &models.TokenResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(result.ExpiresIn.Seconds()),
	})
}
