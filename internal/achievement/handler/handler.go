package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"accolade/internal/achievement/models"
	id "accolade/pkg/domain"
	dErrors "accolade/pkg/domain-errors"
	"accolade/pkg/platform/httputil"
	"accolade/pkg/requestcontext"
)

// Service defines the achievement operations exposed over HTTP.
type Service interface {
	ChangeAdmin(ctx context.Context, caller, newAdmin common.Address) error
	ChangePermissionGiver(ctx context.Context, caller, newGiver common.Address) error
	AddAchievement(ctx context.Context, caller common.Address, label string) (*models.Achievement, error)
	Unlock(ctx context.Context, caller common.Address, req *models.UnlockRequest) (*models.Token, error)

	GetAchievement(ctx context.Context, achievementID id.AchievementID) (*models.Achievement, error)
	ListAchievements(ctx context.Context) ([]*models.Achievement, error)
	GetAchievementLabel(ctx context.Context, tokenID id.TokenID) (*models.UnlockedAchievement, error)
	GetToken(ctx context.Context, tokenID id.TokenID) (*models.Token, error)
	TokensByOwner(ctx context.Context, owner common.Address) ([]*models.Token, error)
	IsClaimed(ctx context.Context, recipient common.Address, achievementID id.AchievementID) (bool, error)
	Roles(ctx context.Context) (*models.Roles, error)
}

// Handler wires achievement endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public read endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/achievements", h.HandleListAchievements)
	r.Get("/achievements/{id}", h.HandleGetAchievement)
	r.Get("/tokens/{id}", h.HandleGetToken)
	r.Get("/tokens/{id}/achievement", h.HandleGetTokenAchievement)
	r.Get("/owners/{address}/tokens", h.HandleTokensByOwner)
	r.Get("/claims/{address}/{achievementID}", h.HandleClaimStatus)
	r.Get("/roles", h.HandleGetRoles)
}

// RegisterAuthenticated mounts the endpoints that act on behalf of the
// caller. The router must install auth middleware in front of them.
func (h *Handler) RegisterAuthenticated(r chi.Router) {
	r.Post("/achievements/{id}/unlock", h.HandleUnlock)
	r.Post("/admin/admin", h.HandleChangeAdmin)
	r.Post("/admin/permission-giver", h.HandleChangePermissionGiver)
	r.Post("/admin/achievements", h.HandleAddAchievement)
}

// HandleUnlock handles POST /achievements/{id}/unlock.
func (h *Handler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	achievementID, err := id.ParseAchievementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UnlockAchievementRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	unlock, err := req.ToUnlockRequest(achievementID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	token, err := h.service.Unlock(ctx, caller, unlock)
	if err != nil {
		h.logger.WarnContext(ctx, "unlock rejected",
			"request_id", requestID,
			"caller", caller.Hex(),
			"achievement_id", achievementID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.ToTokenResponse(token))
}

// HandleChangeAdmin handles POST /admin/admin.
func (h *Handler) HandleChangeAdmin(w http.ResponseWriter, r *http.Request) {
	h.handleRoleChange(w, r, h.service.ChangeAdmin)
}

// HandleChangePermissionGiver handles POST /admin/permission-giver.
func (h *Handler) HandleChangePermissionGiver(w http.ResponseWriter, r *http.Request) {
	h.handleRoleChange(w, r, h.service.ChangePermissionGiver)
}

func (h *Handler) handleRoleChange(w http.ResponseWriter, r *http.Request, change func(context.Context, common.Address, common.Address) error) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.AddressRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	address, err := id.ParseAddress(req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := change(ctx, caller, address); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddAchievement handles POST /admin/achievements.
func (h *Handler) HandleAddAchievement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.AddAchievementRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	added, err := h.service.AddAchievement(ctx, caller, req.Label)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.ToAchievementResponse(added))
}

func (h *Handler) HandleListAchievements(w http.ResponseWriter, r *http.Request) {
	achievements, err := h.service.ListAchievements(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := models.AchievementListResponse{Achievements: make([]models.AchievementResponse, 0, len(achievements))}
	for _, a := range achievements {
		resp.Achievements = append(resp.Achievements, models.ToAchievementResponse(a))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGetAchievement(w http.ResponseWriter, r *http.Request) {
	achievementID, err := id.ParseAchievementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	achievement, err := h.service.GetAchievement(r.Context(), achievementID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToAchievementResponse(achievement))
}

func (h *Handler) HandleGetToken(w http.ResponseWriter, r *http.Request) {
	tokenID, err := id.ParseTokenID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	token, err := h.service.GetToken(r.Context(), tokenID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToTokenResponse(token))
}

// HandleGetTokenAchievement handles GET /tokens/{id}/achievement.
func (h *Handler) HandleGetTokenAchievement(w http.ResponseWriter, r *http.Request) {
	tokenID, err := id.ParseTokenID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	unlocked, err := h.service.GetAchievementLabel(r.Context(), tokenID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.TokenAchievementResponse{
		TokenID:       uint64(unlocked.Token.ID),
		AchievementID: uint64(unlocked.Token.AchievementID),
		Label:         unlocked.Label,
	})
}

func (h *Handler) HandleTokensByOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tokens, err := h.service.TokensByOwner(r.Context(), owner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := models.TokenListResponse{Owner: owner.Hex(), Tokens: make([]models.TokenResponse, 0, len(tokens))}
	for _, t := range tokens {
		resp.Tokens = append(resp.Tokens, models.ToTokenResponse(t))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleClaimStatus(w http.ResponseWriter, r *http.Request) {
	recipient, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	achievementID, err := id.ParseAchievementID(chi.URLParam(r, "achievementID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	claimed, err := h.service.IsClaimed(r.Context(), recipient, achievementID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ClaimStatusResponse{
		Recipient:     recipient.Hex(),
		AchievementID: uint64(achievementID),
		Claimed:       claimed,
	})
}

func (h *Handler) HandleGetRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.Roles(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.RolesResponse{
		Admin:           roles.Admin.Hex(),
		PermissionGiver: roles.PermissionGiver.Hex(),
	})
}

func (h *Handler) requireCaller(w http.ResponseWriter, ctx context.Context) (common.Address, bool) {
	caller, ok := requestcontext.Caller(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return common.Address{}, false
	}
	return caller, true
}
