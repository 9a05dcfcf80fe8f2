package models

import (
	"time"
)

type AchievementResponse struct {
	ID    uint64 `json:"id"`
	Label string `json:"label"`
}

type AchievementListResponse struct {
	Achievements []AchievementResponse `json:"achievements"`
}

type TokenResponse struct {
	TokenID       uint64    `json:"token_id"`
	AchievementID uint64    `json:"achievement_id"`
	Owner         string    `json:"owner"`
	MintedAt      time.Time `json:"minted_at"`
}

type TokenListResponse struct {
	Owner  string          `json:"owner"`
	Tokens []TokenResponse `json:"tokens"`
}

type TokenAchievementResponse struct {
	TokenID       uint64 `json:"token_id"`
	AchievementID uint64 `json:"achievement_id"`
	Label         string `json:"label"`
}

type ClaimStatusResponse struct {
	Recipient     string `json:"recipient"`
	AchievementID uint64 `json:"achievement_id"`
	Claimed       bool   `json:"claimed"`
}

type RolesResponse struct {
	Admin           string `json:"admin"`
	PermissionGiver string `json:"permission_giver"`
}

func ToAchievementResponse(a *Achievement) AchievementResponse {
	return AchievementResponse{ID: uint64(a.ID), Label: a.Label}
}

func ToTokenResponse(t *Token) TokenResponse {
	return TokenResponse{
		TokenID:       uint64(t.ID),
		AchievementID: uint64(t.AchievementID),
		Owner:         t.Owner.Hex(),
		MintedAt:      t.MintedAt,
	}
}
