package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"accolade/internal/achievement/models"
	id "accolade/pkg/domain"
	dErrors "accolade/pkg/domain-errors"
)

// Read operations run against the last committed state and never block
// behind an in-flight mutation.

// GetAchievement returns the registry entry for achievementID.
func (s *Service) GetAchievement(ctx context.Context, achievementID id.AchievementID) (*models.Achievement, error) {
	achievement, err := s.stores.Achievements.FindByID(ctx, achievementID)
	if err != nil {
		return nil, translateAchievementErr(err)
	}
	return achievement, nil
}

// GetLabel returns the label for achievementID.
func (s *Service) GetLabel(ctx context.Context, achievementID id.AchievementID) (string, error) {
	achievement, err := s.GetAchievement(ctx, achievementID)
	if err != nil {
		return "", err
	}
	return achievement.Label, nil
}

func (s *Service) ListAchievements(ctx context.Context) ([]*models.Achievement, error) {
	achievements, err := s.stores.Achievements.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list achievements")
	}
	return achievements, nil
}

// GetAchievementLabel resolves a minted token to its achievement label.
func (s *Service) GetAchievementLabel(ctx context.Context, tokenID id.TokenID) (*models.UnlockedAchievement, error) {
	token, err := s.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	label, err := s.GetLabel(ctx, token.AchievementID)
	if err != nil {
		// A minted token always references an existing achievement.
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "token references missing achievement")
	}
	return &models.UnlockedAchievement{Token: token, Label: label}, nil
}

func (s *Service) GetToken(ctx context.Context, tokenID id.TokenID) (*models.Token, error) {
	token, err := s.stores.Tokens.FindByID(ctx, tokenID)
	if err != nil {
		return nil, translateTokenErr(err)
	}
	return token, nil
}

// TokensByOwner lists tokens minted to owner in mint order.
func (s *Service) TokensByOwner(ctx context.Context, owner common.Address) ([]*models.Token, error) {
	tokens, err := s.stores.Tokens.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tokens")
	}
	return tokens, nil
}

// IsClaimed reports whether recipient has unlocked achievementID.
func (s *Service) IsClaimed(ctx context.Context, recipient common.Address, achievementID id.AchievementID) (bool, error) {
	claimed, err := s.stores.Claims.IsClaimed(ctx, recipient, achievementID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check claim")
	}
	return claimed, nil
}

// Roles returns the current admin and permission-giver.
func (s *Service) Roles(ctx context.Context) (*models.Roles, error) {
	return loadRoles(ctx, s.stores.Roles)
}
