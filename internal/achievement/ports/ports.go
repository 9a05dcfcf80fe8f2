// Package ports defines the storage and collaborator interfaces of the
// achievement module. Store backends and the service both depend on it.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"accolade/internal/achievement/models"
	id "accolade/pkg/domain"
	"accolade/pkg/platform/audit"
)

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// RoleStore holds the singleton role assignment.
type RoleStore interface {
	// Get returns sentinel.ErrNotFound until roles are first saved.
	Get(ctx context.Context) (*models.Roles, error)
	Save(ctx context.Context, roles *models.Roles) error
}

// AchievementRegistry is the append-only list of achievement labels.
type AchievementRegistry interface {
	// Append stores label under the next dense ID, which equals the
	// registry length before the call.
	Append(ctx context.Context, label string, createdAt time.Time) (*models.Achievement, error)
	// FindByID returns sentinel.ErrNotFound for IDs past the end.
	FindByID(ctx context.Context, achievementID id.AchievementID) (*models.Achievement, error)
	List(ctx context.Context) ([]*models.Achievement, error)
}

// ClaimLedger records which (recipient, achievement) pairs are redeemed.
type ClaimLedger interface {
	IsClaimed(ctx context.Context, recipient common.Address, achievementID id.AchievementID) (bool, error)
	// MarkClaimed returns sentinel.ErrAlreadyUsed when the pair is present.
	MarkClaimed(ctx context.Context, claim *models.Claim) error
}

// TokenLedger mints tokens with sequential IDs starting at 1.
type TokenLedger interface {
	Mint(ctx context.Context, owner common.Address, achievementID id.AchievementID, mintedAt time.Time) (*models.Token, error)
	// FindByID returns sentinel.ErrNotFound for unminted IDs.
	FindByID(ctx context.Context, tokenID id.TokenID) (*models.Token, error)
	ListByOwner(ctx context.Context, owner common.Address) ([]*models.Token, error)
}

// Stores groups the four stores so a transaction can hand out a consistent set.
type Stores struct {
	Roles        RoleStore
	Achievements AchievementRegistry
	Claims       ClaimLedger
	Tokens       TokenLedger
}

// StoreTx runs fn with stores bound to a single transaction. Calls are
// serialized: at most one fn runs at a time, and its writes become visible
// only if it returns nil.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}
