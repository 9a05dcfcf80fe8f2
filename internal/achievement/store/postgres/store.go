// Package postgres persists achievement state in PostgreSQL. Mutations are
// serialized across processes by a transaction-scoped advisory lock.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"accolade/internal/achievement/models"
	"accolade/internal/achievement/ports"
	pg "accolade/internal/platform/postgres"
	id "accolade/pkg/domain"
	"accolade/pkg/platform/sentinel"
	txcontext "accolade/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// mutationLockKey identifies the advisory lock held by every transaction.
const mutationLockKey int64 = 0x616363_6f6c6164

// PostgresStore is the database backend. It implements ports.StoreTx and
// hands out stores through Stores; stores use the transaction carried by
// the context when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply achievement schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Stores() ports.Stores {
	return ports.Stores{
		Roles:        &roleStore{db: s.db},
		Achievements: &achievementStore{db: s.db},
		Claims:       &claimStore{db: s.db},
		Tokens:       &tokenStore{db: s.db},
	}
}

// RunInTx runs fn in one SQL transaction after taking the mutation lock.
// The lock is released on commit or rollback.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, stores ports.Stores) error) error {
	return txcontext.Run(ctx, s.db, nil, func(ctx context.Context) error {
		if _, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, mutationLockKey); err != nil {
			return fmt.Errorf("acquire mutation lock: %w", err)
		}
		return fn(ctx, s.Stores())
	})
}

type roleStore struct{ db *sql.DB }

func (s *roleStore) Get(ctx context.Context) (*models.Roles, error) {
	var admin, giver []byte
	var roles models.Roles
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT admin, permission_giver, updated_at FROM achievement_roles WHERE id = 1`,
	).Scan(&admin, &giver, &roles.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find roles: %w", err)
	}
	roles.Admin = common.BytesToAddress(admin)
	roles.PermissionGiver = common.BytesToAddress(giver)
	return &roles, nil
}

func (s *roleStore) Save(ctx context.Context, roles *models.Roles) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO achievement_roles (id, admin, permission_giver, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			admin = EXCLUDED.admin,
			permission_giver = EXCLUDED.permission_giver,
			updated_at = EXCLUDED.updated_at`,
		roles.Admin.Bytes(), roles.PermissionGiver.Bytes(), roles.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save roles: %w", err)
	}
	return nil
}

type achievementStore struct{ db *sql.DB }

// Append derives the next ID from the table. Callers must hold the mutation
// lock; a racing writer without it trips the primary key instead.
func (s *achievementStore) Append(ctx context.Context, label string, createdAt time.Time) (*models.Achievement, error) {
	var next int64
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO achievements (id, label, created_at)
		SELECT COALESCE(MAX(id) + 1, 0), $1, $2 FROM achievements
		RETURNING id`,
		label, createdAt,
	).Scan(&next)
	if err != nil {
		if pg.IsUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("append achievement: %w", err)
	}
	return &models.Achievement{ID: id.AchievementID(next), Label: label, CreatedAt: createdAt}, nil
}

func (s *achievementStore) FindByID(ctx context.Context, achievementID id.AchievementID) (*models.Achievement, error) {
	a := models.Achievement{ID: achievementID}
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT label, created_at FROM achievements WHERE id = $1`, int64(achievementID),
	).Scan(&a.Label, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find achievement: %w", err)
	}
	return &a, nil
}

func (s *achievementStore) List(ctx context.Context) ([]*models.Achievement, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT id, label, created_at FROM achievements ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	var out []*models.Achievement
	for rows.Next() {
		var rawID int64
		a := &models.Achievement{}
		if err := rows.Scan(&rawID, &a.Label, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		a.ID = id.AchievementID(rawID)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	return out, nil
}

type claimStore struct{ db *sql.DB }

func (s *claimStore) IsClaimed(ctx context.Context, recipient common.Address, achievementID id.AchievementID) (bool, error) {
	var claimed bool
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM achievement_claims WHERE recipient = $1 AND achievement_id = $2)`,
		recipient.Bytes(), int64(achievementID),
	).Scan(&claimed)
	if err != nil {
		return false, fmt.Errorf("check claim: %w", err)
	}
	return claimed, nil
}

func (s *claimStore) MarkClaimed(ctx context.Context, claim *models.Claim) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO achievement_claims (recipient, achievement_id, token_id, claimed_at)
		VALUES ($1, $2, $3, $4)`,
		claim.Recipient.Bytes(), int64(claim.AchievementID), int64(claim.TokenID), claim.ClaimedAt,
	)
	if pg.IsUniqueViolation(err) {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("mark claimed: %w", err)
	}
	return nil
}

type tokenStore struct{ db *sql.DB }

func (s *tokenStore) Mint(ctx context.Context, owner common.Address, achievementID id.AchievementID, mintedAt time.Time) (*models.Token, error) {
	var next int64
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO achievement_tokens (id, owner, achievement_id, minted_at)
		SELECT COALESCE(MAX(id), 0) + 1, $1, $2, $3 FROM achievement_tokens
		RETURNING id`,
		owner.Bytes(), int64(achievementID), mintedAt,
	).Scan(&next)
	if err != nil {
		if pg.IsUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("mint token: %w", err)
	}
	return &models.Token{
		ID:            id.TokenID(next),
		Owner:         owner,
		AchievementID: achievementID,
		MintedAt:      mintedAt,
	}, nil
}

func (s *tokenStore) FindByID(ctx context.Context, tokenID id.TokenID) (*models.Token, error) {
	t := models.Token{ID: tokenID}
	var owner []byte
	var achievementID int64
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT owner, achievement_id, minted_at FROM achievement_tokens WHERE id = $1`, int64(tokenID),
	).Scan(&owner, &achievementID, &t.MintedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	t.Owner = common.BytesToAddress(owner)
	t.AchievementID = id.AchievementID(achievementID)
	return &t, nil
}

func (s *tokenStore) ListByOwner(ctx context.Context, owner common.Address) ([]*models.Token, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT id, achievement_id, minted_at FROM achievement_tokens WHERE owner = $1 ORDER BY id`,
		owner.Bytes(),
	)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var out []*models.Token
	for rows.Next() {
		var tokenID, achievementID int64
		t := &models.Token{Owner: owner}
		if err := rows.Scan(&tokenID, &achievementID, &t.MintedAt); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		t.ID = id.TokenID(tokenID)
		t.AchievementID = id.AchievementID(achievementID)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return out, nil
}
