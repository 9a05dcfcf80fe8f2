// Package memory keeps achievement state in process. All state lives in one
// immutable snapshot; a transaction edits a private copy and publishes it
// with a single pointer swap, so readers never observe partial writes.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"accolade/internal/achievement/models"
	"accolade/internal/achievement/ports"
	id "accolade/pkg/domain"
	"accolade/pkg/platform/sentinel"
)

type claimKey struct {
	recipient     common.Address
	achievementID id.AchievementID
}

// state is the whole system state. A committed state is never mutated.
type state struct {
	roles        *models.Roles
	achievements []models.Achievement
	// tokens[i] has TokenID i+1.
	tokens []models.Token
	claims map[claimKey]models.Claim
	owners map[common.Address][]id.TokenID
}

func (s *state) clone() *state {
	next := &state{
		achievements: slices.Clip(s.achievements),
		tokens:       slices.Clip(s.tokens),
		claims:       maps.Clone(s.claims),
		owners:       maps.Clone(s.owners),
	}
	if s.roles != nil {
		roles := *s.roles
		next.roles = &roles
	}
	return next
}

// InMemory is the in-process backend. It implements ports.StoreTx and hands
// out committed-state stores through Stores.
type InMemory struct {
	mu      sync.Mutex
	current atomic.Pointer[state]
}

func NewInMemory() *InMemory {
	b := &InMemory{}
	b.current.Store(&state{
		claims: make(map[claimKey]models.Claim),
		owners: make(map[common.Address][]id.TokenID),
	})
	return b
}

// Stores returns stores that read the last committed snapshot. Writes made
// through them each run in their own transaction.
func (b *InMemory) Stores() ports.Stores {
	return storesFor(committed{b})
}

// RunInTx serializes fn with every other transaction. fn edits a private
// copy of the state, which is published only when fn returns nil.
func (b *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context, stores ports.Stores) error) error {
	return b.update(ctx, func(st *state) error {
		return fn(ctx, storesFor(&draft{st: st}))
	})
}

func (b *InMemory) update(ctx context.Context, apply func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.current.Load().clone()
	if err := apply(next); err != nil {
		return err
	}
	b.current.Store(next)
	return nil
}

// source abstracts over committed state and an open transaction.
type source interface {
	read() *state
	write(ctx context.Context, apply func(*state) error) error
}

type committed struct{ b *InMemory }

func (c committed) read() *state { return c.b.current.Load() }

func (c committed) write(ctx context.Context, apply func(*state) error) error {
	return c.b.update(ctx, apply)
}

type draft struct{ st *state }

func (d *draft) read() *state { return d.st }

func (d *draft) write(_ context.Context, apply func(*state) error) error {
	return apply(d.st)
}

func storesFor(src source) ports.Stores {
	return ports.Stores{
		Roles:        roleStore{src},
		Achievements: achievementStore{src},
		Claims:       claimStore{src},
		Tokens:       tokenStore{src},
	}
}

type roleStore struct{ src source }

func (s roleStore) Get(_ context.Context) (*models.Roles, error) {
	roles := s.src.read().roles
	if roles == nil {
		return nil, sentinel.ErrNotFound
	}
	out := *roles
	return &out, nil
}

func (s roleStore) Save(ctx context.Context, roles *models.Roles) error {
	return s.src.write(ctx, func(st *state) error {
		saved := *roles
		st.roles = &saved
		return nil
	})
}

type achievementStore struct{ src source }

func (s achievementStore) Append(ctx context.Context, label string, createdAt time.Time) (*models.Achievement, error) {
	var added models.Achievement
	err := s.src.write(ctx, func(st *state) error {
		added = models.Achievement{
			ID:        id.AchievementID(len(st.achievements)),
			Label:     label,
			CreatedAt: createdAt,
		}
		st.achievements = append(st.achievements, added)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

func (s achievementStore) FindByID(_ context.Context, achievementID id.AchievementID) (*models.Achievement, error) {
	achievements := s.src.read().achievements
	if uint64(achievementID) >= uint64(len(achievements)) {
		return nil, sentinel.ErrNotFound
	}
	out := achievements[achievementID]
	return &out, nil
}

func (s achievementStore) List(_ context.Context) ([]*models.Achievement, error) {
	achievements := s.src.read().achievements
	out := make([]*models.Achievement, len(achievements))
	for i := range achievements {
		a := achievements[i]
		out[i] = &a
	}
	return out, nil
}

type claimStore struct{ src source }

func (s claimStore) IsClaimed(_ context.Context, recipient common.Address, achievementID id.AchievementID) (bool, error) {
	_, ok := s.src.read().claims[claimKey{recipient, achievementID}]
	return ok, nil
}

func (s claimStore) MarkClaimed(ctx context.Context, claim *models.Claim) error {
	return s.src.write(ctx, func(st *state) error {
		key := claimKey{claim.Recipient, claim.AchievementID}
		if _, ok := st.claims[key]; ok {
			return sentinel.ErrAlreadyUsed
		}
		st.claims[key] = *claim
		return nil
	})
}

type tokenStore struct{ src source }

func (s tokenStore) Mint(ctx context.Context, owner common.Address, achievementID id.AchievementID, mintedAt time.Time) (*models.Token, error) {
	var minted models.Token
	err := s.src.write(ctx, func(st *state) error {
		minted = models.Token{
			ID:            id.TokenID(len(st.tokens) + 1),
			Owner:         owner,
			AchievementID: achievementID,
			MintedAt:      mintedAt,
		}
		st.tokens = append(st.tokens, minted)
		st.owners[owner] = append(slices.Clip(st.owners[owner]), minted.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &minted, nil
}

func (s tokenStore) FindByID(_ context.Context, tokenID id.TokenID) (*models.Token, error) {
	tokens := s.src.read().tokens
	if tokenID == 0 || uint64(tokenID) > uint64(len(tokens)) {
		return nil, sentinel.ErrNotFound
	}
	out := tokens[tokenID-1]
	return &out, nil
}

func (s tokenStore) ListByOwner(_ context.Context, owner common.Address) ([]*models.Token, error) {
	st := s.src.read()
	ids := st.owners[owner]
	out := make([]*models.Token, 0, len(ids))
	for _, tokenID := range ids {
		t := st.tokens[tokenID-1]
		out = append(out, &t)
	}
	return out, nil
}
