package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	id "accolade/pkg/domain"
	dErrors "accolade/pkg/domain-errors"
)

// MaxLabelLength bounds the size of an achievement label in bytes.
const MaxLabelLength = 1024

// Achievement is a registry entry. IDs are dense and zero-indexed: the n-th
// achievement ever added has ID n-1.
type Achievement struct {
	ID        id.AchievementID
	Label     string
	CreatedAt time.Time
}

// NewLabel validates a label. Labels are opaque: they are hashed as given,
// so no trimming or case folding happens here.
func NewLabel(label string) (string, error) {
	if label == "" {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "label cannot be empty")
	}
	if len(label) > MaxLabelLength {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "label exceeds maximum length")
	}
	if !utf8.ValidString(label) {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "label must be valid UTF-8")
	}
	if strings.ContainsRune(label, 0) {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "label cannot contain NUL")
	}
	return label, nil
}

// Roles is the singleton role assignment. Exactly one admin and one
// permission-giver exist at any time.
type Roles struct {
	Admin           common.Address
	PermissionGiver common.Address
	UpdatedAt       time.Time
}

// IsAdmin reports whether addr currently holds the admin role.
func (r *Roles) IsAdmin(addr common.Address) bool {
	return r != nil && r.Admin == addr
}

// Token is a minted, non-transferable achievement token.
type Token struct {
	ID            id.TokenID
	Owner         common.Address
	AchievementID id.AchievementID
	MintedAt      time.Time
}

// Claim records that Recipient has redeemed AchievementID. At most one claim
// exists per (Recipient, AchievementID).
type Claim struct {
	Recipient     common.Address
	AchievementID id.AchievementID
	TokenID       id.TokenID
	ClaimedAt     time.Time
}

// UnlockRequest is an attestation presented by the caller.
type UnlockRequest struct {
	AchievementID id.AchievementID
	Digest        common.Hash
	V             uint8
	R             common.Hash
	S             common.Hash
}

// UnlockedAchievement joins a token with the label it resolves to.
type UnlockedAchievement struct {
	Token *Token
	Label string
}
