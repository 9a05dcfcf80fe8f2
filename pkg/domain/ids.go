package domain

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	dErrors "accolade/pkg/domain-errors"
)

// AchievementID is the zero-indexed position of a label in the registry.
type AchievementID uint64

// TokenID identifies a minted achievement token. Ids start at 1.
type TokenID uint64

func (id AchievementID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func (id TokenID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseAchievementID parses a decimal achievement id from a trust boundary.
func ParseAchievementID(s string) (AchievementID, error) {
	v, err := parseUint(s, "achievement id")
	if err != nil {
		return 0, err
	}
	return AchievementID(v), nil
}

// ParseTokenID parses a decimal token id. Zero parses; no token carries it,
// so lookups report it as unknown.
func ParseTokenID(s string) (TokenID, error) {
	v, err := parseUint(s, "token id")
	if err != nil {
		return 0, err
	}
	return TokenID(v), nil
}

func parseUint(s, what string) (uint64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, what+" is required")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	return v, nil
}

// ParseAddress parses a hex account address with an optional 0x prefix.
// The zero address parses; whether it is acceptable is a caller decision.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, dErrors.New(dErrors.CodeInvalidInput, "invalid address")
	}
	return common.HexToAddress(s), nil
}

// IsZeroAddress reports whether a is the all-zero address.
func IsZeroAddress(a common.Address) bool {
	return a == (common.Address{})
}
