package models

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"accolade/internal/signature"
	id "accolade/pkg/domain"
	dErrors "accolade/pkg/domain-errors"
)

// UnlockAchievementRequest accepts either the split (v, r, s) form or a
// 65-byte hex signature as produced by wallet signMessage.
type UnlockAchievementRequest struct {
	Digest    string `json:"digest"`
	V         *uint8 `json:"v,omitempty"`
	R         string `json:"r,omitempty"`
	S         string `json:"s,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Normalize trims whitespace from hex fields.
func (r *UnlockAchievementRequest) Normalize() {
	if r == nil {
		return
	}
	r.Digest = strings.TrimSpace(r.Digest)
	r.R = strings.TrimSpace(r.R)
	r.S = strings.TrimSpace(r.S)
	r.Signature = strings.TrimSpace(r.Signature)
}

// Validate checks the request shape. Cryptographic validity is the verifier's job.
func (r *UnlockAchievementRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Digest == "" {
		return dErrors.New(dErrors.CodeValidation, "digest is required")
	}
	split := r.V != nil || r.R != "" || r.S != ""
	if split && r.Signature != "" {
		return dErrors.New(dErrors.CodeValidation, "provide either v, r, s or signature, not both")
	}
	if !split && r.Signature == "" {
		return dErrors.New(dErrors.CodeValidation, "signature is required")
	}
	if split && (r.V == nil || r.R == "" || r.S == "") {
		return dErrors.New(dErrors.CodeValidation, "v, r and s are all required")
	}
	return nil
}

// ToUnlockRequest converts the transport form into the service command.
func (r *UnlockAchievementRequest) ToUnlockRequest(achievementID id.AchievementID) (*UnlockRequest, error) {
	digest, err := parseHash(r.Digest, "digest")
	if err != nil {
		return nil, err
	}
	out := &UnlockRequest{AchievementID: achievementID, Digest: digest}
	if r.Signature != "" {
		sig, err := signature.Parse(r.Signature)
		if err != nil {
			return nil, err
		}
		out.V, out.R, out.S = sig.V, sig.R, sig.S
		return out, nil
	}
	// Malformed r or s is a bad signature, the same as a malformed 65-byte form.
	if out.R, err = parseHash(r.R, "r"); err != nil {
		return nil, signature.ErrInvalidSignature
	}
	if out.S, err = parseHash(r.S, "s"); err != nil {
		return nil, signature.ErrInvalidSignature
	}
	out.V = *r.V
	return out, nil
}

func parseHash(s, field string) (common.Hash, error) {
	raw, err := hexutil.Decode(s)
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, dErrors.New(dErrors.CodeValidation, field+" must be 32 bytes of 0x-prefixed hex")
	}
	return common.BytesToHash(raw), nil
}

// AddressRequest is the body of role change requests.
type AddressRequest struct {
	Address string `json:"address"`
}

// AddAchievementRequest is the body of POST /admin/achievements.
type AddAchievementRequest struct {
	Label string `json:"label"`
}
