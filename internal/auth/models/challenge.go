package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	dErrors "accolade/pkg/domain-errors"
)

// Challenge is a single-use sign-in nonce bound to one address.
type Challenge struct {
	Nonce     string         `json:"nonce"`
	Address   common.Address `json:"address"`
	Message   string         `json:"message"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// IsExpired reports whether the challenge can no longer be redeemed at now.
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// BuildMessage renders the text the wallet signs with the personal-message
// convention. The nonce and address are both covered by the signature.
func BuildMessage(domain string, address common.Address, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf("%s wants you to sign in with your account:\n%s\n\nNonce: %s\nIssued At: %s",
		domain, address.Hex(), nonce, issuedAt.UTC().Format(time.RFC3339))
}

// ChallengeRequest is the body of POST /auth/challenge.
type ChallengeRequest struct {
	Address string `json:"address"`
}

func (r *ChallengeRequest) Normalize() {
	r.Address = strings.TrimSpace(r.Address)
}

func (r *ChallengeRequest) Validate() error {
	if r.Address == "" {
		return dErrors.New(dErrors.CodeValidation, "address is required")
	}
	return nil
}

// TokenRequest is the body of POST /auth/token.
type TokenRequest struct {
	Address   string `json:"address"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

func (r *TokenRequest) Normalize() {
	r.Address = strings.TrimSpace(r.Address)
	r.Nonce = strings.TrimSpace(r.Nonce)
	r.Signature = strings.TrimSpace(r.Signature)
}

func (r *TokenRequest) Validate() error {
	switch {
	case r.Address == "":
		return dErrors.New(dErrors.CodeValidation, "address is required")
	case r.Nonce == "":
		return dErrors.New(dErrors.CodeValidation, "nonce is required")
	case r.Signature == "":
		return dErrors.New(dErrors.CodeValidation, "signature is required")
	}
	return nil
}

type ChallengeResponse struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenResult is an issued access token.
type TokenResult struct {
	AccessToken string
	TokenID     string
	ExpiresIn   time.Duration
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
