package auth

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"accolade/e2e/steps/wallet"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	StatusCode() int
	GetResponseField(field string) (any, error)
	Account(name string) (*wallet.Account, error)
	SetAccessToken(token string)
}

// RegisterSteps registers wallet sign-in step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^I am signed in as "([^"]*)"$`, steps.signInAs)
	ctx.Step(`^"([^"]*)" signs the challenge issued to "([^"]*)"$`, steps.signForAnother)
	ctx.Step(`^I am not signed in$`, steps.signOut)
}

type authSteps struct {
	tc TestContext
}

func (s *authSteps) challenge(address string) (string, string, error) {
	if err := s.tc.POST("/auth/challenge", map[string]any{"address": address}); err != nil {
		return "", "", err
	}
	if s.tc.StatusCode() != 201 {
		return "", "", fmt.Errorf("challenge request failed with status %d", s.tc.StatusCode())
	}
	nonce, err := s.tc.GetResponseField("nonce")
	if err != nil {
		return "", "", err
	}
	message, err := s.tc.GetResponseField("message")
	if err != nil {
		return "", "", err
	}
	return nonce.(string), message.(string), nil
}

func (s *authSteps) redeem(signer *wallet.Account, address, nonce, message string) error {
	sig, err := signer.SignMessage([]byte(message))
	if err != nil {
		return err
	}
	return s.tc.POST("/auth/token", map[string]any{
		"address":   address,
		"nonce":     nonce,
		"signature": sig,
	})
}

func (s *authSteps) signInAs(ctx context.Context, name string) error {
	account, err := s.tc.Account(name)
	if err != nil {
		return err
	}
	address := account.Address.Hex()
	nonce, message, err := s.challenge(address)
	if err != nil {
		return err
	}
	if err := s.redeem(account, address, nonce, message); err != nil {
		return err
	}
	token, err := s.tc.GetResponseField("access_token")
	if err != nil {
		return err
	}
	s.tc.SetAccessToken(token.(string))
	return nil
}

func (s *authSteps) signForAnother(ctx context.Context, signerName, ownerName string) error {
	signer, err := s.tc.Account(signerName)
	if err != nil {
		return err
	}
	owner, err := s.tc.Account(ownerName)
	if err != nil {
		return err
	}
	address := owner.Address.Hex()
	nonce, message, err := s.challenge(address)
	if err != nil {
		return err
	}
	return s.redeem(signer, address, nonce, message)
}

func (s *authSteps) signOut(ctx context.Context) error {
	s.tc.SetAccessToken("")
	return nil
}
