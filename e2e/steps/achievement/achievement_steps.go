package achievement

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"accolade/e2e/steps/wallet"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	GetResponseField(field string) (any, error)
	Account(name string) (*wallet.Account, error)
}

// RegisterSteps registers achievement step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &achievementSteps{tc: tc}

	ctx.Step(`^I add an achievement labelled "([^"]*)"$`, steps.addAchievement)
	ctx.Step(`^I unlock the last added achievement with an attestation for "([^"]*)" labelled "([^"]*)"$`, steps.unlockLastAdded)
	ctx.Step(`^I look up the achievement of the minted token$`, steps.lookupMinted)
}

type achievementSteps struct {
	tc           TestContext
	lastAdded    string
	lastMintedID string
}

func (s *achievementSteps) addAchievement(ctx context.Context, label string) error {
	if err := s.tc.POST("/admin/achievements", map[string]any{"label": label}); err != nil {
		return err
	}
	if v, err := s.tc.GetResponseField("id"); err == nil {
		s.lastAdded = fmt.Sprint(v)
	}
	return nil
}

func (s *achievementSteps) unlockLastAdded(ctx context.Context, recipientName, label string) error {
	if s.lastAdded == "" {
		return fmt.Errorf("no achievement was added in this scenario")
	}
	recipient, err := s.tc.Account(recipientName)
	if err != nil {
		return err
	}
	giver, err := s.tc.Account("permission giver")
	if err != nil {
		return err
	}
	digest, sig, err := giver.Attest(label, recipient.Address)
	if err != nil {
		return err
	}
	if err := s.tc.POST("/achievements/"+s.lastAdded+"/unlock", map[string]any{
		"digest":    digest,
		"signature": sig,
	}); err != nil {
		return err
	}
	if v, err := s.tc.GetResponseField("token_id"); err == nil {
		s.lastMintedID = fmt.Sprint(v)
	}
	return nil
}

func (s *achievementSteps) lookupMinted(ctx context.Context) error {
	if s.lastMintedID == "" {
		return fmt.Errorf("no token was minted in this scenario")
	}
	return s.tc.GET("/tokens/" + s.lastMintedID + "/achievement")
}
