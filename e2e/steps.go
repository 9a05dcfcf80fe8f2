package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"accolade/e2e/steps/achievement"
	"accolade/e2e/steps/auth"
	"accolade/e2e/steps/wallet"
)

// TestContext carries state between steps of one scenario. It talks to a
// running server at BASE_URL.
type TestContext struct {
	baseURL     string
	client      *http.Client
	status      int
	body        []byte
	accounts    map[string]*wallet.Account
	accessToken string
}

func NewTestContext() *TestContext {
	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &TestContext{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
		accounts: map[string]*wallet.Account{},
	}
}

func (tc *TestContext) reset() {
	tc.status = 0
	tc.body = nil
	tc.accessToken = ""
	tc.accounts = map[string]*wallet.Account{}
}

func (tc *TestContext) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+tc.accessToken)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.status = resp.StatusCode
	tc.body, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body)
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) StatusCode() int {
	return tc.status
}

func (tc *TestContext) GetResponseField(field string) (any, error) {
	var payload map[string]any
	if err := json.Unmarshal(tc.body, &payload); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := payload[field]
	if !ok {
		return nil, fmt.Errorf("response has no field %q: %s", field, tc.body)
	}
	return v, nil
}

func (tc *TestContext) Account(name string) (*wallet.Account, error) {
	if a, ok := tc.accounts[name]; ok {
		return a, nil
	}
	a, err := wallet.Load(name)
	if err != nil {
		return nil, err
	}
	tc.accounts[name] = a
	return a, nil
}

func (tc *TestContext) SetAccessToken(token string) {
	tc.accessToken = token
}

// RegisterSteps registers all step definitions from modular packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	ctx.Step(`^the response status should be (\d+)$`, func(expected int) error {
		if tc.status != expected {
			return fmt.Errorf("expected status %d, got %d: %s", expected, tc.status, tc.body)
		}
		return nil
	})
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, func(field, expected string) error {
		v, err := tc.GetResponseField(field)
		if err != nil {
			return err
		}
		if got := fmt.Sprint(v); got != expected {
			return fmt.Errorf("expected %s=%q, got %q", field, expected, got)
		}
		return nil
	})

	auth.RegisterSteps(ctx, tc)
	achievement.RegisterSteps(ctx, tc)
}
