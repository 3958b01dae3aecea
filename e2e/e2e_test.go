package e2e

import (
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs the feature files against the server at ZAHORI_E2E_URL.
func TestFeatures(t *testing.T) {
	baseURL := os.Getenv("ZAHORI_E2E_URL")
	if baseURL == "" {
		t.Skip("ZAHORI_E2E_URL not set")
	}
	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			RegisterSteps(ctx, NewTestContext(baseURL))
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Tags:     os.Getenv("ZAHORI_E2E_TAGS"),
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature run failed")
	}
}
