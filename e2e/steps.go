package e2e

import (
	"github.com/cucumber/godog"

	"zahori/e2e/steps/cases"
	"zahori/e2e/steps/expansion"
	"zahori/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	tc.registerCommon(ctx)
	cases.RegisterSteps(ctx, tc)
	expansion.RegisterSteps(ctx, tc)
	ratelimit.RegisterSteps(ctx, tc)
}
