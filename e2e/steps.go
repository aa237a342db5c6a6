package e2e

import (
	"github.com/cucumber/godog"

	"magbot/e2e/steps/collateral"
	"magbot/e2e/steps/common"
	"magbot/e2e/steps/verification"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Registry setup, roles and response assertions
	common.RegisterSteps(ctx, tc)

	verification.RegisterSteps(ctx, tc)
	collateral.RegisterSteps(ctx, tc)
}
