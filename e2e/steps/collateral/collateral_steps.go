package collateral

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context collateral steps need.
type TestContext interface {
	Do(method, path, actor string, body any) error
	Account(name string) (string, error)
	Instance(name string) (string, error)
	Path(name string) (string, error)
}

// RegisterSteps registers collateral registry actions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &collateralSteps{tc: tc}

	ctx.Step(`^"([^"]*)" mints collateral on "([^"]*)" for "([^"]*)"$`, steps.mint)
	ctx.Step(`^"([^"]*)" (pauses|unpauses) "([^"]*)"$`, steps.setPaused)
	ctx.Step(`^"([^"]*)" links "([^"]*)" to verification registry "([^"]*)"$`, steps.setSBT)
	ctx.Step(`^"([^"]*)" transfers collateral (\d+) on "([^"]*)" from "([^"]*)" to "([^"]*)"$`, steps.transfer)
	ctx.Step(`^"([^"]*)" approves "([^"]*)" for collateral (\d+) on "([^"]*)"$`, steps.approve)
	ctx.Step(`^I look up collateral token (\d+) on "([^"]*)"$`, steps.lookupToken)
	ctx.Step(`^I look up the collateral for verification token (\d+) on "([^"]*)"$`, steps.lookupBySBT)
	ctx.Step(`^I look up account "([^"]*)" on collateral registry "([^"]*)"$`, steps.lookupAccount)
	ctx.Step(`^I check whether "([^"]*)" is paused$`, steps.paused)
}

type collateralSteps struct {
	tc TestContext
}

func (s *collateralSteps) mint(ctx context.Context, caller, registry, account string) error {
	addr, err := s.tc.Account(account)
	if err != nil {
		return err
	}
	return s.send(http.MethodPost, registry, "/mint", caller, map[string]string{"account": addr})
}

func (s *collateralSteps) setPaused(ctx context.Context, caller, action, registry string) error {
	suffix := "/pause"
	if action == "unpauses" {
		suffix = "/unpause"
	}
	return s.send(http.MethodPost, registry, suffix, caller, nil)
}

func (s *collateralSteps) setSBT(ctx context.Context, caller, registry, sbtName string) error {
	sbt, err := s.tc.Instance(sbtName)
	if err != nil {
		return err
	}
	return s.send(http.MethodPut, registry, "/sbt", caller, map[string]string{"sbt": sbt})
}

func (s *collateralSteps) transfer(ctx context.Context, caller string, id int, registry, from, to string) error {
	fromAddr, err := s.tc.Account(from)
	if err != nil {
		return err
	}
	toAddr, err := s.tc.Account(to)
	if err != nil {
		return err
	}
	return s.send(http.MethodPost, registry, "/transfer", caller, map[string]any{"from": fromAddr, "to": toAddr, "collateral_id": id})
}

func (s *collateralSteps) approve(ctx context.Context, caller, approved string, id int, registry string) error {
	addr, err := s.tc.Account(approved)
	if err != nil {
		return err
	}
	return s.send(http.MethodPost, registry, "/approve", caller, map[string]any{"approved": addr, "collateral_id": id})
}

func (s *collateralSteps) lookupToken(ctx context.Context, id int, registry string) error {
	return s.send(http.MethodGet, registry, "/tokens/"+strconv.Itoa(id), "", nil)
}

func (s *collateralSteps) lookupBySBT(ctx context.Context, id int, registry string) error {
	return s.send(http.MethodGet, registry, "/by-sbt/"+strconv.Itoa(id), "", nil)
}

func (s *collateralSteps) lookupAccount(ctx context.Context, account, registry string) error {
	addr, err := s.tc.Account(account)
	if err != nil {
		return err
	}
	return s.send(http.MethodGet, registry, "/accounts/"+addr, "", nil)
}

func (s *collateralSteps) paused(ctx context.Context, registry string) error {
	return s.send(http.MethodGet, registry, "/paused", "", nil)
}

func (s *collateralSteps) send(method, registry, suffix, actor string, body any) error {
	prefix, err := s.tc.Path(registry)
	if err != nil {
		return err
	}
	return s.tc.Do(method, prefix+suffix, actor, body)
}
