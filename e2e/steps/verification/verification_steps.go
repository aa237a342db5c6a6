package verification

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context verification steps need.
type TestContext interface {
	Do(method, path, actor string, body any) error
	Account(name string) (string, error)
	Path(name string) (string, error)
}

// RegisterSteps registers verification registry actions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &verificationSteps{tc: tc}

	ctx.Step(`^"([^"]*)" mints a verification token on "([^"]*)" for "([^"]*)" with data "([^"]*)"$`, steps.mint)
	ctx.Step(`^"([^"]*)" sets the base URI of "([^"]*)" to "([^"]*)"$`, steps.setBaseURI)
	ctx.Step(`^"([^"]*)" transfers verification token (\d+) on "([^"]*)" from "([^"]*)" to "([^"]*)"$`, steps.transfer)
	ctx.Step(`^I look up verification token (\d+) on "([^"]*)"$`, steps.lookupToken)
	ctx.Step(`^I look up account "([^"]*)" on verification registry "([^"]*)"$`, steps.lookupAccount)
	ctx.Step(`^I look up verification data "([^"]*)" on "([^"]*)"$`, steps.lookupData)
}

type verificationSteps struct {
	tc TestContext
}

func (s *verificationSteps) mint(ctx context.Context, caller, registry, account, data string) error {
	addr, err := s.tc.Account(account)
	if err != nil {
		return err
	}
	return s.send(http.MethodPost, registry, "/mint", caller, map[string]string{"account": addr, "data": data})
}

func (s *verificationSteps) setBaseURI(ctx context.Context, caller, registry, uri string) error {
	return s.send(http.MethodPut, registry, "/base-uri", caller, map[string]string{"uri": uri})
}

func (s *verificationSteps) transfer(ctx context.Context, caller string, id int, registry, from, to string) error {
	fromAddr, err := s.tc.Account(from)
	if err != nil {
		return err
	}
	toAddr, err := s.tc.Account(to)
	if err != nil {
		return err
	}
	return s.send(http.MethodPost, registry, "/transfer", caller, map[string]any{"from": fromAddr, "to": toAddr, "token_id": id})
}

func (s *verificationSteps) lookupToken(ctx context.Context, id int, registry string) error {
	return s.send(http.MethodGet, registry, "/tokens/"+strconv.Itoa(id), "", nil)
}

func (s *verificationSteps) lookupAccount(ctx context.Context, account, registry string) error {
	addr, err := s.tc.Account(account)
	if err != nil {
		return err
	}
	return s.send(http.MethodGet, registry, "/accounts/"+addr, "", nil)
}

func (s *verificationSteps) lookupData(ctx context.Context, data, registry string) error {
	return s.send(http.MethodGet, registry, "/verifications?data="+data, "", nil)
}

func (s *verificationSteps) send(method, registry, suffix, actor string, body any) error {
	prefix, err := s.tc.Path(registry)
	if err != nil {
		return err
	}
	return s.tc.Do(method, prefix+suffix, actor, body)
}
