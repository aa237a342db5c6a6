package common

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context common steps need.
type TestContext interface {
	Do(method, path, actor string, body any) error
	Account(name string) (string, error)
	NewInstance(name, kind string) (string, error)
	Instance(name string) (string, error)
	Path(name string) (string, error)
	ResponseField(field string) (any, error)
	Status() int
}

// Registry route prefixes.
const (
	kindVerification = "/v1/sbt/"
	kindCollateral   = "/v1/collateral/"
)

// RegisterSteps registers registry setup, role and assertion steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^a verification registry "([^"]*)" administered by "([^"]*)"$`, steps.verificationRegistry)
	ctx.Step(`^a collateral registry "([^"]*)" administered by "([^"]*)" linked to "([^"]*)"$`, steps.collateralRegistry)
	ctx.Step(`^"([^"]*)" grants the (\w+) role to "([^"]*)" on "([^"]*)"$`, steps.grantRole)
	ctx.Step(`^"([^"]*)" renounces the (\w+) role on "([^"]*)"$`, steps.renounceRole)
	ctx.Step(`^"([^"]*)" (should|should not) have the (\w+) role on "([^"]*)"$`, steps.hasRole)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the error reason should be "([^"]*)"$`, steps.reasonShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.fieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be the account of "([^"]*)"$`, steps.fieldShouldBeAccount)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) verificationRegistry(ctx context.Context, name, admin string) error {
	account, err := s.tc.Account(admin)
	if err != nil {
		return err
	}
	if _, err := s.tc.NewInstance(name, kindVerification); err != nil {
		return err
	}
	return s.expect(http.StatusCreated, http.MethodPost, name, "/initialize", admin, map[string]string{"admin": account})
}

func (s *commonSteps) collateralRegistry(ctx context.Context, name, admin, sbtName string) error {
	account, err := s.tc.Account(admin)
	if err != nil {
		return err
	}
	sbt, err := s.tc.Instance(sbtName)
	if err != nil {
		return err
	}
	if _, err := s.tc.NewInstance(name, kindCollateral); err != nil {
		return err
	}
	return s.expect(http.StatusCreated, http.MethodPost, name, "/initialize", admin, map[string]string{"admin": account, "sbt": sbt})
}

func (s *commonSteps) grantRole(ctx context.Context, caller, role, grantee, registry string) error {
	account, err := s.tc.Account(grantee)
	if err != nil {
		return err
	}
	return s.expect(http.StatusNoContent, http.MethodPost, registry, "/roles/"+role+"/grant", caller, map[string]string{"account": account})
}

func (s *commonSteps) renounceRole(ctx context.Context, caller, role, registry string) error {
	account, err := s.tc.Account(caller)
	if err != nil {
		return err
	}
	return s.expect(http.StatusNoContent, http.MethodPost, registry, "/roles/"+role+"/renounce", caller, map[string]string{"account": account})
}

func (s *commonSteps) hasRole(ctx context.Context, actor, should, role, registry string) error {
	account, err := s.tc.Account(actor)
	if err != nil {
		return err
	}
	if err := s.expect(http.StatusOK, http.MethodGet, registry, "/roles/"+role+"/"+account, "", nil); err != nil {
		return err
	}
	got, err := s.tc.ResponseField("has_role")
	if err != nil {
		return err
	}
	want := should == "should"
	if got != want {
		return fmt.Errorf("has_role = %v, want %v", got, want)
	}
	return nil
}

func (s *commonSteps) statusShouldBe(ctx context.Context, status int) error {
	if s.tc.Status() != status {
		return fmt.Errorf("expected status %d, got %d", status, s.tc.Status())
	}
	return nil
}

func (s *commonSteps) reasonShouldBe(ctx context.Context, reason string) error {
	return s.fieldShouldBe(ctx, "reason", reason)
}

func (s *commonSteps) fieldShouldBe(ctx context.Context, field, want string) error {
	got, err := s.tc.ResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("field %q = %v, want %s", field, got, want)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeAccount(ctx context.Context, field, actor string) error {
	want, err := s.tc.Account(actor)
	if err != nil {
		return err
	}
	got, err := s.tc.ResponseField(field)
	if err != nil {
		return err
	}
	if !strings.EqualFold(fmt.Sprint(got), want) {
		return fmt.Errorf("field %q = %v, want %s (%s)", field, got, actor, want)
	}
	return nil
}

func (s *commonSteps) expect(status int, method, registry, suffix, actor string, body any) error {
	prefix, err := s.tc.Path(registry)
	if err != nil {
		return err
	}
	if err := s.tc.Do(method, prefix+suffix, actor, body); err != nil {
		return err
	}
	if s.tc.Status() != status {
		return fmt.Errorf("%s %s: expected status %d, got %d", method, suffix, status, s.tc.Status())
	}
	return nil
}
