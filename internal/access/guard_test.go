package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"magbot/pkg/domain"
	dErrors "magbot/pkg/domain-errors"
)

type stagedStore struct {
	members *StagedMembers
}

func (s *stagedStore) HasRole(_ context.Context, _ domain.Account, role Role, account domain.Account) (bool, error) {
	return s.members.Has(role, account), nil
}

func (s *stagedStore) AddRoleMember(_ context.Context, _ domain.Account, role Role, account domain.Account) error {
	s.members.Add(role, account)
	return nil
}

func (s *stagedStore) RemoveRoleMember(_ context.Context, _ domain.Account, role Role, account domain.Account) error {
	s.members.Remove(role, account)
	return nil
}

type GuardSuite struct {
	suite.Suite
	ctx      context.Context
	guard    *Guard
	store    *stagedStore
	instance domain.Account
	admin    domain.Account
	backend  domain.Account
	stranger domain.Account
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	s.ctx = context.Background()
	s.guard = NewGuard(NewTable(BackendRole, PauserRole))
	s.store = &stagedStore{members: Members{}.Stage()}
	s.instance = domain.MustParseAccount("0x00000000000000000000000000000000000000aa")
	s.admin = domain.MustParseAccount("0x0000000000000000000000000000000000000001")
	s.backend = domain.MustParseAccount("0x0000000000000000000000000000000000000002")
	s.stranger = domain.MustParseAccount("0x0000000000000000000000000000000000000003")

	granted, err := s.guard.Bootstrap(s.ctx, s.store, s.instance, DefaultAdminRole, s.admin)
	s.Require().NoError(err)
	s.Require().True(granted)
}

func (s *GuardSuite) TestRequireRole() {
	s.Run("member passes", func() {
		s.NoError(s.guard.RequireRole(s.ctx, s.store, s.instance, DefaultAdminRole, s.admin))
	})

	s.Run("non-member fails with account and role", func() {
		err := s.guard.RequireRole(s.ctx, s.store, s.instance, BackendRole, s.stranger)
		s.Require().Error(err)
		s.True(errors.Is(err, ErrUnauthorized))
		var unauthorized *UnauthorizedError
		s.Require().True(errors.As(err, &unauthorized))
		s.Equal(s.stranger, unauthorized.Account)
		s.Equal(BackendRole, unauthorized.Role)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *GuardSuite) TestGrant() {
	s.Run("admin grants backend", func() {
		changed, err := s.guard.Grant(s.ctx, s.store, s.instance, s.admin, BackendRole, s.backend)
		s.Require().NoError(err)
		s.True(changed)
		s.True(s.store.members.Has(BackendRole, s.backend))
	})

	s.Run("granting an existing member is a no-op", func() {
		changed, err := s.guard.Grant(s.ctx, s.store, s.instance, s.admin, BackendRole, s.backend)
		s.Require().NoError(err)
		s.False(changed)
	})

	s.Run("non-admin cannot grant", func() {
		_, err := s.guard.Grant(s.ctx, s.store, s.instance, s.backend, BackendRole, s.stranger)
		var unauthorized *UnauthorizedError
		s.Require().True(errors.As(err, &unauthorized))
		s.Equal(DefaultAdminRole, unauthorized.Role)
		s.False(s.store.members.Has(BackendRole, s.stranger))
	})
}

func (s *GuardSuite) TestRevokeAndRenounce() {
	_, err := s.guard.Grant(s.ctx, s.store, s.instance, s.admin, BackendRole, s.backend)
	s.Require().NoError(err)

	s.Run("revoking a non-member is a no-op", func() {
		changed, err := s.guard.Revoke(s.ctx, s.store, s.instance, s.admin, BackendRole, s.stranger)
		s.Require().NoError(err)
		s.False(changed)
	})

	s.Run("renounce requires confirmation of the caller", func() {
		_, err := s.guard.Renounce(s.ctx, s.store, s.instance, s.backend, BackendRole, s.admin)
		s.ErrorIs(err, ErrBadConfirmation)
		s.True(s.store.members.Has(BackendRole, s.backend))
	})

	s.Run("renounce drops own membership", func() {
		changed, err := s.guard.Renounce(s.ctx, s.store, s.instance, s.backend, BackendRole, s.backend)
		s.Require().NoError(err)
		s.True(changed)
		s.False(s.store.members.Has(BackendRole, s.backend))
	})

	s.Run("admin revokes", func() {
		_, err := s.guard.Grant(s.ctx, s.store, s.instance, s.admin, PauserRole, s.stranger)
		s.Require().NoError(err)
		changed, err := s.guard.Revoke(s.ctx, s.store, s.instance, s.admin, PauserRole, s.stranger)
		s.Require().NoError(err)
		s.True(changed)
	})
}

func (s *GuardSuite) TestStagedMembersCommit() {
	base := Members{}
	staged := base.Stage()
	staged.Add(BackendRole, s.backend)
	s.True(staged.IsStaged())
	s.False(base.Has(BackendRole, s.backend), "staged grant must not leak before commit")

	staged.Commit()
	s.True(base.Has(BackendRole, s.backend))

	next := base.Stage()
	next.Remove(BackendRole, s.backend)
	s.False(next.Has(BackendRole, s.backend))
	s.True(base.Has(BackendRole, s.backend))
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"BACKEND_ROLE":         BackendRole,
		"backend":              BackendRole,
		"pauser":               PauserRole,
		"DEFAULT_ADMIN_ROLE":   DefaultAdminRole,
		"default_admin":        DefaultAdminRole,
		DefaultAdminRole.Hex(): DefaultAdminRole,
	}
	for in, want := range cases {
		got, err := ParseRole(in)
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseRole(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseRole("minter"); err == nil {
		t.Fatal("expected unknown role to fail")
	}
	if _, err := ParseRole("0x1234"); err == nil {
		t.Fatal("expected short identifier to fail")
	}
}

func TestRoleIdentifiers(t *testing.T) {
	// keccak256("BACKEND_ROLE") and keccak256("PAUSER_ROLE")
	if BackendRole.Hex() != "0x25cf2b509f2a7f322675b2a5322b182f44ad2c03ac941a0af17c9b178f5d5d5f" {
		t.Fatalf("unexpected backend role id %s", BackendRole.Hex())
	}
	if PauserRole.Hex() != "0x65d7a28e3265b37a6474929f336521b332c1681b933f6cb9f3376673440d862a" {
		t.Fatalf("unexpected pauser role id %s", PauserRole.Hex())
	}
	if DefaultAdminRole.String() != "DEFAULT_ADMIN_ROLE" {
		t.Fatalf("unexpected admin name %s", DefaultAdminRole.String())
	}
}
