package base

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"magbot/internal/access"
	"magbot/pkg/domain"
	audit "magbot/pkg/platform/audit"
	"magbot/pkg/platform/audit/publisher"
	auditmemory "magbot/pkg/platform/audit/store/memory"
)

type stagedTx struct {
	members *access.StagedMembers
}

func (t *stagedTx) HasRole(_ context.Context, _ domain.Account, role access.Role, account domain.Account) (bool, error) {
	return t.members.Has(role, account), nil
}

func (t *stagedTx) AddRoleMember(_ context.Context, _ domain.Account, role access.Role, account domain.Account) error {
	t.members.Add(role, account)
	return nil
}

func (t *stagedTx) RemoveRoleMember(_ context.Context, _ domain.Account, role access.Role, account domain.Account) error {
	t.members.Remove(role, account)
	return nil
}

type committed struct {
	members access.Members
}

func (c *committed) HasRole(_ context.Context, _ domain.Account, role access.Role, account domain.Account) (bool, error) {
	return c.members.Has(role, account), nil
}

func (c *committed) run(ctx context.Context, _ domain.Account, fn func(ctx context.Context, w access.Writer) error) error {
	staged := c.members.Stage()
	if err := fn(ctx, &stagedTx{members: staged}); err != nil {
		return err
	}
	staged.Commit()
	return nil
}

type failingPublisher struct{}

func (failingPublisher) Emit(context.Context, audit.Event) error {
	return errors.New("audit sink unavailable")
}

type RegistrySuite struct {
	suite.Suite
	ctx        context.Context
	members    *committed
	auditStore *auditmemory.InMemoryStore
	registry   *Registry

	instance domain.Account
	admin    domain.Account
	backend  domain.Account
	stranger domain.Account
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.ctx = context.Background()
	s.instance = domain.MustParseAccount("0x00000000000000000000000000000000000000aa")
	s.admin = domain.MustParseAccount("0x0000000000000000000000000000000000000001")
	s.backend = domain.MustParseAccount("0x0000000000000000000000000000000000000002")
	s.stranger = domain.MustParseAccount("0x0000000000000000000000000000000000000003")

	s.members = &committed{members: access.Members{
		{Role: access.DefaultAdminRole, Account: s.admin}: {},
	}}
	s.auditStore = auditmemory.NewInMemoryStore()
	s.registry = New(audit.RegistryCollateral, access.NewTable(access.BackendRole), s.members, s.members.run)
	s.registry.Publisher = publisher.NewPublisher(s.auditStore)
}

func (s *RegistrySuite) actions() []string {
	events, err := s.auditStore.ListAll(s.ctx)
	s.Require().NoError(err)
	var out []string
	for _, e := range events {
		s.Equal(audit.RegistryCollateral, e.Registry)
		out = append(out, e.Action)
	}
	return out
}

func (s *RegistrySuite) TestGrantRole() {
	s.Run("grant is audited once", func() {
		s.Require().NoError(s.registry.GrantRole(s.ctx, s.instance, s.admin, access.BackendRole, s.backend))
		s.Require().NoError(s.registry.GrantRole(s.ctx, s.instance, s.admin, access.BackendRole, s.backend))

		ok, err := s.registry.HasRole(s.ctx, s.instance, access.BackendRole, s.backend)
		s.Require().NoError(err)
		s.True(ok)
		s.Equal([]string{string(audit.EventRoleGranted)}, s.actions())
	})

	s.Run("non-admin is denied and the denial is audited", func() {
		s.auditStore.Clear()
		err := s.registry.GrantRole(s.ctx, s.instance, s.stranger, access.BackendRole, s.stranger)
		s.ErrorIs(err, access.ErrUnauthorized)

		ok, err := s.registry.HasRole(s.ctx, s.instance, access.BackendRole, s.stranger)
		s.Require().NoError(err)
		s.False(ok)

		events, err := s.auditStore.ListAll(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventAccessDenied), events[0].Action)
		s.Equal(s.stranger.String(), events[0].Subject)
	})

	s.Run("failed audit rolls the grant back", func() {
		s.registry.Publisher = failingPublisher{}
		s.Error(s.registry.GrantRole(s.ctx, s.instance, s.admin, access.BackendRole, s.stranger))

		ok, err := s.registry.HasRole(s.ctx, s.instance, access.BackendRole, s.stranger)
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *RegistrySuite) TestRevokeAndRenounce() {
	s.Require().NoError(s.registry.GrantRole(s.ctx, s.instance, s.admin, access.BackendRole, s.backend))
	s.auditStore.Clear()

	s.Run("revoking a non-member emits nothing", func() {
		s.Require().NoError(s.registry.RevokeRole(s.ctx, s.instance, s.admin, access.BackendRole, s.stranger))
		s.Empty(s.actions())
	})

	s.Run("renounce requires the caller as confirmation", func() {
		err := s.registry.RenounceRole(s.ctx, s.instance, s.backend, access.BackendRole, s.admin)
		s.ErrorIs(err, access.ErrBadConfirmation)
	})

	s.Run("renounce drops the caller and names it as subject", func() {
		s.Require().NoError(s.registry.RenounceRole(s.ctx, s.instance, s.backend, access.BackendRole, s.backend))

		ok, err := s.registry.HasRole(s.ctx, s.instance, access.BackendRole, s.backend)
		s.Require().NoError(err)
		s.False(ok)

		events, err := s.auditStore.ListAll(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventRoleRevoked), events[0].Action)
		s.Equal(s.backend.String(), events[0].Subject)
		s.Equal(s.backend, events[0].Actor)
	})
}

func (s *RegistrySuite) TestGetRoleAdmin() {
	s.Equal(access.DefaultAdminRole, s.registry.GetRoleAdmin(access.BackendRole))
	s.Equal(access.DefaultAdminRole, s.registry.GetRoleAdmin(access.DefaultAdminRole))
}
