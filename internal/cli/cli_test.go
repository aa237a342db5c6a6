package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"magbot/internal/access"
	"magbot/internal/app"
	"magbot/internal/deployment"
	"magbot/internal/platform/config"
	"magbot/pkg/domain"
)

// =============================================================================
// registryctl Test Suite
// =============================================================================
// Every command runs through cobra against one in-memory app, so state carries
// across invocations the way it would on PostgreSQL.

type CLISuite struct {
	suite.Suite
	ctx   context.Context
	app   *app.App
	dir   string
	admin domain.Account
	next  domain.Account
	other domain.Account
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()
	s.admin = domain.MustParseAccount("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	s.next = domain.MustParseAccount("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	s.other = domain.MustParseAccount("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	cfg := config.Server{Registry: config.RegistryConfig{ChainID: 84532, AddressBookDir: s.dir}}
	a, err := app.Build(s.ctx, cfg, slog.New(slog.DiscardHandler), app.Options{})
	s.Require().NoError(err)
	s.app = a
}

func (s *CLISuite) builder(_ context.Context, cfg config.Server, _ *slog.Logger) (*app.App, error) {
	s.Equal(s.dir, cfg.Registry.AddressBookDir)
	return s.app, nil
}

func (s *CLISuite) execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := NewRootCmd("test", s.builder)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	base := []string{"--address-book-dir", s.dir, "--chain-id", "84532"}
	cmd.SetArgs(append(args, base...))
	err := cmd.ExecuteContext(s.ctx)
	return out.String(), err
}

func (s *CLISuite) deploy() (domain.Account, domain.Account) {
	_, err := s.execute("deploy", "--admin", s.admin.String())
	s.Require().NoError(err)
	sbt, coll, err := s.app.Instances()
	s.Require().NoError(err)
	return sbt, coll
}

func (s *CLISuite) TestDeploy() {
	s.Run("records both registries", func() {
		out, err := s.execute("deploy", "--admin", s.admin.String())
		s.Require().NoError(err)
		s.Contains(out, "VerificationRegistry: "+deployment.InstanceAddress(deployment.KeyVerification, 84532, s.admin).String())
		s.Contains(out, filepath.Join(s.dir, "chain-84532", "deployed_addresses.json"))

		_, err = os.Stat(filepath.Join(s.dir, "chain-84532", "deployed_addresses.json"))
		s.NoError(err)
	})

	s.Run("repeat is reported", func() {
		out, err := s.execute("deploy", "--admin", s.admin.String())
		s.Require().NoError(err)
		s.Contains(out, "already deployed on chain 84532")
	})

	s.Run("addresses lists the book", func() {
		out, err := s.execute("addresses")
		s.Require().NoError(err)
		s.Contains(out, deployment.KeyCollateral)
		s.Contains(out, deployment.KeyVerification)
	})

	s.Run("admin is required", func() {
		_, err := s.execute("deploy")
		s.ErrorContains(err, "--admin")
	})
}

func (s *CLISuite) TestGrantBackend() {
	s.Run("fails before deployment", func() {
		_, err := s.execute("grant-backend", "verification", "--account", s.other.String(), "--admin", s.admin.String())
		s.ErrorIs(err, deployment.ErrNotDeployed)
	})

	sbt, coll := s.deploy()

	s.Run("grants on the chosen registry only", func() {
		out, err := s.execute("grant-backend", "collateral", "--account", s.other.String(), "--admin", s.admin.String())
		s.Require().NoError(err)
		s.Contains(out, "BACKEND_ROLE")

		ok, err := s.app.Collateral.HasRole(s.ctx, coll, access.BackendRole, s.other)
		s.Require().NoError(err)
		s.True(ok)
		ok, err = s.app.Verification.HasRole(s.ctx, sbt, access.BackendRole, s.other)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("unknown registry is rejected", func() {
		_, err := s.execute("grant-backend", "ledger", "--account", s.other.String(), "--admin", s.admin.String())
		s.Error(err)
	})

	s.Run("non-admin cannot grant", func() {
		_, err := s.execute("grant-backend", "verification", "--account", s.other.String(), "--admin", s.other.String())
		var unauthorized *access.UnauthorizedError
		s.ErrorAs(err, &unauthorized)
	})

	s.Run("account flag is required", func() {
		_, err := s.execute("grant-backend", "verification", "--admin", s.admin.String())
		s.ErrorContains(err, "account")
	})
}

func (s *CLISuite) TestTransferAdmin() {
	sbt, coll := s.deploy()

	s.Run("refused on undesignated networks", func() {
		_, err := s.execute("transfer-admin", "--new-admin", s.next.String(), "--admin", s.admin.String(), "--network", "local")
		s.ErrorContains(err, "not designated")
	})

	s.Run("refuses handing admin to itself", func() {
		_, err := s.execute("transfer-admin", "--new-admin", s.admin.String(), "--admin", s.admin.String(), "--network", "base-sepolia")
		s.ErrorContains(err, "must differ")
	})

	s.Run("allow-network permits an extra network", func() {
		s.NoError(requireNetwork(" Anvil ", []string{"anvil"}))
		s.NoError(requireNetwork("BASE-MAINNET", nil))
		s.Error(requireNetwork("", nil))
	})

	s.Run("moves admin on both registries", func() {
		out, err := s.execute("transfer-admin", "--new-admin", s.next.String(), "--admin", s.admin.String(), "--network", "base-sepolia")
		s.Require().NoError(err)
		s.Contains(out, "verification")
		s.Contains(out, "collateral")

		registries := map[domain.Account]roleReader{sbt: s.app.Verification, coll: s.app.Collateral}
		for instance, reg := range registries {
			ok, err := reg.HasRole(s.ctx, instance, access.DefaultAdminRole, s.next)
			s.Require().NoError(err)
			s.True(ok, "new admin holds the role")
			ok, err = reg.HasRole(s.ctx, instance, access.DefaultAdminRole, s.admin)
			s.Require().NoError(err)
			s.False(ok, "previous admin renounced")
		}
	})

	s.Run("previous admin can no longer act", func() {
		_, err := s.execute("grant-backend", "verification", "--account", s.other.String(), "--admin", s.admin.String())
		s.Error(err)
	})
}

func (s *CLISuite) TestTransferAdminFailedGrantRenouncesNothing() {
	sbt, coll := s.deploy()

	// Hand collateral admin away so the acting admin's second grant fails.
	s.Require().NoError(s.app.Collateral.GrantRole(s.ctx, coll, s.admin, access.DefaultAdminRole, s.other))
	s.Require().NoError(s.app.Collateral.RenounceRole(s.ctx, coll, s.admin, access.DefaultAdminRole, s.admin))

	_, err := s.execute("transfer-admin", "--new-admin", s.next.String(), "--admin", s.admin.String(), "--network", "base-sepolia")
	s.Require().ErrorContains(err, "collateral: grant admin")
	s.ErrorIs(err, access.ErrUnauthorized)

	ok, err := s.app.Verification.HasRole(s.ctx, sbt, access.DefaultAdminRole, s.admin)
	s.Require().NoError(err)
	s.True(ok, "verification admin kept")

	s.Run("acting admin can still administer verification", func() {
		_, err := s.execute("grant-backend", "verification", "--account", s.other.String(), "--admin", s.admin.String())
		s.NoError(err)
	})
}

type roleReader interface {
	HasRole(ctx context.Context, instance domain.Account, role access.Role, account domain.Account) (bool, error)
}
