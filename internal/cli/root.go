// Package cli implements registryctl, the operator tool that deploys the
// registry pair and administers roles on it.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"magbot/internal/app"
	"magbot/internal/platform/config"
	"magbot/internal/platform/logger"
	"magbot/pkg/domain"
)

const envPrefix = "MAGBOT"

// Builder wires the registries for one command invocation.
type Builder func(ctx context.Context, cfg config.Server, logger *slog.Logger) (*app.App, error)

// PostgresBuilder is the production builder. Commands must act on durable
// state, so the in-memory fallback is refused.
func PostgresBuilder(ctx context.Context, cfg config.Server, logger *slog.Logger) (*app.App, error) {
	return app.Build(ctx, cfg, logger, app.Options{RequireDatabase: true})
}

type runtime struct {
	v     *viper.Viper
	build Builder
}

// NewRootCmd assembles registryctl. build is injected so tests can run the
// commands on in-memory stores.
func NewRootCmd(version string, build Builder) *cobra.Command {
	rt := &runtime{v: viper.New(), build: build}
	rt.v.SetEnvPrefix(envPrefix)
	rt.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	rt.v.AutomaticEnv()

	var cfgFile string
	cmd := &cobra.Command{
		Use:     "registryctl",
		Short:   "Deploy and administer the verification and collateral registries",
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return rt.readConfig(cfgFile)
		},
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("database-url", "", "PostgreSQL connection string (env DATABASE_URL)")
	flags.String("network", "local", "network name the address book belongs to")
	flags.Uint64("chain-id", 31337, "chain id selecting the address book")
	flags.String("address-book-dir", "deployments", "directory holding chain-<id>/deployed_addresses.json")
	flags.String("admin", "", "account the commands act as")
	flags.String("log-level", "warn", "log level")
	for _, name := range []string{"database-url", "network", "chain-id", "address-book-dir", "admin", "log-level"} {
		_ = rt.v.BindPFlag(name, flags.Lookup(name))
	}
	_ = rt.v.BindEnv("database-url", "DATABASE_URL", envPrefix+"_DATABASE_URL")

	cmd.AddCommand(newDeployCmd(rt))
	cmd.AddCommand(newAddressesCmd(rt))
	cmd.AddCommand(newGrantBackendCmd(rt))
	cmd.AddCommand(newTransferAdminCmd(rt))
	return cmd
}

func (rt *runtime) readConfig(file string) error {
	if file == "" {
		return nil
	}
	rt.v.SetConfigFile(file)
	if err := rt.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	return nil
}

func (rt *runtime) config() config.Server {
	cfg := config.FromEnv()
	cfg.DatabaseURL = rt.v.GetString("database-url")
	cfg.LogLevel = rt.v.GetString("log-level")
	cfg.LogFormat = "text"
	cfg.Registry.Network = rt.v.GetString("network")
	cfg.Registry.ChainID = rt.v.GetUint64("chain-id")
	cfg.Registry.AddressBookDir = rt.v.GetString("address-book-dir")
	return cfg
}

func (rt *runtime) admin() (domain.Account, error) {
	raw := rt.v.GetString("admin")
	if raw == "" {
		return domain.ZeroAccount, errors.New("--admin (or MAGBOT_ADMIN) is required")
	}
	admin, err := domain.ParseAccount(raw)
	if err != nil {
		return domain.ZeroAccount, fmt.Errorf("admin: %w", err)
	}
	return admin, nil
}

// open builds the app for one command run.
func (rt *runtime) open(cmd *cobra.Command) (*app.App, error) {
	cfg := rt.config()
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	return rt.build(commandContext(cmd), cfg, log)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
