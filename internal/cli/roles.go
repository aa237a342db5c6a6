package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"magbot/internal/access"
	"magbot/internal/app"
	"magbot/internal/deployment"
	"magbot/pkg/domain"
	pstrings "magbot/pkg/platform/strings"
)

// Networks transfer-admin may run against without --allow-network.
var designatedNetworks = []string{"base-mainnet", "base-sepolia"}

// roleAdmin is the role-management surface shared by both registries.
type roleAdmin interface {
	GrantRole(ctx context.Context, instance, caller domain.Account, role access.Role, account domain.Account) error
	RenounceRole(ctx context.Context, instance, caller domain.Account, role access.Role, confirmation domain.Account) error
}

type target struct {
	key      string
	registry roleAdmin
}

func targets(a *app.App) map[string]target {
	return map[string]target{
		"verification": {key: deployment.KeyVerification, registry: a.Verification},
		"collateral":   {key: deployment.KeyCollateral, registry: a.Collateral},
	}
}

func newGrantBackendCmd(rt *runtime) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:       "grant-backend verification|collateral",
		Short:     "Grant BACKEND_ROLE on one registry",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"verification", "collateral"},
		RunE: func(cmd *cobra.Command, args []string) error {
			grantee, err := domain.ParseAccount(account)
			if err != nil {
				return fmt.Errorf("account: %w", err)
			}
			admin, err := rt.admin()
			if err != nil {
				return err
			}
			a, err := rt.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			t := targets(a)[args[0]]
			instance, err := a.AddressBook.Lookup(t.key)
			if err != nil {
				return err
			}
			if err := t.registry.GrantRole(commandContext(cmd), instance, admin, access.BackendRole, grantee); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s on %s %s\n", access.BackendRole, grantee, args[0], instance)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account receiving the role")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newTransferAdminCmd(rt *runtime) *cobra.Command {
	var (
		newAdmin      string
		allowNetworks []string
	)
	cmd := &cobra.Command{
		Use:   "transfer-admin",
		Short: "Hand DEFAULT_ADMIN_ROLE on both registries to a new account",
		Long: `Transfer-admin grants DEFAULT_ADMIN_ROLE to --new-admin on both registries,
then renounces it for the acting admin on both. Nothing is renounced unless
both grants succeed. It only runs against base-mainnet and
base-sepolia unless the network is listed with --allow-network.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			network := rt.v.GetString("network")
			if err := requireNetwork(network, allowNetworks); err != nil {
				return err
			}
			next, err := domain.ParseAccount(newAdmin)
			if err != nil {
				return fmt.Errorf("new-admin: %w", err)
			}
			admin, err := rt.admin()
			if err != nil {
				return err
			}
			if next == admin {
				return errors.New("new admin must differ from the acting admin")
			}
			a, err := rt.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd)
			out := cmd.OutOrStdout()
			all := targets(a)
			names := []string{"verification", "collateral"}
			instances := make(map[string]domain.Account, len(names))
			for _, name := range names {
				instance, err := a.AddressBook.Lookup(all[name].key)
				if err != nil {
					return err
				}
				instances[name] = instance
			}
			// Renounce only once the new admin holds the role everywhere, so a
			// failed grant never leaves a registry without an admin.
			for _, name := range names {
				if err := all[name].registry.GrantRole(ctx, instances[name], admin, access.DefaultAdminRole, next); err != nil {
					return fmt.Errorf("%s: grant admin: %w", name, err)
				}
			}
			for _, name := range names {
				if err := all[name].registry.RenounceRole(ctx, instances[name], admin, access.DefaultAdminRole, admin); err != nil {
					return fmt.Errorf("%s: renounce admin: %w", name, err)
				}
				fmt.Fprintf(out, "%s %s: admin %s -> %s\n", name, instances[name], admin, next)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&newAdmin, "new-admin", "", "account receiving DEFAULT_ADMIN_ROLE")
	cmd.Flags().StringSliceVar(&allowNetworks, "allow-network", nil, "additional network names to permit")
	_ = cmd.MarkFlagRequired("new-admin")
	return cmd
}

func requireNetwork(network string, extra []string) error {
	allowed := pstrings.Dedupe(append(slices.Clone(designatedNetworks), extra...), pstrings.Fold)
	if name := pstrings.Fold(network); name != "" && slices.Contains(allowed, name) {
		return nil
	}
	return fmt.Errorf("network %q is not designated for admin transfer (allowed: %v)", network, allowed)
}
