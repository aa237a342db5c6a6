package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeployCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Initialize both registries and record them in the address book",
		Long: `Deploy initializes the verification registry, then the collateral registry
linked to it, with --admin as default admin of both. Entries already in the
address book are reused, so running it twice is harmless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			admin, err := rt.admin()
			if err != nil {
				return err
			}
			a, err := rt.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Deployer.Deploy(commandContext(cmd), admin)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.Created {
				fmt.Fprintf(out, "already deployed on chain %d\n", res.ChainID)
			}
			fmt.Fprintf(out, "VerificationRegistry: %s\n", res.Verification)
			fmt.Fprintf(out, "CollateralRegistry:   %s\n", res.Collateral)
			fmt.Fprintf(out, "address book: %s\n", a.AddressBook.Path())
			return nil
		},
	}
}

func newAddressesCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "addresses",
		Short: "Print the address book for the selected chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, keys, err := a.AddressBook.Entries()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(keys) == 0 {
				fmt.Fprintf(out, "no deployments on chain %d\n", a.AddressBook.ChainID())
				return nil
			}
			for _, k := range keys {
				fmt.Fprintf(out, "%s %s\n", k, entries[k])
			}
			return nil
		},
	}
}
