package cmd

import (
	"github.com/spf13/cobra"
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "List allowed collateral with current prices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		assets, err := client.Assets(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), assets)
	},
}

var constantsCmd = &cobra.Command{
	Use:   "constants",
	Short: "Show the engine's fixed-point constants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := client.Constants(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), c)
	},
}

var accountCmd = &cobra.Command{
	Use:   "account <user>",
	Short: "Show a user's debt, collateral and health factor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := client.Account(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), account)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health <user>",
	Short: "Show a user's health factor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		health, err := client.Health(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), health)
	},
}
