package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leafsii/collateral-engine/internal/api"
)

var (
	assetFlag      string
	amountFlag     string
	toFlag         string
	onBehalfOfFlag string
	userFlag       string
	tokenFlag      string
)

func initPositionFlags() {
	for _, c := range []*cobra.Command{approveCmd, depositCmd, mintCmd, redeemCmd, burnCmd, liquidateCmd} {
		c.Flags().StringVar(&amountFlag, "amount", "", "amount in token units, e.g. 10.5 (approve also takes \"max\")")
		_ = c.MarkFlagRequired("amount")
	}
	for _, c := range []*cobra.Command{depositCmd, redeemCmd, liquidateCmd} {
		c.Flags().StringVar(&assetFlag, "asset", "", "collateral token address")
		_ = c.MarkFlagRequired("asset")
	}
	approveCmd.Flags().StringVar(&tokenFlag, "token", "", "token the engine may pull")
	_ = approveCmd.MarkFlagRequired("token")
	redeemCmd.Flags().StringVar(&toFlag, "to", "", "recipient of the redeemed collateral (default --from)")
	burnCmd.Flags().StringVar(&onBehalfOfFlag, "on-behalf-of", "", "user whose debt is repaid (default --from)")
	liquidateCmd.Flags().StringVar(&userFlag, "user", "", "address of the position to liquidate")
	_ = liquidateCmd.MarkFlagRequired("user")
}

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Allow the engine to pull tokens from --from",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := client.Approve(cmd.Context(), api.ApproveRequest{Token: tokenFlag, Amount: amountFlag}); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "approved %s of %s\n", amountFlag, tokenFlag)
		return err
	},
}

var depositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Deposit collateral",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		res, err := client.Deposit(cmd.Context(), api.DepositRequest{Asset: assetFlag, Amount: amountFlag})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint stable tokens against deposited collateral",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		res, err := client.Mint(cmd.Context(), api.MintRequest{Amount: amountFlag})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var redeemCmd = &cobra.Command{
	Use:   "redeem",
	Short: "Withdraw collateral",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		res, err := client.Redeem(cmd.Context(), api.RedeemRequest{Asset: assetFlag, Amount: amountFlag, To: toFlag})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var burnCmd = &cobra.Command{
	Use:   "burn",
	Short: "Repay debt with stable tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		res, err := client.Burn(cmd.Context(), api.BurnRequest{Amount: amountFlag, OnBehalfOf: onBehalfOfFlag})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var liquidateCmd = &cobra.Command{
	Use:   "liquidate",
	Short: "Cover an unhealthy position's debt for discounted collateral",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		res, err := client.Liquidate(cmd.Context(), api.LiquidateRequest{Asset: assetFlag, User: userFlag, DebtToCover: amountFlag})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}
