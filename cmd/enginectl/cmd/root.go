package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

const defaultEndpoint = "http://localhost:8080"

var (
	client *Client

	endpoint string
	from     string

	rootCmd = &cobra.Command{
		Use:          "enginectl",
		Short:        "Operate positions on a collateral engine",
		SilenceUsage: true,
	}
)

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.AddCommand(
		assetsCmd,
		constantsCmd,
		accountCmd,
		healthCmd,
		approveCmd,
		depositCmd,
		mintCmd,
		redeemCmd,
		burnCmd,
		liquidateCmd,
	)
	rootCmd.PersistentFlags().StringVar(
		&endpoint,
		"endpoint",
		envOr("DSC_ENGINE_URL", defaultEndpoint),
		"engine API base URL",
	)
	rootCmd.PersistentFlags().StringVar(
		&from,
		"from",
		os.Getenv("DSC_FROM"),
		"address to act as for mutating commands",
	)
	rootCmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		if from != "" && !common.IsHexAddress(from) {
			return fmt.Errorf("--from: malformed address %q", from)
		}
		client = NewClient(endpoint, from)
		return nil
	}
	rootCmd.SilenceErrors = true

	initPositionFlags()
}

func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
