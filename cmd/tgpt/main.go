// Command tgpt runs a Telegram bot that answers with a large language
// model, and manages its configuration and system service.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/flemzord/tgpt/internal/core"
	"github.com/flemzord/tgpt/pkg/app"
	"github.com/spf13/cobra"

	_ "github.com/flemzord/tgpt/internal/gateway"
	_ "github.com/flemzord/tgpt/modules/channel/telegram"
	_ "github.com/flemzord/tgpt/modules/provider/openai"
	_ "github.com/flemzord/tgpt/modules/usage/sqlite"
)

// Build information, injected with -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tgpt: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tgpt",
		Short:         "Telegram bot backed by a large language model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "configuration file (default: search the usual locations)")
	root.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Run the bot in the foreground",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return app.Run(cmd.Context(), runParams(cmd))
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the build and the compiled-in modules",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				printVersion(cmd.OutOrStdout())
			},
		},
		configCmd(),
		initCmd(),
		serviceCmd(),
	)
	return root
}

// runParams reads the persistent flags shared by every subcommand.
func runParams(cmd *cobra.Command) app.RunParams {
	path, _ := cmd.Flags().GetString("config")
	return app.RunParams{ConfigPath: path, Version: version, Commit: commit, Date: date}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "tgpt %s\n  commit: %s\n  built:  %s\nmodules:\n", version, commit, date)
	for _, info := range core.GetModules() {
		fmt.Fprintf(w, "  - %s\n", info.ID)
	}
}

func configCmd() *cobra.Command {
	check := &cobra.Command{
		Use:   "check [path]",
		Short: "Load, provision and validate every configured module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := runParams(cmd)
			if len(args) > 0 {
				params.ConfigPath = args[0]
			}
			ids, err := app.Check(params)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "configuration ok, %d modules:\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(w, "  - %s\n", id)
			}
			return nil
		},
	}
	cmd := &cobra.Command{Use: "config", Short: "Inspect the configuration"}
	cmd.AddCommand(check)
	return cmd
}
