// Package cli implements the dialoggen command line.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	version    string
}

// NewRootCmd creates the dialoggen command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &rootOptions{version: version}

	cmd := &cobra.Command{
		Use:   "dialoggen",
		Short: "Generate synthetic buyer/seller car-sales dialogs for fine-tuning",
		Long: `dialoggen role-plays a car buyer and a car dealer with a language model
and writes the resulting conversations as a fine-tuning dataset.

Configuration comes from config.yaml (if present) and environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the config file (default config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	cmd.AddCommand(
		newGenerateCmd(opts),
		newChatCmd(opts),
		newAnalyzeCmd(),
		newVersionCmd(version),
	)
	return cmd
}

// Execute runs the root command with SIGINT/SIGTERM cancelling the context.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd(version).ExecuteContext(ctx)
}
