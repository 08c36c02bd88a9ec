package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/cdr/am"
	"github.com/teranos/cdr/cmd/cdr/commands"
	"github.com/teranos/cdr/errors"
	"github.com/teranos/cdr/logger"
)

var rootCmd = &cobra.Command{
	Use:   "cdr",
	Short: "cdr - Clinical data repository persistence core",
	Long: `cdr - Clinical data repository persistence core.

Operator tooling over the versioned act store: configuration, schema
migrations and read/retire access to clinical acts.

Available commands:
  am       - Manage repository configuration
  db       - Manage the repository database
  act      - Inspect and retire clinical acts
  version  - Show version information

Examples:
  cdr am show              # Show current configuration
  cdr db migrate           # Bring the schema up to date
  cdr db stats             # Show row counts per table
  cdr act list --count 10  # Newest acts`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// am show prints config to stdout; keep it free of log lines
		if cmd.Name() == "show" {
			return nil
		}
		cfg, err := am.LoadWithViper(am.NewViper())
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		level := cfg.Log.Level
		if verbose, _ := cmd.Flags().GetCount("verbose"); verbose > 0 {
			level = "debug"
		}
		if err := logger.Initialize(cfg.Log.JSON, level); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (-v enables debug logging)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ActCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
