// cmd/ratlr is the command line entry point for retrieval-augmented trace
// link recovery.
//
// Process settings come from RATLR_* environment variables, optionally seeded
// from a .env file. A run is described by a pipeline configuration file (JSON
// or YAML) that names the module and arguments of every pipeline role.
//
// All logging goes to stderr. Recovered trace links are written to stdout as
// CSV unless --output names a file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds the process state shared by all subcommands.
type app struct {
	envFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "ratlr",
		Short:         "Retrieval-augmented trace link recovery",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.envFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Run.LogLevel, cfg.Run.Development)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "environment file loaded before RATLR_* variables are read")

	root.AddCommand(newRunCmd(a), newCacheCmd(a), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// No configuration is needed to print the version.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ratlr %s\n", version)
		},
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ratlr: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
