// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/app"
	"github.com/JakeFAU/inc-submissions-harvester/internal/config"
	"github.com/JakeFAU/inc-submissions-harvester/internal/logging"
	"github.com/JakeFAU/inc-submissions-harvester/internal/metrics"
)

// appKeyType is the key for storing the appHolder in the context.
type appKeyType string

const appKey appKeyType = "app"

// appHolder carries the App from the pre-run hook to the subcommand and back
// to execute, which closes it even when the subcommand fails.
type appHolder struct {
	app *app.App
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvests plastics-treaty submissions into normalized snapshots.",
		Long: `harvester discovers submission documents on the negotiating-session pages,
extracts their metadata, links it to the reference taxonomy and writes one
deduplicated snapshot per session.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the application once config is known, before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			metrics.Init()

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			holder, ok := cmd.Context().Value(appKey).(*appHolder)
			if !ok {
				appInstance.Close()
				return errors.New("command context has no application holder")
			}
			holder.app = appInstance
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults plus HARVESTER_* environment when empty)")

	cmd.AddCommand(newRunCmd(), newServeCmd(), newVerifyCmd(), newSyncCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	holder, ok := ctx.Value(appKey).(*appHolder)
	if !ok || holder.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return holder.app, nil
}

// execute runs the command tree for args and closes the App afterwards.
func execute(ctx context.Context, args []string) error {
	holder := &appHolder{}
	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(context.WithValue(ctx, appKey, holder))
	if holder.app != nil {
		holder.app.Close()
	}
	return err
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
