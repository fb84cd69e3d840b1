package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/api"
	"github.com/JakeFAU/inc-submissions-harvester/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the 'serve' subcommand: scheduled runs plus the ops API.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run sessions on a schedule and expose the ops API",
		Long: `Harvests every configured session at start-up and then on the configured
interval, while serving health, metrics, run history, snapshots and manual
triggers over HTTP. SIGINT or SIGTERM drains in-flight runs and shuts down.`,
		Args: cobra.NoArgs,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()

	cfg := appInstance.Config()
	logger := appInstance.Logger()
	scheduler := pipeline.NewScheduler(appInstance.Runner(), appInstance.Sessions(), cfg.ScheduleInterval(), logger)

	deps := api.Deps{
		Recent:     appInstance.Runner(),
		Snapshots:  appInstance.Writer(),
		Trigger:    scheduler,
		Ready:      appInstance.Ready,
		RunContext: ctx,
	}
	if ledger := appInstance.RunLedger(); ledger != nil {
		deps.History = ledger
	}
	server := api.NewServer(deps, api.Config{APIKey: cfg.Server.APIKey}, logger)

	port := cfg.Server.Port
	if env := os.Getenv("PORT"); env != "" {
		if p, perr := strconv.Atoi(env); perr == nil {
			port = p
		}
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		logger.Info("scheduler started", zap.Duration("interval", cfg.ScheduleInterval()))
		scheduler.Start(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	<-schedulerDone
	scheduler.Wait()
	logger.Info("shutdown complete")

	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
