package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/id/uuid"
	"github.com/JakeFAU/inc-submissions-harvester/internal/syncer"
)

// newSyncCmd creates the 'sync' subcommand, which pushes a snapshot to the
// records service and publishes index tasks.
func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <session>",
		Short: "Upload a session snapshot to the records service",
		Long: `Creates one record per submission in the records service, uploads its PDF,
marks it verified and publishes an index task. Records that fail are logged
and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: runSyncCommand,
	}
}

func runSyncCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if _, err := selectSessions(appInstance.Sessions(), args); err != nil {
		return err
	}
	cfg := appInstance.Config()

	snap, err := appInstance.Writer().Read(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	s, err := syncer.New(syncer.Config{
		BaseURL:  cfg.Persistence.BaseURL,
		APIToken: cfg.Persistence.APIToken,
		Timeout:  time.Duration(cfg.Persistence.TimeoutSeconds) * time.Second,
		Topic:    cfg.Publisher.Topic,
	}, appInstance.Downloader(), appInstance.Publisher(), uuid.New(), appInstance.Logger())
	if err != nil {
		return fmt.Errorf("init syncer: %w", err)
	}

	result, err := s.Sync(cmd.Context(), snap)
	if err != nil {
		return fmt.Errorf("sync session %s: %w", args[0], err)
	}
	appInstance.Logger().Info("sync finished", zap.String("session", args[0]), zap.Int("failed", result.Failed))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d records failed to sync", result.Failed, result.Records)
	}
	return nil
}
