package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/pipeline"
	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

// newRunCmd creates the 'run' subcommand, which harvests sessions once.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [session...]",
		Short: "Harvest sessions once and write their snapshots",
		Long: `Runs the full pipeline for the named sessions, or every configured session
when none are named. A failing session does not stop the others; the command
exits non-zero when any session failed.`,
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	sessions, err := selectSessions(appInstance.Sessions(), args)
	if err != nil {
		return err
	}

	runs := appInstance.Runner().RunAll(cmd.Context(), sessions)
	printRuns(cmd.OutOrStdout(), runs)

	failed := 0
	for _, run := range runs {
		if run.Status != submission.RunSucceeded {
			failed++
		}
	}
	appInstance.Logger().Info("run command finished", zap.Int("sessions", len(runs)), zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d sessions failed", failed, len(runs))
	}
	return nil
}

// selectSessions returns the sessions named by ids, in the order given, or
// every session when ids is empty.
func selectSessions(all []pipeline.Session, ids []string) ([]pipeline.Session, error) {
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[string]pipeline.Session, len(all))
	for _, s := range all {
		byID[s.ID] = s
	}
	out := make([]pipeline.Session, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("session %s: %w", id, pipeline.ErrUnknownSession)
		}
		out = append(out, s)
	}
	return out, nil
}

func printRuns(w io.Writer, runs []submission.RunRecord) {
	for _, run := range runs {
		line := fmt.Sprintf("session %s: %s candidates=%d records=%d failures=%d",
			run.Session, run.Status, run.Candidates, run.Records, run.Failures)
		switch {
		case run.Error != "":
			line += " error=" + run.Error
		case run.SnapshotURI != "":
			line += " snapshot=" + run.SnapshotURI + " sha256=" + run.SnapshotSHA256
		}
		_, _ = fmt.Fprintln(w, line)
	}
}
