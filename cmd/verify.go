package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/snapshot"
)

type verifyOptions struct {
	format        string
	expectedCount int
	skipTopics    bool
}

// newVerifyCmd creates the 'verify' subcommand, which audits written snapshots.
func newVerifyCmd() *cobra.Command {
	opts := verifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify [session...]",
		Short: "Check written snapshots against the taxonomy",
		Long: `Reads the snapshot of each named session (or every configured session) and
reports missing or unknown authors and topics, missing and duplicate titles,
duplicate hrefs and invalid document types.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerifyCommand(cmd, args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "table", "output format: table or yaml")
	cmd.Flags().IntVar(&opts.expectedCount, "expected", 0, "expected record count; 0 disables the check")
	cmd.Flags().BoolVar(&opts.skipTopics, "skip-topics", false, "skip topic checks")
	return cmd
}

func runVerifyCommand(cmd *cobra.Command, args []string, opts verifyOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if opts.format != "table" && opts.format != "yaml" {
		return fmt.Errorf("unknown format %q", opts.format)
	}
	sessions, err := selectSessions(appInstance.Sessions(), args)
	if err != nil {
		return err
	}

	var (
		reports []snapshot.Report
		errs    []error
	)
	for _, s := range sessions {
		snap, err := appInstance.Writer().Read(cmd.Context(), s.ID)
		if err != nil {
			appInstance.Logger().Warn("snapshot unavailable", zap.String("session", s.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID, err))
			continue
		}
		reports = append(reports, snapshot.Verify(snap, appInstance.Taxonomy(), snapshot.VerifyOptions{
			ExpectedCount: opts.expectedCount,
			SkipTopics:    opts.skipTopics,
		}))
	}

	out := cmd.OutOrStdout()
	if opts.format == "yaml" {
		err = snapshot.RenderYAML(out, reports)
	} else {
		err = snapshot.RenderTable(out, reports)
	}
	if err != nil {
		return fmt.Errorf("render reports: %w", err)
	}

	for _, r := range reports {
		if !r.OK() {
			errs = append(errs, fmt.Errorf("session %s failed verification", r.Session))
		}
	}
	return errors.Join(errs...)
}
