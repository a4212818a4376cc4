package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plantedhq/venuescout/internal/discovery"
	"github.com/plantedhq/venuescout/internal/extraction"
	"github.com/plantedhq/venuescout/internal/review"
	"github.com/plantedhq/venuescout/internal/syncer"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline once",
		Long: `Runs discovery, the auto-verifier, and extraction in sequence, then
prints the sync preview. Promotion always stays behind "sync --execute".`,
		RunE: runAll,
	}
}

func runAll(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Discovery.Enabled {
		runner := discovery.NewRunner(a.cfg.Discovery, a.st, a.pool(), a.searchClient(), a.classifier())
		rep, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		printDiscoveryReport(rep)
	}

	dryRun := a.cfg.Discovery.DryRun || a.cfg.Extraction.DryRun
	verifyRep, err := review.NewVerifier(a.st).Run(ctx, dryRun)
	if err != nil {
		return err
	}
	fmt.Printf("auto-verifier: %d examined, %d verified, %d rejected, %d queued\n",
		verifyRep.Examined, verifyRep.Verified, verifyRep.Rejected, verifyRep.Queued)

	extractor := extraction.NewRunner(a.cfg.Extraction, a.cfg.Fetch, a.st, a.fetcher())
	extractRep, err := extractor.Run(ctx)
	if err != nil {
		return err
	}
	printExtractionReport(extractRep)

	preview, err := syncer.New(a.st).PreviewSync(ctx)
	if err != nil {
		return err
	}
	printSyncPreview(preview)
	return nil
}
