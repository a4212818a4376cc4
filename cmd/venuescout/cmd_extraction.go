package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/plantedhq/venuescout/internal/config"
	"github.com/plantedhq/venuescout/internal/extraction"
	"github.com/plantedhq/venuescout/internal/notify"
)

func newExtractionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extraction",
		Short: "Run one dish extraction pass",
		Long:  "Fetches venue pages under the conservative pacing discipline and stages brand dishes with confidence scores.",
		RunE:  runExtraction,
	}
	cmd.Flags().String("mode", "", "Override the extraction mode (enrich|refresh|verify)")
	cmd.Flags().String("chain", "", "Restrict to one chain id")
	cmd.Flags().StringSlice("venues", nil, "Restrict to specific venue ids")
	cmd.Flags().Int("max-venues", 0, "Override the venue cap")
	return cmd
}

func runExtraction(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if v, _ := cmd.Flags().GetString("mode"); v != "" {
		a.cfg.Extraction.Mode = config.ExtractionMode(v)
	}
	if v, _ := cmd.Flags().GetString("chain"); v != "" {
		a.cfg.Extraction.Target = config.TargetChain
		a.cfg.Extraction.ChainID = v
	}
	if v, _ := cmd.Flags().GetStringSlice("venues"); len(v) > 0 {
		a.cfg.Extraction.Target = config.TargetVenues
		a.cfg.Extraction.VenueIDs = v
	}
	if v, _ := cmd.Flags().GetInt("max-venues"); v > 0 {
		a.cfg.Extraction.MaxVenues = v
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	runner := extraction.NewRunner(a.cfg.Extraction, a.cfg.Fetch, a.st, a.fetcher())
	rep, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	printExtractionReport(rep)
	sev := notify.SeverityInfo
	if rep.VenuesFailed > 0 {
		sev = notify.SeverityWarning
	}
	a.notifyEvent(ctx, "extraction.completed", sev,
		fmt.Sprintf("extraction kept %d dishes across %d venues", rep.DishesKept, rep.VenuesOK),
		map[string]any{
			"selected": rep.VenuesSelected,
			"ok":       rep.VenuesOK,
			"failed":   rep.VenuesFailed,
			"kept":     rep.DishesKept,
		})
	return nil
}

func printExtractionReport(rep *extraction.RunReport) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Selected", "Visited", "OK", "Failed", "Skipped", "Found", "Kept", "Review"})
	table.Append([]string{
		strconv.Itoa(rep.VenuesSelected),
		strconv.Itoa(rep.VenuesVisited),
		strconv.Itoa(rep.VenuesOK),
		strconv.Itoa(rep.VenuesFailed),
		strconv.Itoa(rep.VenuesSkipped),
		strconv.Itoa(rep.DishesFound),
		strconv.Itoa(rep.DishesKept),
		strconv.Itoa(rep.NeedsReview),
	})
	table.Render()

	if len(rep.Errors) > 0 {
		fmt.Fprintln(os.Stderr, strings.Join(rep.Errors, "\n"))
	}
	if rep.DryRun {
		fmt.Println("dry run: no pages were fetched")
	}
}
