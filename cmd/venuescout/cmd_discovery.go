package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/plantedhq/venuescout/internal/config"
	"github.com/plantedhq/venuescout/internal/discovery"
	"github.com/plantedhq/venuescout/internal/notify"
)

func newDiscoveryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discovery",
		Short: "Run one discovery pass",
		Long:  "Plans a query budget across the four tiers, executes it through the credential pool, and stages candidate venues.",
		RunE:  runDiscovery,
	}
	cmd.Flags().Int("max-queries", 0, "Override the configured query budget")
	cmd.Flags().String("mode", "", "Override the discovery mode (explore|enumerate|verify)")
	return cmd
}

func runDiscovery(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	applyDiscoveryFlags(cmd, a)
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	runner := discovery.NewRunner(a.cfg.Discovery, a.st, a.pool(), a.searchClient(), a.classifier())
	rep, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	printDiscoveryReport(rep)
	sev := notify.SeverityInfo
	if rep.Backpressure || len(rep.Errors) > 0 {
		sev = notify.SeverityWarning
	}
	a.notifyEvent(ctx, "discovery.completed", sev,
		fmt.Sprintf("discovery staged %d new venues", rep.NewVenues),
		map[string]any{
			"executed":     rep.QueriesExecuted,
			"new_venues":   rep.NewVenues,
			"merged":       rep.MergedVenues,
			"backpressure": rep.Backpressure,
			"errors":       len(rep.Errors),
		})
	return nil
}

func applyDiscoveryFlags(cmd *cobra.Command, a *app) {
	if v, _ := cmd.Flags().GetInt("max-queries"); v > 0 {
		a.cfg.Discovery.MaxQueries = v
	}
	if v, _ := cmd.Flags().GetString("mode"); v != "" {
		a.cfg.Discovery.Mode = config.DiscoveryMode(v)
	}
}

func printDiscoveryReport(rep *discovery.RunReport) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Tier", "Planned", "Executed"})
	for _, t := range rep.Tiers {
		table.Append([]string{t.Tier.String(), strconv.Itoa(t.Planned), strconv.Itoa(t.Executed)})
	}
	table.SetFooter([]string{"total", strconv.Itoa(rep.QueriesPlanned), strconv.Itoa(rep.QueriesExecuted)})
	table.Render()

	summary := tablewriter.NewWriter(os.Stdout)
	summary.SetHeader([]string{"New", "Merged", "Skipped (rejected)", "Chains", "Backpressure"})
	summary.Append([]string{
		strconv.Itoa(rep.NewVenues),
		strconv.Itoa(rep.MergedVenues),
		strconv.Itoa(rep.SkippedRejected),
		strconv.Itoa(rep.ChainsDetected),
		strconv.FormatBool(rep.Backpressure),
	})
	summary.Render()

	for _, e := range rep.Errors {
		fmt.Fprintln(os.Stderr, "error:", e)
	}
	if rep.DryRun {
		fmt.Println("dry run: no queries were executed")
	}
}
