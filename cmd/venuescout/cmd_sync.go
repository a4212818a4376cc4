package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/plantedhq/venuescout/internal/notify"
	"github.com/plantedhq/venuescout/internal/syncer"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Preview or execute promotion to production",
		Long:  "Diffs staging against production. Without --execute the diff is printed and nothing is written.",
		RunE:  runSync,
	}
	cmd.Flags().Bool("execute", false, "Promote the previewed entities")
	cmd.Flags().StringSlice("venues", nil, "Promote only these venue ids")
	cmd.Flags().String("actor", "cli", "Actor recorded in the sync history")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	s := syncer.New(a.st)
	preview, err := s.PreviewSync(ctx)
	if err != nil {
		return err
	}
	printSyncPreview(preview)

	execute, _ := cmd.Flags().GetBool("execute")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if !execute || dryRun {
		fmt.Println("preview only: pass --execute to promote")
		return nil
	}

	venueIDs, _ := cmd.Flags().GetStringSlice("venues")
	actor, _ := cmd.Flags().GetString("actor")
	sel := syncer.Selection{SyncAll: len(venueIDs) == 0, VenueIDs: venueIDs}

	rec, err := s.Execute(ctx, sel, actor)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Added", "Updated", "Failed", "Dishes"})
	table.Append([]string{
		strconv.Itoa(rec.Added),
		strconv.Itoa(rec.Updated),
		strconv.Itoa(rec.Failed),
		strconv.Itoa(len(rec.PromotedDishes)),
	})
	table.Render()
	for _, e := range rec.Errors {
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", e.Kind, e.EntityID, e.Message)
	}

	sev := notify.SeverityInfo
	if rec.Failed > 0 {
		sev = notify.SeverityWarning
	}
	a.notifyEvent(ctx, "sync.completed", sev,
		fmt.Sprintf("sync promoted %d venues, %d dishes", rec.Added, len(rec.PromotedDishes)),
		map[string]any{"added": rec.Added, "updated": rec.Updated, "failed": rec.Failed})
	return nil
}

func printSyncPreview(p *syncer.Preview) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Venue", "City", "Country", "Dishes", "Verified"})
	for _, add := range p.Additions {
		table.Append([]string{
			add.Name,
			add.City,
			add.Country,
			strconv.Itoa(add.DishTotal),
			strconv.Itoa(add.DishVerified),
		})
	}
	table.Render()

	var lines []string
	for _, u := range p.Updates {
		lines = append(lines, fmt.Sprintf("update %s: %s", u.VenueID, strings.Join(u.ChangedFields, ", ")))
	}
	for _, r := range p.Removals {
		lines = append(lines, fmt.Sprintf("removal candidate %s (%s, last verified %s)",
			r.ProductionID, r.Name, r.LastVerified.Format("2006-01-02")))
	}
	if len(lines) > 0 {
		fmt.Println(strings.Join(lines, "\n"))
	}
	fmt.Printf("%d additions, %d updates, %d removal candidates, %d dish additions\n",
		len(p.Additions), len(p.Updates), len(p.Removals), p.DishAdditions)
}
