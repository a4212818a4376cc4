package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/plantedhq/venuescout/internal/review"
)

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review queue operations",
	}
	cmd.AddCommand(newReviewListCmd(), newReviewVerifyCmd())
	return cmd
}

func newReviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List venues awaiting review",
		RunE:  runReviewList,
	}
	cmd.Flags().String("country", "", "Filter by country code")
	cmd.Flags().Float64("min-confidence", 0, "Minimum confidence score")
	cmd.Flags().Int("limit", 50, "Page size")
	return cmd
}

func runReviewList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	country, _ := cmd.Flags().GetString("country")
	minConf, _ := cmd.Flags().GetFloat64("min-confidence")
	limit, _ := cmd.Flags().GetInt("limit")

	venues, total, err := review.NewQueue(a.st).ListPending(ctx, review.PendingFilter{
		Country:       country,
		MinConfidence: minConf,
		Limit:         limit,
	})
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "City", "Country", "Confidence", "Links"})
	for _, v := range venues {
		table.Append([]string{
			v.ID,
			v.Name,
			v.Address.City,
			v.Address.Country,
			strconv.FormatFloat(v.Confidence, 'f', 0, 64),
			strconv.Itoa(len(v.PlatformLinks)),
		})
	}
	table.Render()
	fmt.Printf("%d of %d pending\n", len(venues), total)
	return nil
}

func newReviewVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Run the auto-verifier over the pending queue",
		Long:  "Applies the ordered verification rules to every pending venue. With --dry-run the decisions are computed and printed but nothing is written.",
		RunE:  runReviewVerify,
	}
}

func runReviewVerify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	rep, err := review.NewVerifier(a.st).Run(ctx, dryRun)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Examined", "Verified", "Rejected", "Queued"})
	table.Append([]string{
		strconv.Itoa(rep.Examined),
		strconv.Itoa(rep.Verified),
		strconv.Itoa(rep.Rejected),
		strconv.Itoa(rep.Queued),
	})
	table.Render()

	if dryRun {
		detail := tablewriter.NewWriter(os.Stdout)
		detail.SetHeader([]string{"Venue", "Outcome", "Rule", "Reason"})
		for _, d := range rep.Decisions {
			detail.Append([]string{d.Name, string(d.Outcome), strconv.Itoa(d.Rule), d.Reason})
		}
		detail.Render()
		fmt.Println("dry run: no decisions were applied")
	}
	return nil
}
