// venuescout is the discovery and extraction engine CLI: it finds venues
// serving the brand's products on delivery platforms, extracts their
// dishes, and promotes approved records into the public locator dataset.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/plantedhq/venuescout/internal/engine"
	"github.com/plantedhq/venuescout/internal/logging"
)

const (
	appName = "venuescout"
	version = "v1.3.0"
)

// Exit codes: 0 success, 1 fatal run error, 2 misconfiguration.
const (
	exitOK     = 0
	exitFatal  = 1
	exitConfig = 2
)

func main() {
	root := &cobra.Command{
		Use:     appName,
		Short:   "Venue discovery and dish extraction engine",
		Version: version,
		Long: `venuescout discovers restaurants serving the brand's products on
delivery platforms, extracts and scores their dishes, and syncs
approved venues into the public locator dataset.

Runs are dry by default where the config says so; pass --wet-run to
force writes and --dry-run to force a preview.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			logging.Setup(verbose)
		},
	}

	// Accept underscore spellings (--dry_run) alongside the canonical ones.
	root.PersistentFlags().SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	root.PersistentFlags().String("config", "", "Path to config file (JSON or YAML), relative paths resolve against the repo root")
	root.PersistentFlags().BoolP("verbose", "v", false, "Debug logging")
	root.PersistentFlags().Bool("dry-run", false, "Plan and report without writing")
	root.PersistentFlags().Bool("wet-run", false, "Force writes even when the config says dry run")

	root.AddCommand(
		newRunCmd(),
		newDiscoveryCmd(),
		newExtractionCmd(),
		newReviewCmd(),
		newSyncCmd(),
		newServeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		if engine.KindOf(err) == engine.KindConfig {
			os.Exit(exitConfig)
		}
		os.Exit(exitFatal)
	}
	os.Exit(exitOK)
}
