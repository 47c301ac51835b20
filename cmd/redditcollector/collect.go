package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"redditcollector/pkg/collector"
	"redditcollector/pkg/config"
	"redditcollector/pkg/logger"
)

var (
	// Collect command flags
	outputDir  string
	storePath  string
	concurrent int
	rateLimit  int
	minScore   int
	dryRun     bool
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a collection pass over all configured targets",
	Long: `Run one collection pass: page each configured subreddit and user
listing, filter posts, resolve media URLs, and download new assets.

Targets come from the config file. The run is resumable: items already
recorded in the store are skipped, and identical content downloaded under
a different post is deduplicated by hash instead of stored twice.`,
	Example: `  # Collect using ./config.yaml
  redditcollector collect

  # Collect into a specific directory with a higher score threshold
  redditcollector collect --output ./archive --min-score 100

  # See what would be downloaded without touching the network for assets
  redditcollector collect --dry-run`,
	Args: cobra.NoArgs,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads")
	collectCmd.Flags().StringVar(&storePath, "store", "", "path to the metadata store")
	collectCmd.Flags().IntVar(&concurrent, "concurrent", 0, "number of concurrent downloads")
	collectCmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "requests per minute")
	collectCmd.Flags().IntVar(&minScore, "min-score", 0, "minimum post score")
	collectCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be downloaded without writing anything")
}

func runCollect(cmd *cobra.Command, args []string) error {
	// Build flags map from command line; only flags the user set override
	// the config file and environment.
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if storePath != "" {
		flags["store"] = storePath
	}
	if concurrent > 0 {
		flags["concurrent"] = concurrent
	}
	if rateLimit > 0 {
		flags["rate-limit"] = rateLimit
	}
	if cmd.Flags().Changed("min-score") {
		flags["min-score"] = minScore
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("Reddit Collector starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := collector.New(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()
	c.SetDryRun(dryRun)

	summary, err := c.Run(ctx)
	if summary != nil {
		printSummary(summary)
	}
	if err != nil {
		return err
	}
	if summary.TargetsAborted() > 0 {
		return fmt.Errorf("%d target(s) could not be listed", summary.TargetsAborted())
	}
	return nil
}

func printSummary(summary *collector.Summary) {
	fmt.Println()
	fmt.Printf("Posts processed:  %d\n", summary.Processed())
	fmt.Printf("Downloaded:       %d\n", summary.Downloaded())
	fmt.Printf("Duplicates:       %d\n", summary.Duplicates())
	printCounts("Filtered", summary.Filtered())
	printCounts("Skipped", summary.Skipped())
	printCounts("Failures", summary.Failures())
	if summary.TargetsAborted() > 0 {
		fmt.Printf("Targets aborted:  %d\n", summary.TargetsAborted())
	}
}

func printCounts(label string, counts map[string]int) {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return
	}
	fmt.Printf("%s:\n", label)
	for _, reason := range sortedKeys(counts) {
		fmt.Printf("  %-24s %d\n", reason, counts[reason])
	}
}
