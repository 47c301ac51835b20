package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"redditcollector/pkg/config"
	"redditcollector/pkg/logger"
	"redditcollector/pkg/store"
)

var (
	statsStorePath string
	statsRecent    int
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection statistics from the store",
	Long: `Show what the store knows about the archive: total posts recorded,
how many are downloaded, counts per source and per media type, and the
most recent downloads.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVar(&statsStorePath, "store", "", "path to the metadata store")
	statsCmd.Flags().IntVar(&statsRecent, "recent", 10, "number of recent downloads to list")
}

// openStore opens the metadata store for reporting commands. Unlike collect,
// these commands do not need targets configured, so the full config
// validation is skipped.
func openStore(flagPath string) (*store.Store, error) {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if flagPath != "" {
		cfg.Store.Path = flagPath
	}
	return store.Open(cfg.Store.Path, logger.GetLogger())
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := openStore(statsStorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("Posts recorded:  %d\n", stats.TotalPosts)
	fmt.Printf("Downloaded:      %d\n", stats.Downloaded)
	fmt.Printf("Favorites:       %d\n", stats.Favorites)

	if len(stats.BySource) > 0 {
		fmt.Println("\nBy source:")
		for _, source := range sortedKeys(stats.BySource) {
			fmt.Printf("  %-32s %d\n", source, stats.BySource[source])
		}
	}
	if len(stats.ByType) > 0 {
		fmt.Println("\nBy type:")
		for _, kind := range sortedKeys(stats.ByType) {
			fmt.Printf("  %-32s %d\n", kind, stats.ByType[kind])
		}
	}

	if statsRecent > 0 {
		recent, err := st.RecentDownloads(statsRecent)
		if err != nil {
			return err
		}
		if len(recent) > 0 {
			fmt.Println("\nRecent downloads:")
			for _, rec := range recent {
				fmt.Printf("  %s  %-12s %s\n",
					rec.DownloadedAt.Format("2006-01-02 15:04"), rec.ItemID, rec.LocalPath)
			}
		}
	}

	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
