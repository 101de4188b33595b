package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfigFile string
	flagLogFile    string
	flagLogLevel   int
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "episode-finder",
		Short: "Podcast catalog and search service",
		Long: `Serves a podcast episode catalog over HTTP: lookups, tag facets,
full-text search through Meilisearch and generated RSS feeds.
`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flagConfigFile, "config", "c", "", "Config file (default $EPISODE_FINDER_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&flagLogFile, "log", "l", "", "Log file")
	rootCmd.PersistentFlags().CountVarP(&flagLogLevel, "verbose", "v", "Verbose level")

	rootCmd.AddCommand(ServeCommand())
	rootCmd.AddCommand(ReindexCommand())
	rootCmd.AddCommand(VersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
