package main

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"episode-finder/internal/logger"
)

func ReindexCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index once",
		Long:  `Fetch every episode from the configured source and replace the search engine index with them.`,
		Example: `  episode-finder reindex
  EPISODE_FINDER_MEILISEARCH_HOST=http://localhost:7700 episode-finder reindex`,
		Args: cobra.NoArgs,
	}

	command.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := initCore()
		if err != nil {
			return err
		}
		log := logger.GetLogger("reindex")
		if cfg.MockSearch() {
			return errors.New("reindex requires a search engine host")
		}

		start := time.Now()
		src, err := newSource(cfg)
		if err != nil {
			return errors.Wrap(err, "initialise episode source")
		}
		defer closeSource(src, log)

		searcher, err := newSearcher(cfg)
		if err != nil {
			return err
		}

		// The first build runs the reindex hook.
		store, err := newStore(cmd.Context(), cfg, src, searcher)
		if err != nil {
			return err
		}
		defer store.Close()

		log.Infof("Reindexed %s episodes from %s in %s",
			humanize.Comma(int64(store.Snapshot().Len())), src.Name(), time.Since(start).Truncate(time.Millisecond))
		return nil
	}

	return command
}
