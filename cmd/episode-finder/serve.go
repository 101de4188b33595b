package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"episode-finder/internal/auth"
	"episode-finder/internal/feed"
	"episode-finder/internal/logger"
	"episode-finder/internal/server"
	"episode-finder/internal/source"
)

func ServeCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  `Build the catalog from the configured source, index it and serve the HTTP API until interrupted.`,
		Example: `  episode-finder serve
  episode-finder serve --config config.yaml -v`,
		Args: cobra.NoArgs,
	}

	command.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := initCore()
		if err != nil {
			return err
		}
		log := logger.GetLogger("serve")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		src, err := newSource(cfg)
		if err != nil {
			return errors.Wrap(err, "initialise episode source")
		}
		defer closeSource(src, log)

		searcher, err := newSearcher(cfg)
		if err != nil {
			return err
		}

		store, err := newStore(ctx, cfg, src, searcher)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.WithError(err).Warn("Failed closing catalog watcher")
			}
		}()

		if watchable, ok := src.(source.Watchable); ok && cfg.Watch {
			if err := store.Watch(watchable.WatchPaths(), cfg.RefreshDebounce()); err != nil {
				return errors.Wrap(err, "watch episode source")
			}
		}

		var admin *auth.AdminTokens
		if cfg.AdminTokenFile != "" {
			admin, err = auth.NewAdminTokens(cfg.AdminTokenFile, cfg.RefreshDebounce(), logger.GetLogger("auth"))
			if err != nil {
				return errors.Wrap(err, "initialise admin tokens")
			}
			defer func() {
				if err := admin.Close(); err != nil {
					log.WithError(err).Warn("Failed closing token watcher")
				}
			}()
		}

		handler := server.New(store, searcher, server.Options{
			Feed: feed.Metadata{
				Title:       cfg.Feed.Title,
				Description: cfg.Feed.Description,
				Link:        cfg.Feed.Link,
				Language:    cfg.Feed.Language,
				Author:      cfg.Feed.Author,
			},
			Admin: admin,
			Log:   logger.GetLogger("http"),
		})
		httpServer := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Graceful shutdown failed")
			}
		}()

		log.Infof("Listening on %s (source: %s, search: %s)", cfg.ListenAddr, src.Name(), searcher.Mode())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		log.Info("Shutdown complete")
		return nil
	}

	return command
}
